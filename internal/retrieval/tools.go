package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// SourceTool exposes one source kind to the model. It decodes the call
// arguments into a Source, retrieves it and reports the outcome as a
// tools.Result.
type SourceTool struct {
	name        string
	description string
	parameters  map[string]any
	build       func(arguments string) (Source, error)
	// fullData returns the first page as data; otherwise a summary sample.
	fullData bool

	retriever *HTTPRetriever
	logger    *zap.Logger
}

func (t *SourceTool) Name() string { return t.name }

func (t *SourceTool) Schema() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.name,
			Description: t.description,
			Parameters:  t.parameters,
		},
	}
}

func (t *SourceTool) Call(ctx context.Context, arguments string) *tools.Result {
	src, err := t.build(arguments)
	if err != nil {
		return tools.FromError(t.name, err)
	}
	return t.CallSource(ctx, src)
}

// CallSource retrieves an already built source.
func (t *SourceTool) CallSource(ctx context.Context, src Source) *tools.Result {
	key := src.CacheKey()
	pages, err := t.retriever.Retrieve(ctx, src)
	if err != nil {
		t.logger.Error("❌ Error returning data from data source",
			zap.String("tool", t.name),
			zap.String("entity_id", t.retriever.Connection().EntityID()),
			zap.String("cache_key", key),
			zap.Error(err))
		return tools.FromError(t.name, err)
	}
	if !hasData(pages) {
		return tools.Error(t.name, tools.KindNoData, "No data found", 0)
	}

	fileName := FileName(key)
	var result *tools.Result
	if t.fullData {
		result, err = tools.Success(t.name, fileName, pages[0], nil)
	} else {
		result, err = tools.Success(t.name, fileName, nil, summarize(pages, src, fileName))
	}
	if err != nil {
		return tools.FromError(t.name, err)
	}
	return result
}

// summarize describes a multi-page retrieval without shipping every record.
func summarize(pages []json.RawMessage, src Source, fileName string) map[string]any {
	sample := map[string]any{
		"description": fmt.Sprintf("Did %d api calls within tool call. Data was stored in %s.", len(pages), fileName),
	}
	if example := firstRecord(pages[0], src); example != nil {
		sample["example"] = example
	}
	return sample
}

func firstRecord(page json.RawMessage, src Source) json.RawMessage {
	var table string
	switch s := src.(type) {
	case QuerySource:
		table = TableName(s.Query)
	case UserDataSource:
		table = TableName(s.query())
	default:
		return nil
	}
	qr, ok, err := queryResponse(page)
	if err != nil || !ok {
		return nil
	}
	for key, raw := range qr {
		if !strings.EqualFold(key, table) {
			continue
		}
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil && len(items) > 0 {
			return items[0]
		}
	}
	return nil
}

// NewSchemaTool looks up the columns of a table.
func NewSchemaTool(r *HTTPRetriever, logger *zap.Logger) *SourceTool {
	return &SourceTool{
		name:        SchemaSourceName,
		description: fmt.Sprintf("Retrieve data schema from %s using its HTTP platform API", r.Connection().PlatformName()),
		parameters: objectSchema(map[string]any{
			"table_name": map[string]any{"type": "string", "description": "The name of the table to retrieve data schema for"},
		}, "table_name"),
		build: func(arguments string) (Source, error) {
			var args struct {
				TableName string `json:"table_name"`
			}
			if err := tools.DecodeArguments(arguments, &args); err != nil {
				return nil, err
			}
			return SchemaSource{Table: args.TableName}, nil
		},
		fullData:  true,
		retriever: r,
		logger:    nopIfNil(logger),
	}
}

// NewRowCountTool counts the rows a query would return.
func NewRowCountTool(r *HTTPRetriever, logger *zap.Logger) *SourceTool {
	return &SourceTool{
		name:        RowCountSourceName,
		description: fmt.Sprintf("Retrieve number of rows in a query from %s using its HTTP platform API", r.Connection().PlatformName()),
		parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "A SELECT COUNT(*) query"},
		}, "query"),
		build: func(arguments string) (Source, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := tools.DecodeArguments(arguments, &args); err != nil {
				return nil, err
			}
			return RowCountSource{Query: args.Query}, nil
		},
		fullData:  true,
		retriever: r,
		logger:    nopIfNil(logger),
	}
}

// NewQueryTool runs a generic paginated query.
func NewQueryTool(r *HTTPRetriever, logger *zap.Logger) *SourceTool {
	return &SourceTool{
		name:        QuerySourceName,
		description: fmt.Sprintf("Run a query against %s and store every page of the result", r.Connection().PlatformName()),
		parameters: objectSchema(map[string]any{
			"endpoint": map[string]any{"type": "string", "description": "The endpoint to query, /query when omitted"},
			"query":    map[string]any{"type": "string", "description": "The SELECT query to run"},
		}, "query"),
		build: func(arguments string) (Source, error) {
			var args struct {
				Endpoint string `json:"endpoint"`
				Query    string `json:"query"`
			}
			if err := tools.DecodeArguments(arguments, &args); err != nil {
				return nil, err
			}
			return QuerySource{Path: args.Endpoint, Query: args.Query}, nil
		},
		retriever: r,
		logger:    nopIfNil(logger),
	}
}

// NewUserDataTool pulls full records for a bounded, ordered query.
func NewUserDataTool(r *HTTPRetriever, logger *zap.Logger) *SourceTool {
	return &SourceTool{
		name:        UserDataSourceName,
		description: fmt.Sprintf("Retrieve user's data from %s using its HTTP platform API", r.Connection().PlatformName()),
		parameters: objectSchema(map[string]any{
			"endpoint":           map[string]any{"type": "string", "description": "The endpoint to query"},
			"parameters":         map[string]any{"type": "object", "description": "HTTP parameters for querying the endpoint"},
			"expected_row_count": map[string]any{"type": "integer", "description": "The expected number of rows to be returned from the query"},
		}, "endpoint", "parameters", "expected_row_count"),
		build: func(arguments string) (Source, error) {
			var args struct {
				Endpoint         string            `json:"endpoint"`
				Parameters       map[string]string `json:"parameters"`
				ExpectedRowCount *int              `json:"expected_row_count"`
			}
			if err := tools.DecodeArguments(arguments, &args); err != nil {
				return nil, err
			}
			return UserDataSource{Path: args.Endpoint, Parameters: args.Parameters, ExpectedRowCount: args.ExpectedRowCount}, nil
		},
		retriever: r,
		logger:    nopIfNil(logger),
	}
}

// DataTools returns every source kind as a tool bound to r.
func DataTools(r *HTTPRetriever, logger *zap.Logger) []tools.Tool {
	return []tools.Tool{
		NewSchemaTool(r, logger),
		NewRowCountTool(r, logger),
		NewQueryTool(r, logger),
		NewUserDataTool(r, logger),
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
