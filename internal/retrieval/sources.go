package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	SchemaSourceName   = "qb_data_schema_retriever"
	RowCountSourceName = "qb_data_size_retriever"
	QuerySourceName    = "qb_query_retriever"
	UserDataSourceName = "qb_user_data_retriever"

	queryEndpoint   = "/query"
	MaxExpectedRows = 1000
)

// TableName returns the word following FROM in query, matched
// case-insensitively, or "Unknown".
func TableName(query string) string {
	i := strings.Index(strings.ToUpper(query), "FROM")
	if i == -1 {
		return "Unknown"
	}
	fields := strings.Fields(query[i+len("FROM"):])
	if len(fields) == 0 {
		return "Unknown"
	}
	return fields[0]
}

// CountQueryItems counts the records a query response holds for table.
// A missing QueryResponse or table counts as zero records.
func CountQueryItems(page json.RawMessage, table string) (int, error) {
	qr, present, err := queryResponse(page)
	if err != nil || !present {
		return 0, err
	}
	for key, raw := range qr {
		if !strings.EqualFold(key, table) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return 0, &MalformedResponseError{Reason: fmt.Sprintf("QueryResponse.%s is not a list", key)}
		}
		return len(items), nil
	}
	return 0, nil
}

// queryResponse extracts the QueryResponse object of a page.
func queryResponse(page json.RawMessage) (map[string]json.RawMessage, bool, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(page, &top); err != nil {
		return nil, false, &MalformedResponseError{Reason: "response is not a JSON object"}
	}
	raw, ok := top["QueryResponse"]
	if !ok {
		return nil, false, nil
	}
	var qr map[string]json.RawMessage
	if err := json.Unmarshal(raw, &qr); err != nil || qr == nil {
		return nil, false, &MalformedResponseError{Reason: "QueryResponse is not an object"}
	}
	return qr, true, nil
}

// hasData reports whether the first page carries a non-empty QueryResponse.
func hasData(pages []json.RawMessage) bool {
	if len(pages) == 0 {
		return false
	}
	qr, ok, err := queryResponse(pages[0])
	return err == nil && ok && len(qr) > 0
}

func paramsHash(v any) string {
	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:6]
}

// SchemaSource fetches a single record of a table to reveal its columns.
type SchemaSource struct {
	Table string
}

func (s SchemaSource) Name() string     { return SchemaSourceName }
func (s SchemaSource) Endpoint() string { return queryEndpoint }
func (s SchemaSource) CacheKey() string { return SchemaSourceName + "_" + s.Table }
func (s SchemaSource) Summary() string  { return "Retrieve data schema" }

func (s SchemaSource) Params(_, _ int) url.Values {
	return url.Values{"query": {fmt.Sprintf("SELECT * FROM %s MAXRESULTS 1", s.Table)}}
}

func (s SchemaSource) CountItems(page json.RawMessage) (int, error) {
	return CountQueryItems(page, s.Table)
}

func (s SchemaSource) Validate() error {
	if strings.TrimSpace(s.Table) == "" {
		return &ValidationError{Reason: "table_name is required"}
	}
	if strings.ContainsAny(s.Table, " ;'\"") {
		return &ValidationError{Reason: fmt.Sprintf("invalid table name %q", s.Table)}
	}
	return nil
}

// RowCountSource runs a COUNT(*) query.
type RowCountSource struct {
	Query string
}

func (s RowCountSource) Name() string     { return RowCountSourceName }
func (s RowCountSource) Endpoint() string { return queryEndpoint }
func (s RowCountSource) Summary() string  { return "Retrieve number of rows in a query" }

func (s RowCountSource) CacheKey() string {
	return fmt.Sprintf("%s_%s_%s", RowCountSourceName, TableName(s.Query), paramsHash(s.Query))
}

func (s RowCountSource) Params(_, _ int) url.Values {
	return url.Values{"query": {s.Query}}
}

func (s RowCountSource) CountItems(page json.RawMessage) (int, error) {
	return CountQueryItems(page, TableName(s.Query))
}

func (s RowCountSource) Validate() error {
	if !strings.Contains(strings.ToUpper(s.Query), "COUNT(*)") {
		return &ValidationError{Reason: "Query is invalid, should be like SELECT COUNT(*) FROM Bill WHERE TxnDate = '2025-01-01'"}
	}
	return nil
}

// QuerySource runs an arbitrary query against an endpoint, page by page.
type QuerySource struct {
	Path  string
	Query string
}

func (s QuerySource) Name() string     { return QuerySourceName }
func (s QuerySource) Endpoint() string { return normalizeEndpoint(s.Path) }
func (s QuerySource) Summary() string  { return "Run a query" }

func (s QuerySource) CacheKey() string {
	return fmt.Sprintf("%s_%s_%s_%s", QuerySourceName, strings.TrimPrefix(s.Endpoint(), "/"), TableName(s.Query), paramsHash(s.Query))
}

func (s QuerySource) Params(start, size int) url.Values {
	return url.Values{"query": {paginate(s.Query, start, size)}}
}

func (s QuerySource) CountItems(page json.RawMessage) (int, error) {
	return CountQueryItems(page, TableName(s.Query))
}

func (s QuerySource) Validate() error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s.Query)), "SELECT") {
		return &ValidationError{Reason: "query must start with SELECT"}
	}
	return nil
}

// UserDataSource pulls a bounded, ordered set of full records.
type UserDataSource struct {
	Path             string
	Parameters       map[string]string
	ExpectedRowCount *int
}

func (s UserDataSource) Name() string     { return UserDataSourceName }
func (s UserDataSource) Endpoint() string { return normalizeEndpoint(s.Path) }
func (s UserDataSource) Summary() string  { return "Retrieve user data" }

func (s UserDataSource) query() string { return s.Parameters["query"] }

func (s UserDataSource) CacheKey() string {
	return fmt.Sprintf("%s_%s_%s_%s", UserDataSourceName, strings.TrimPrefix(s.Endpoint(), "/"), TableName(s.query()), paramsHash(s.Parameters))
}

func (s UserDataSource) Params(start, size int) url.Values {
	return url.Values{"query": {paginate(s.query(), start, size)}}
}

func (s UserDataSource) CountItems(page json.RawMessage) (int, error) {
	return CountQueryItems(page, TableName(s.query()))
}

func (s UserDataSource) Validate() error {
	q := strings.ToUpper(s.query())
	switch {
	case !strings.Contains(q, "SELECT *"):
		return &ValidationError{Reason: "Please select all columns by doing SELECT *"}
	case !strings.Contains(q, "ORDER BY"):
		return &ValidationError{Reason: "ORDER BY clause is missing"}
	case s.ExpectedRowCount == nil || *s.ExpectedRowCount < 0:
		return &ValidationError{Reason: "Expected row count must be provided and greater than or equal to 0"}
	case *s.ExpectedRowCount > MaxExpectedRows:
		return &ValidationError{Reason: fmt.Sprintf("Expected row count must be less than %d", MaxExpectedRows)}
	}
	return nil
}

func paginate(query string, start, size int) string {
	return fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", strings.TrimSpace(query), start, size)
}

func normalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return queryEndpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		return "/" + endpoint
	}
	return endpoint
}
