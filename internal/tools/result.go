// Package tools defines the result envelope every tool call produces and the
// runner that dispatches model tool calls to registered tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error kinds that are not derived from an error's type name.
const (
	KindHTTPError   = "HTTPError"
	KindNoData      = "NoData"
	KindUnknownTool = "UnknownTool"
)

const previewLimit = 100

var (
	ErrDataAndSample  = errors.New("data and sample cannot be provided together")
	ErrNoDataOrSample = errors.New("data or sample must be provided")
	ErrNoData         = errors.New("no data found")
)

// Result is the outcome of one tool call. A success carries a file name and
// exactly one of data or sample; an error carries a kind, a message and an
// optional HTTP status code. Build it with Success or Error; it is read-only
// afterwards.
type Result struct {
	status   string
	toolName string

	fileName string
	data     any
	sample   any

	errorType    string
	errorMessage string
	statusCode   int
}

// Success builds a success result. Exactly one of data and sample must be non-nil.
func Success(toolName, fileName string, data, sample any) (*Result, error) {
	hasData, hasSample := !isNil(data), !isNil(sample)
	switch {
	case hasData && hasSample:
		return nil, ErrDataAndSample
	case !hasData && !hasSample:
		return nil, ErrNoDataOrSample
	}

	r := &Result{status: StatusSuccess, toolName: toolName, fileName: fileName}
	if hasData {
		r.data = data
	} else {
		r.sample = sample
	}
	return r, nil
}

// Error builds an error result. A zero statusCode means none.
func Error(toolName, errorType, message string, statusCode int) *Result {
	return &Result{
		status:       StatusError,
		toolName:     toolName,
		errorType:    errorType,
		errorMessage: message,
		statusCode:   statusCode,
	}
}

func (r *Result) IsSuccess() bool {
	return r.status == StatusSuccess
}

func (r *Result) Status() string   { return r.status }
func (r *Result) ToolName() string { return r.toolName }
func (r *Result) FileName() string { return r.fileName }
func (r *Result) Data() any        { return r.data }
func (r *Result) Sample() any      { return r.sample }

// ErrorType, ErrorMessage and StatusCode are zero on success.
func (r *Result) ErrorType() string    { return r.errorType }
func (r *Result) ErrorMessage() string { return r.errorMessage }
func (r *Result) StatusCode() int      { return r.statusCode }

// MarshalJSON renders {status, tool_name, content}.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.envelope(false))
}

// String renders the envelope with data or sample longer than 100 characters
// shortened to "<prefix>...<length>".
func (r *Result) String() string {
	b, err := json.Marshal(r.envelope(true))
	if err != nil {
		return fmt.Sprintf("%s %s: %v", r.status, r.toolName, err)
	}
	return string(b)
}

func (r *Result) envelope(preview bool) map[string]any {
	content := map[string]any{}
	if r.status == StatusSuccess {
		content["file_name"] = r.fileName
		if !isNil(r.data) {
			content["data"] = maybePreview(r.data, preview)
		} else if !isNil(r.sample) {
			content["sample"] = maybePreview(r.sample, preview)
		}
	} else {
		content["error_type"] = r.errorType
		content["error_message"] = r.errorMessage
		if r.statusCode != 0 {
			content["status_code"] = r.statusCode
		} else {
			content["status_code"] = nil
		}
	}
	return map[string]any{
		"status":    r.status,
		"tool_name": r.toolName,
		"content":   content,
	}
}

func maybePreview(v any, preview bool) any {
	if !preview {
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if len(b) > previewLimit {
		return fmt.Sprintf("%s...%d", b[:previewLimit], len(b))
	}
	return v
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
