// Package tools implements the agent tool registry: typed parameter
// declarations, JSON-Schema generation, validation, and the built-in tools.
package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the unified return type from tool execution. Tools never return
// Go errors to the loop; failures ride in Error with Success=false.
type Result struct {
	Success  bool           `json:"success"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ok wraps a successful output.
func Ok(output any) *Result { return &Result{Success: true, Output: output} }

// Fail wraps a failure message.
func Fail(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Serialize renders the result for the model: pretty JSON for structured
// outputs, the plain string form for scalars, the error text on failure.
func (r *Result) Serialize() string {
	if !r.Success {
		return "Error: " + r.Error
	}
	switch v := r.Output.(type) {
	case nil:
		return "ok"
	case string:
		return v
	case float64, float32, int, int64, bool:
		return fmt.Sprintf("%v", v)
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
