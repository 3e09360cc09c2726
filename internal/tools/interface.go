package tools

import (
	"context"
	"errors"
	"fmt"

	"dbchat-backend/internal/db"
)

// ToolParameter defines a tool parameter
type ToolParameter struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Status string                 `json:"status"` // completed, failed
	Output string                 `json:"output,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Error  string                 `json:"error,omitempty"`
	TimeMs int                    `json:"time_ms,omitempty"`

	// ResultSet is the structured result of a query tool, if any
	ResultSet *db.ResultSet `json:"-"`
}

// Observation is the text handed back to the model
func (r *ToolResult) Observation() string {
	if r.Status != StatusCompleted {
		return "Error: " + r.Error
	}
	return r.Output
}

// Tool defines the interface for all tools
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Parameters returns the parameters this tool accepts
	Parameters() map[string]ToolParameter

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error)

	// GetCategory returns the category of this tool
	GetCategory() string
}

// Database is the part of *db.Database the SQL tools use
type Database interface {
	Type() db.DatabaseType
	ListTables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]db.ColumnInfo, error)
	SampleRows(ctx context.Context, table string, n int) (*db.ResultSet, error)
	Query(ctx context.Context, query string, args ...interface{}) (*db.ResultSet, error)
	Execute(ctx context.Context, query string, args ...interface{}) (*db.Result, error)
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Error types
var (
	ErrToolNotFound         = errors.New("tool not found")
	ErrToolAlreadyExists    = errors.New("tool already registered")
	ErrInvalidParameters    = errors.New("invalid tool parameters")
	ErrForbiddenOperation   = errors.New("forbidden operation detected")
	ErrUnsupportedStatement = errors.New("unsupported query type or unable to determine query operation")
)

// Helper functions

// NewToolError creates a new tool error result
func NewToolError(message string, err error) *ToolResult {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}
	return &ToolResult{
		Status: StatusFailed,
		Error:  errorMsg,
	}
}

// NewToolSuccess creates a new successful tool result
func NewToolSuccess(output string, data map[string]interface{}, timeMs int) *ToolResult {
	return &ToolResult{
		Status: StatusCompleted,
		Output: output,
		Data:   data,
		TimeMs: timeMs,
	}
}

// ValidateToolParameters checks that all required parameters are present
// and non-empty strings where the declared type is string.
func ValidateToolParameters(params map[string]interface{}, toolParams map[string]ToolParameter) error {
	for name, param := range toolParams {
		if !param.Required {
			continue
		}
		v, exists := params[name]
		if !exists {
			return fmt.Errorf("%w: missing required parameter: %s", ErrInvalidParameters, name)
		}
		if param.Type == "string" {
			if s, ok := v.(string); !ok || s == "" {
				return fmt.Errorf("%w: parameter %s must be a non-empty string", ErrInvalidParameters, name)
			}
		}
	}
	return nil
}

// stringParam reads a string parameter
func stringParam(params map[string]interface{}, name string) string {
	s, _ := params[name].(string)
	return s
}
