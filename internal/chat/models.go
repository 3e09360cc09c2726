package chat

import (
	"errors"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chart"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/resultset"
	"dbchat-backend/internal/session"
)

// Mode selects how a Request becomes the agent prompt
type Mode string

const (
	ModeQuestion     Mode = "question"
	ModeTemplate     Mode = "template"
	ModeAction       Mode = "action"
	ModeOptimize     Mode = "optimize"
	ModeSQL          Mode = "sql"
	ModeSchemaExport Mode = "schema_export"
	ModeSuggest      Mode = "suggest"
)

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrUnknownMode     = errors.New("unknown mode")
	ErrUnknownTemplate = errors.New("unknown template")
	ErrUnknownAction   = errors.New("unknown quick action")
	ErrAgentFailed     = errors.New("error processing query")
)

// Request is one question to the session's agent
type Request struct {
	Mode     Mode   `json:"mode"`
	Question string `json:"question"`
	Template string `json:"template,omitempty"`
	Action   string `json:"action,omitempty"`
	SQL      string `json:"sql,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Response is the answer plus everything derived from it
type Response struct {
	MessageID     string              `json:"message_id"`
	Prompt        string              `json:"prompt"`
	Answer        string              `json:"answer"`
	SQL           string              `json:"sql,omitempty"`
	Table         *resultset.Table    `json:"table,omitempty"`
	Columns       []ColumnSummary     `json:"columns,omitempty"`
	Chart         *chart.Chart        `json:"chart,omitempty"`
	Exportable    bool                `json:"exportable"`
	ExecutionTime float64             `json:"execution_time"`
	Steps         []agent.Step        `json:"steps"`
	TokensUsed    int                 `json:"tokens_used"`
	History       session.HistoryItem `json:"history"`
}

// ColumnSummary is the inferred kind of one result column
type ColumnSummary struct {
	Name string         `json:"name"`
	Kind resultset.Kind `json:"kind"`
}

// BatchItem is the outcome of one line of a batch
type BatchItem struct {
	Query    string    `json:"query"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Analytics holds the session dashboard charts
type Analytics struct {
	RecordsByTable *chart.Chart  `json:"records_by_table"`
	QueryTimes     *chart.Chart  `json:"query_times"`
	Stats          *db.Stats     `json:"stats,omitempty"`
	Usage          session.Usage `json:"usage"`
}
