package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dbchat-backend/internal/db"
	"dbchat-backend/internal/resultset"
)

// Tool names
const (
	ListTablesToolName   = "sql_db_list_tables"
	SchemaToolName       = "sql_db_schema"
	QueryToolName        = "sql_db_query"
	QueryCheckerToolName = "sql_db_query_checker"
)

// schemaSampleRows is how many rows sql_db_schema shows per table
const schemaSampleRows = 3

// QueryOptions bounds sql_db_query
type QueryOptions struct {
	Timeout time.Duration
	MaxRows int
}

// DefaultQueryOptions returns a 30s timeout and 100 observation rows
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Timeout: 30 * time.Second, MaxRows: 100}
}

// ListTablesTool lists the tables of the database
type ListTablesTool struct {
	db Database
}

// NewListTablesTool creates a new list tables tool
func NewListTablesTool(database Database) *ListTablesTool {
	return &ListTablesTool{db: database}
}

func (t *ListTablesTool) Name() string { return ListTablesToolName }

func (t *ListTablesTool) Description() string {
	return "Input is an empty string, output is a comma-separated list of tables in the database."
}

func (t *ListTablesTool) Parameters() map[string]ToolParameter {
	return map[string]ToolParameter{}
}

func (t *ListTablesTool) GetCategory() string { return "database" }

// Execute lists the tables
func (t *ListTablesTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	tables, err := t.db.ListTables(ctx)
	if err != nil {
		return NewToolError("Failed to list tables", err), nil
	}
	return NewToolSuccess(strings.Join(tables, ", "), map[string]interface{}{"tables": tables}, 0), nil
}

// SchemaTool describes tables with their columns and a few sample rows
type SchemaTool struct {
	db Database
}

// NewSchemaTool creates a new schema tool
func NewSchemaTool(database Database) *SchemaTool {
	return &SchemaTool{db: database}
}

func (t *SchemaTool) Name() string { return SchemaToolName }

func (t *SchemaTool) Description() string {
	return "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
		"Be sure that the tables actually exist by calling " + ListTablesToolName + " first! Example Input: table1, table2, table3"
}

func (t *SchemaTool) Parameters() map[string]ToolParameter {
	return map[string]ToolParameter{
		"table_names": {
			Type:        "string",
			Description: "Comma-separated list of table names",
			Required:    true,
		},
	}
}

func (t *SchemaTool) GetCategory() string { return "database" }

// Execute describes every requested table
func (t *SchemaTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	var names []string
	for _, name := range strings.Split(stringParam(params, "table_names"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return NewToolError("No table names given", nil), nil
	}

	var sb strings.Builder
	for i, name := range names {
		cols, err := t.db.Columns(ctx, name)
		if err != nil {
			return NewToolError(fmt.Sprintf("Failed to describe table %s", name), err), nil
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(createTableStatement(name, cols))

		sample, err := t.db.SampleRows(ctx, name, schemaSampleRows)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n\n/*\n%d rows from %s table:\n", sample.RowCount, name)
		table := &resultset.Table{Header: sample.ColumnNames(), Rows: sample.StringRows()}
		table.WriteMarkdown(&sb)
		sb.WriteString("*/")
	}
	return NewToolSuccess(sb.String(), map[string]interface{}{"tables": names}, 0), nil
}

func createTableStatement(name string, cols []db.ColumnInfo) string {
	lines := make([]string, len(cols))
	for i, c := range cols {
		lines[i] = "\t" + c.Name + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", name, strings.Join(lines, ",\n"))
}

// QueryTool executes SQL against the database
type QueryTool struct {
	db   Database
	opts QueryOptions
}

// NewQueryTool creates a new query tool
func NewQueryTool(database Database, opts QueryOptions) *QueryTool {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQueryOptions().Timeout
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultQueryOptions().MaxRows
	}
	return &QueryTool{db: database, opts: opts}
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	return "Input to this tool is a detailed and correct SQL query, output is a result from the database as a markdown table. " +
		"If the query is not correct, an error message will be returned. If an error is returned, rewrite the query, " +
		"check the query, and try again. If you encounter an issue with Unknown column 'xxxx' in 'field list', use " +
		SchemaToolName + " to query the correct table fields."
}

func (t *QueryTool) Parameters() map[string]ToolParameter {
	return map[string]ToolParameter{
		"query": {
			Type:        "string",
			Description: "SQL query to execute (must be a valid SQL statement)",
			Required:    true,
		},
	}
}

func (t *QueryTool) GetCategory() string { return "database" }

// Execute runs the query under the configured timeout
func (t *QueryTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	query := strings.TrimSpace(stringParam(params, "query"))

	queryCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	startTime := time.Now()
	switch kind, err := classifyQuery(query); {
	case err != nil:
		return NewToolError("Query rejected", err), nil
	case kind == queryRead:
		rs, err := t.db.Query(queryCtx, query)
		if err != nil {
			return NewToolError("Query execution failed", err), nil
		}
		result := NewToolSuccess(t.observe(rs), map[string]interface{}{
			"query":     query,
			"columns":   rs.ColumnNames(),
			"row_count": rs.RowCount,
		}, int(time.Since(startTime).Milliseconds()))
		result.ResultSet = rs
		return result, nil
	default:
		res, err := t.db.Execute(queryCtx, query)
		if err != nil {
			return NewToolError("Statement execution failed", err), nil
		}
		return NewToolSuccess(fmt.Sprintf("Statement executed, %d rows affected.", res.RowsAffected), map[string]interface{}{
			"query":         query,
			"rows_affected": res.RowsAffected,
		}, int(time.Since(startTime).Milliseconds())), nil
	}
}

// observe renders at most MaxRows rows as a markdown table
func (t *QueryTool) observe(rs *db.ResultSet) string {
	if rs.RowCount == 0 {
		return "Query returned no rows."
	}
	rows := rs.StringRows()
	truncated := len(rows) > t.opts.MaxRows
	if truncated {
		rows = rows[:t.opts.MaxRows]
	}
	out := (&resultset.Table{Header: rs.ColumnNames(), Rows: rows}).Markdown()
	if truncated {
		out += fmt.Sprintf("(showing first %d of %d rows)\n", t.opts.MaxRows, rs.RowCount)
	}
	return out
}

type queryKind int

const (
	queryRead queryKind = iota
	queryWrite
)

var forbiddenOps = regexp.MustCompile(`(?i)\b(drop|truncate)\b|\balter\s+database\b|\bcreate\s+database\b`)

var (
	readPrefixes  = []string{"select", "with", "pragma", "explain", "show", "describe", "values"}
	writePrefixes = []string{"insert", "update", "delete", "create", "alter table", "replace"}
)

// classifyQuery rejects forbidden operations and decides whether query
// returns rows.
func classifyQuery(query string) (queryKind, error) {
	if m := forbiddenOps.FindString(query); m != "" {
		return 0, fmt.Errorf("%w: %s", ErrForbiddenOperation, strings.ToLower(m))
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	for _, p := range readPrefixes {
		if strings.HasPrefix(queryLower, p) {
			return queryRead, nil
		}
	}
	for _, p := range writePrefixes {
		if strings.HasPrefix(queryLower, p) {
			return queryWrite, nil
		}
	}
	return 0, ErrUnsupportedStatement
}
