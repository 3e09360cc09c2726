package tools

import (
	"context"
	"fmt"
	"strings"

	"dbchat-backend/internal/db"
	"dbchat-backend/internal/llm"
)

const queryCheckerPrompt = `%s
Double check the %s query above for common mistakes, including:
- Using NOT IN with NULL values
- Using UNION when UNION ALL should have been used
- Using BETWEEN for exclusive ranges
- Data type mismatch in predicates
- Properly quoting identifiers
- Using the correct number of arguments for functions
- Casting to the correct data type
- Using the proper columns for joins

If there are any of the above mistakes, rewrite the query. If there are no mistakes, just reproduce the original query.

Output the final SQL query only.

SQL Query: `

// QueryCheckerTool asks the model to double check a query before it runs
type QueryCheckerTool struct {
	client  llm.LLMClient
	dialect string
}

// NewQueryCheckerTool creates a new query checker for the given engine
func NewQueryCheckerTool(client llm.LLMClient, engine db.DatabaseType) *QueryCheckerTool {
	return &QueryCheckerTool{client: client, dialect: string(engine)}
}

func (t *QueryCheckerTool) Name() string { return QueryCheckerToolName }

func (t *QueryCheckerTool) Description() string {
	return "Use this tool to double check if your query is correct before executing it. " +
		"Always use this tool before executing a query with " + QueryToolName + "!"
}

func (t *QueryCheckerTool) Parameters() map[string]ToolParameter {
	return map[string]ToolParameter{
		"query": {
			Type:        "string",
			Description: "SQL query to check",
			Required:    true,
		},
	}
}

func (t *QueryCheckerTool) GetCategory() string { return "database" }

// Execute returns the checked query
func (t *QueryCheckerTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	query := stringParam(params, "query")
	resp, err := t.client.Chat(ctx, &llm.LLMRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(queryCheckerPrompt, query, t.dialect)}},
	})
	if err != nil {
		return NewToolError("Query check failed", err), nil
	}
	checked := strings.TrimSpace(resp.Content)
	return NewToolSuccess(checked, map[string]interface{}{"query": query}, 0), nil
}
