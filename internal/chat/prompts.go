package chat

import (
	"fmt"
	"regexp"
	"strings"
)

// Prompt is a named canned question
type Prompt struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Templates are the predefined questions offered next to the chat box
var Templates = []Prompt{
	{"Data Overview", "Give me an overview of all tables and their record counts"},
	{"Top Records", "Show me the top 10 records from the largest table"},
	{"Data Quality", "Check for missing values and data quality issues"},
	{"Relationships", "Show me the relationships between tables"},
	{"Summary Stats", "Provide summary statistics for numeric columns"},
}

// QuickActions are one-click analyses
var QuickActions = []Prompt{
	{"Explore Schema", "Show me the schema and structure of all tables"},
	{"Summary Report", "Generate a comprehensive summary report of the database including key statistics and insights"},
	{"Data Quality Check", "Check for data quality issues like missing values, duplicates, and inconsistencies"},
}

const (
	schemaExportPrompt = "Show me the complete database schema with all table structures, relationships, and constraints"
	suggestPrompt      = "Suggest 5 interesting and useful queries I can run on this database based on its structure and data"
	optimizePrompt     = "Analyze this query for optimization opportunities and suggest improvements: %s"
	directSQLPrompt    = "Execute this SQL query and show results: %s"
)

func lookup(prompts []Prompt, name string) (string, bool) {
	for _, p := range prompts {
		if p.Name == name {
			return p.Prompt, true
		}
	}
	return "", false
}

// BuildPrompt turns a request into the text sent to the agent
func BuildPrompt(req Request) (string, error) {
	switch req.Mode {
	case "", ModeQuestion:
		if q := strings.TrimSpace(req.Question); q != "" {
			return q, nil
		}
		return "", ErrEmptyQuestion
	case ModeTemplate:
		if p, ok := lookup(Templates, req.Template); ok {
			return p, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, req.Template)
	case ModeAction:
		if p, ok := lookup(QuickActions, req.Action); ok {
			return p, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	case ModeOptimize:
		if q := strings.TrimSpace(req.SQL); q != "" {
			return fmt.Sprintf(optimizePrompt, q), nil
		}
		return "", ErrEmptyQuestion
	case ModeSQL:
		if q := strings.TrimSpace(req.SQL); q != "" {
			return fmt.Sprintf(directSQLPrompt, q), nil
		}
		return "", ErrEmptyQuestion
	case ModeSchemaExport:
		return schemaExportPrompt, nil
	case ModeSuggest:
		return suggestPrompt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
}

// SplitBatch returns the non-blank trimmed lines of text
func SplitBatch(text string) []string {
	var queries []string
	for _, line := range strings.Split(text, "\n") {
		if q := strings.TrimSpace(line); q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

var sqlBlock = regexp.MustCompile("(?s)```sql\n(.*?)\n```")

// ExtractSQL returns the first fenced sql block of answer, else the last
// statement the agent executed, else "".
func ExtractSQL(answer string, executed []string) string {
	if m := sqlBlock.FindStringSubmatch(strings.ReplaceAll(answer, "\r\n", "\n")); m != nil {
		return m[1]
	}
	if len(executed) > 0 {
		return executed[len(executed)-1]
	}
	return ""
}
