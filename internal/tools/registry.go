package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"dbchat-backend/internal/llm"
)

// Registry holds the tools available to one agent
type Registry struct {
	tools map[string]Tool
	mutex sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewSQLRegistry registers the SQL toolkit for database. checker may be nil,
// in which case the query checker tool is omitted.
func NewSQLRegistry(database Database, checker llm.LLMClient, opts QueryOptions) *Registry {
	registry := NewRegistry()

	builtIn := []Tool{
		NewListTablesTool(database),
		NewSchemaTool(database),
		NewQueryTool(database, opts),
	}
	if checker != nil {
		builtIn = append(builtIn, NewQueryCheckerTool(checker, database.Type()))
	}
	for _, tool := range builtIn {
		if err := registry.RegisterTool(tool); err != nil {
			log.Printf("❌ Failed to register %s: %v", tool.Name(), err)
		}
	}
	return registry
}

// RegisterTool adds a new tool to the registry
func (r *Registry) RegisterTool(tool Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyExists, name)
	}

	r.tools[name] = tool
	return nil
}

// GetTool retrieves a tool by name
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// ExecuteTool executes a tool by name. Tool failures come back as a failed
// ToolResult; only an unknown tool or invalid parameters are errors.
func (r *Registry) ExecuteTool(ctx context.Context, toolName string, params map[string]interface{}) (*ToolResult, error) {
	tool, exists := r.GetTool(toolName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	if err := ValidateToolParameters(params, tool.Parameters()); err != nil {
		return nil, fmt.Errorf("invalid parameters for tool %s: %w", toolName, err)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	if err != nil {
		return NewToolError(fmt.Sprintf("Tool %s failed", toolName), err), nil
	}
	if result.TimeMs == 0 {
		result.TimeMs = int(time.Since(start).Milliseconds())
	}
	return result, nil
}

// ListTools returns all registered tools sorted by name
func (r *Registry) ListTools() []Tool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Definitions describes every tool as a function the model can call
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.ListTools()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  schemaOf(tool.Parameters()),
		})
	}
	return defs
}

// schemaOf converts tool parameters to a JSON schema object
func schemaOf(params map[string]ToolParameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}
	for name, p := range params {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
