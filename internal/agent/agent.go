package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"dbchat-backend/internal/db"
	"dbchat-backend/internal/llm"
	"dbchat-backend/internal/tools"
)

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit. The partial Result is returned alongside it.
var ErrMaxIterations = errors.New("agent stopped due to iteration limit")

// topK is the default LIMIT the model is told to apply
const topK = 10

const systemPrompt = `You are an agent designed to interact with a SQL database.
Given an input question, create a syntactically correct %s query to run, then look at the results of the query and return the answer.
Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most %d results.
You can order the results by a relevant column to return the most interesting examples in the database.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.
You have access to tools for interacting with the database.
Only use the given tools. Only use the information returned by the tools to construct your final answer.
You MUST double check your query before executing it. If you get an error while executing a query, rewrite the query and try again.

DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database unless the user explicitly asks you to execute a given SQL statement.

If the question does not seem related to the database, just return "I don't know" as the answer.

When the answer contains several rows, start with a one-line summary and then give the rows as a markdown pipe table. Show the SQL you ran in a ` + "```sql" + ` block.`

// Config tunes the agent loop
type Config struct {
	Model         string
	MaxIterations int
	MaxTokens     int
	Temperature   float32
}

// Step is one tool invocation
type Step struct {
	Index       int                    `json:"index"`
	Tool        string                 `json:"tool"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Observation string                 `json:"observation"`
	Status      string                 `json:"status"`
	TimeMs      int                    `json:"time_ms"`
}

// Result is the outcome of one Run
type Result struct {
	Answer     string   `json:"answer"`
	SQL        []string `json:"sql,omitempty"`
	Steps      []Step   `json:"steps"`
	Iterations int      `json:"iterations"`
	TokensUsed int      `json:"tokens_used"`

	// ResultSet is the last successful query result
	ResultSet *db.ResultSet `json:"-"`
}

// Agent answers questions by letting the model call the SQL tools
type Agent struct {
	client   llm.LLMClient
	registry *tools.Registry
	engine   db.DatabaseType
	cfg      Config

	mu    sync.RWMutex
	model string
}

// New creates an agent
func New(client llm.LLMClient, registry *tools.Registry, engine db.DatabaseType, cfg Config) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 15
	}
	return &Agent{client: client, registry: registry, engine: engine, cfg: cfg, model: cfg.Model}
}

// SetModel switches the model used for later runs
func (a *Agent) SetModel(model string) {
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()
}

// Model returns the configured model, or the client's when unset
func (a *Agent) Model() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.model != "" {
		return a.model
	}
	return a.client.GetModel()
}

// Run answers question. onStep, if non-nil, is called after every tool call.
func (a *Agent) Run(ctx context.Context, question string, onStep func(Step)) (*Result, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, a.engine, topK)},
		{Role: llm.RoleUser, Content: question},
	}
	defs := a.registry.Definitions()
	model := a.Model()
	result := &Result{}

	for result.Iterations < a.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Iterations++

		resp, err := a.client.Chat(ctx, &llm.LLMRequest{
			Messages:    messages,
			Tools:       defs,
			Model:       model,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return result, fmt.Errorf("agent LLM call failed: %w", err)
		}
		result.TokensUsed += resp.TokensUsed

		if len(resp.ToolCalls) == 0 {
			result.Answer = strings.TrimSpace(resp.Content)
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			step := a.runTool(ctx, call, result)
			step.Index = len(result.Steps)
			result.Steps = append(result.Steps, step)
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: step.Observation, ToolCallID: call.ID})
			if onStep != nil {
				onStep(step)
			}
		}
	}

	log.Printf("⚠️ Agent hit the iteration limit (%d) after %d tool calls", a.cfg.MaxIterations, len(result.Steps))
	return result, ErrMaxIterations
}

// runTool executes one call. Every failure becomes an observation so the
// model can correct itself.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCall, result *Result) Step {
	step := Step{Tool: call.Name, Status: tools.StatusFailed}

	params, err := a.arguments(call)
	if err != nil {
		step.Observation = "Error: " + err.Error()
		return step
	}
	step.Input = params

	res, err := a.registry.ExecuteTool(ctx, call.Name, params)
	if err != nil {
		step.Observation = "Error: " + err.Error()
		return step
	}

	step.Status = res.Status
	step.Observation = res.Observation()
	step.TimeMs = res.TimeMs
	if call.Name == tools.QueryToolName && res.Status == tools.StatusCompleted {
		if q, ok := params["query"].(string); ok {
			result.SQL = append(result.SQL, strings.TrimSpace(q))
		}
		if res.ResultSet != nil {
			result.ResultSet = res.ResultSet
		}
	}
	return step
}

// arguments decodes the call's JSON arguments. A bare or JSON-quoted string is
// accepted for tools that take exactly one parameter.
func (a *Agent) arguments(call llm.ToolCall) (map[string]interface{}, error) {
	raw := strings.TrimSpace(call.Arguments)
	params := map[string]interface{}{}
	if raw == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), &params); err == nil {
		return params, nil
	}

	tool, ok := a.registry.GetTool(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, call.Name)
	}
	value := raw
	var quoted string
	if err := json.Unmarshal([]byte(raw), &quoted); err == nil {
		value = quoted
	}
	toolParams := tool.Parameters()
	if len(toolParams) == 1 {
		for name := range toolParams {
			return map[string]interface{}{name: value}, nil
		}
	}
	return nil, fmt.Errorf("%w: arguments for %s are not a JSON object", tools.ErrInvalidParameters, call.Name)
}
