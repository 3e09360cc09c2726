package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chart"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/export"
	"dbchat-backend/internal/llm"
	"dbchat-backend/internal/resultset"
	"dbchat-backend/internal/session"
	"dbchat-backend/internal/tools"
)

// iterationLimitAnswer is shown when the agent gives up without a final answer
const iterationLimitAnswer = "Agent stopped due to iteration limit or time limit."

// queryTimesWindow is how many recent queries the execution-time chart plots
const queryTimesWindow = 20

// Config holds the settings every new session inherits
type Config struct {
	Agent         agent.Config
	Query         tools.QueryOptions
	DB            db.Options
	Models        []string
	SampleDBPath  string
	HistoryLimit  int
	ResponseChars int
}

// Service runs questions through a session's agent and derives tables,
// charts and history from the answers
type Service struct {
	llm      llm.LLMClient
	sessions *session.Manager
	cfg      Config
}

// NewService creates a chat service
func NewService(client llm.LLMClient, sessions *session.Manager, cfg Config) *Service {
	if cfg.DB == (db.Options{}) {
		cfg.DB = db.DefaultOptions()
	}
	return &Service{llm: client, sessions: sessions, cfg: cfg}
}

// Sessions returns the session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Models returns the selectable model names
func (s *Service) Models() []string {
	return s.cfg.Models
}

// Open connects to src and registers a new session for it
func (s *Service) Open(ctx context.Context, src db.Source, features session.Features, model string) (*session.Session, error) {
	if err := s.checkModel(model); err != nil {
		return nil, err
	}
	if src.Kind == db.SourceSample {
		if src.Path == "" {
			src.Path = s.cfg.SampleDBPath
		}
		if err := db.Validate(src); err != nil {
			return nil, err
		}
		if err := db.EnsureSampleDatabase(ctx, src.Path); err != nil {
			return nil, fmt.Errorf("failed to prepare sample database: %w", err)
		}
	}

	database, err := db.Open(ctx, src, s.cfg.DB)
	if err != nil {
		return nil, err
	}
	stats, err := database.Statistics(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to read database statistics: %w", err)
	}

	agentCfg := s.cfg.Agent
	if model != "" {
		agentCfg.Model = model
	}
	registry := tools.NewSQLRegistry(database, s.llm, s.cfg.Query)
	runner := agent.New(s.llm, registry, database.Type(), agentCfg)

	sess := session.New(session.Options{
		Source:        src,
		Database:      database,
		Runner:        runner,
		Features:      features,
		Stats:         stats,
		HistoryLimit:  s.cfg.HistoryLimit,
		ResponseChars: s.cfg.ResponseChars,
	})
	s.sessions.Add(sess)
	return sess, nil
}

func (s *Service) checkModel(model string) error {
	if model == "" || len(s.cfg.Models) == 0 {
		return nil
	}
	for _, m := range s.cfg.Models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", llm.ErrUnknownModel, model)
}

// Ask sends one request through the session's agent. Agent failures are
// recorded in the conversation and returned wrapped in ErrAgentFailed.
func (s *Service) Ask(ctx context.Context, sess *session.Session, req Request, onStep func(agent.Step)) (*Response, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	if req.Model != "" {
		if err := s.checkModel(req.Model); err != nil {
			return nil, err
		}
		sess.Runner().SetModel(req.Model)
	}

	sess.AppendMessage(session.Message{Role: "user", Content: prompt})
	log.Printf("💬 Session %s asking: %s", sess.ID(), prompt)

	start := time.Now()
	result, err := sess.Runner().Run(ctx, prompt, onStep)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, agent.ErrMaxIterations):
		if result == nil {
			result = &agent.Result{}
		}
		result.Answer = iterationLimitAnswer
	case err != nil:
		log.Printf("❌ Session %s query failed: %v", sess.ID(), err)
		sess.AppendMessage(session.Message{Role: "assistant", Content: fmt.Sprintf("❌ Error processing query: %v", err)})
		return nil, fmt.Errorf("%w: %w", ErrAgentFailed, err)
	}

	resp := s.respond(sess, prompt, result, elapsed)
	log.Printf("✅ Session %s answered in %.2fs (%d steps)", sess.ID(), resp.ExecutionTime, len(resp.Steps))
	return resp, nil
}

// respond derives the table, chart and SQL from a finished run and records it
func (s *Service) respond(sess *session.Session, prompt string, result *agent.Result, elapsed time.Duration) *Response {
	features := sess.Features()

	table := answerTable(result)
	cols := resultset.Infer(table)

	resp := &Response{
		Prompt:        prompt,
		Answer:        result.Answer,
		Table:         table,
		Columns:       summarize(cols),
		Exportable:    features.EnableExports && table != nil,
		ExecutionTime: elapsed.Seconds(),
		Steps:         result.Steps,
		TokensUsed:    result.TokensUsed,
	}
	if resp.Steps == nil {
		resp.Steps = []agent.Step{}
	}
	if features.AutoVisualize {
		resp.Chart = chart.Select(cols)
	}
	if features.ShowSQL {
		resp.SQL = ExtractSQL(result.Answer, result.SQL)
	}

	resp.History = sess.RecordQuery(prompt, result.Answer, elapsed)
	msg := sess.AppendMessage(session.Message{
		Role:       "assistant",
		Content:    result.Answer,
		SQL:        resp.SQL,
		Chart:      resp.Chart,
		Table:      table,
		Exportable: resp.Exportable,
	})
	resp.MessageID = msg.ID
	return resp
}

// answerTable prefers the rows of the last query the agent ran and falls back
// to the table written in the answer text
func answerTable(result *agent.Result) *resultset.Table {
	if rs := result.ResultSet; rs != nil {
		if t := resultset.FromRows(rs.ColumnNames(), rs.StringRows()); t != nil {
			return t
		}
	}
	return resultset.Parse(result.Answer)
}

func summarize(cols []resultset.TypedColumn) []ColumnSummary {
	if len(cols) == 0 {
		return nil
	}
	out := make([]ColumnSummary, len(cols))
	for i, c := range cols {
		out[i] = ColumnSummary{Name: c.Name, Kind: c.Kind}
	}
	return out
}

// Batch asks every non-blank line of text in order. A failing line does not
// stop the batch; a cancelled context does.
func (s *Service) Batch(ctx context.Context, sess *session.Session, text string, onStep func(agent.Step)) ([]BatchItem, error) {
	queries := SplitBatch(text)
	if len(queries) == 0 {
		return nil, ErrEmptyQuestion
	}

	items := make([]BatchItem, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item := BatchItem{Query: q}
		resp, err := s.Ask(ctx, sess, Request{Mode: ModeQuestion, Question: q}, onStep)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Response = resp
		}
		items = append(items, item)
	}
	log.Printf("📦 Session %s ran a batch of %d queries", sess.ID(), len(items))
	return items, nil
}

// Rerun asks a history item's query again
func (s *Service) Rerun(ctx context.Context, sess *session.Session, historyID string, onStep func(agent.Step)) (*Response, error) {
	item, err := sess.HistoryItem(historyID)
	if err != nil {
		return nil, err
	}
	return s.Ask(ctx, sess, Request{Mode: ModeQuestion, Question: item.Query}, onStep)
}

// RunFavorite asks the query of the favorite at index again
func (s *Service) RunFavorite(ctx context.Context, sess *session.Session, index int, onStep func(agent.Step)) (*Response, error) {
	favorites := sess.Favorites()
	if index < 0 || index >= len(favorites) {
		return nil, fmt.Errorf("%w: %d", session.ErrFavoriteIndex, index)
	}
	return s.Ask(ctx, sess, Request{Mode: ModeQuestion, Question: favorites[index].Query}, onStep)
}

// Export writes the table of an assistant message
func (s *Service) Export(sess *session.Session, messageID string, f export.Format, w io.Writer) error {
	msg, err := sess.Message(messageID)
	if err != nil {
		return err
	}
	if !msg.Exportable || msg.Table == nil {
		return export.ErrNoTable
	}
	return export.Write(w, f, msg.Table)
}

// Analytics builds the dashboard charts through the same selector used for
// answers
func (s *Service) Analytics(sess *session.Session) *Analytics {
	stats := sess.Stats()
	a := &Analytics{Stats: stats, Usage: sess.Usage()}

	if stats != nil && len(stats.Tables) > 0 {
		rows := make([][]string, 0, len(stats.Tables))
		for _, t := range stats.Tables {
			rows = append(rows, []string{t.Name, strconv.FormatInt(t.Rows, 10)})
		}
		a.RecordsByTable = chart.Select(resultset.Infer(resultset.FromRows([]string{"Table", "Records"}, rows)))
	}

	history := sess.History()
	if len(history) > queryTimesWindow {
		history = history[len(history)-queryTimesWindow:]
	}
	if len(history) > 0 {
		rows := make([][]string, len(history))
		for i, h := range history {
			rows[i] = []string{strconv.Itoa(i + 1), strconv.FormatFloat(h.ExecutionTime, 'f', -1, 64)}
		}
		a.QueryTimes = chart.Select(resultset.Infer(resultset.FromRows([]string{"Query #", "Execution Time"}, rows)))
	}
	return a
}
