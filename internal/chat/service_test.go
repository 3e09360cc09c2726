package chat

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chart"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/export"
	"dbchat-backend/internal/llm"
	"dbchat-backend/internal/resultset"
	"dbchat-backend/internal/session"
)

type fakeRunner struct {
	answers   []string
	result    *agent.Result
	err       error
	model     string
	questions []string
}

func (f *fakeRunner) Run(ctx context.Context, question string, onStep func(agent.Step)) (*agent.Result, error) {
	f.questions = append(f.questions, question)
	if f.result != nil || f.err != nil {
		return f.result, f.err
	}
	answer := ""
	if len(f.answers) > 0 {
		answer, f.answers = f.answers[0], f.answers[1:]
	}
	step := agent.Step{Tool: "sql_db_query", Observation: "ok", Status: "completed"}
	if onStep != nil {
		onStep(step)
	}
	return &agent.Result{Answer: answer, Steps: []agent.Step{step}, SQL: []string{"SELECT 1"}}, nil
}

func (f *fakeRunner) SetModel(model string) { f.model = model }
func (f *fakeRunner) Model() string         { return f.model }

const coursesAnswer = "Here are the courses:\n| course | credits |\n|---|---|\n| CS101 | 3 |\n| MATH201 | 4 |\n\n```sql\nSELECT course, credits FROM courses\n```"

func newTestService(models ...string) *Service {
	return NewService(nil, session.NewManager(0), Config{Models: models})
}

func newTestSession(runner session.Runner, features session.Features) *session.Session {
	return session.New(session.Options{
		Source:   db.Source{Kind: db.SourceSample},
		Runner:   runner,
		Features: features,
		Stats: &db.Stats{TableCount: 2, Tables: []db.TableStats{
			{Name: "students", Rows: 20, Columns: 5},
			{Name: "courses", Rows: 5, Columns: 4},
		}},
	})
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
		err  error
	}{
		{"question", Request{Question: "  how many students?  "}, "how many students?", nil},
		{"empty question", Request{Mode: ModeQuestion, Question: " "}, "", ErrEmptyQuestion},
		{"template", Request{Mode: ModeTemplate, Template: "Top Records"}, "Show me the top 10 records from the largest table", nil},
		{"unknown template", Request{Mode: ModeTemplate, Template: "nope"}, "", ErrUnknownTemplate},
		{"action", Request{Mode: ModeAction, Action: "Explore Schema"}, "Show me the schema and structure of all tables", nil},
		{"unknown action", Request{Mode: ModeAction, Action: "nope"}, "", ErrUnknownAction},
		{"optimize", Request{Mode: ModeOptimize, SQL: "SELECT * FROM t"}, "Analyze this query for optimization opportunities and suggest improvements: SELECT * FROM t", nil},
		{"direct sql", Request{Mode: ModeSQL, SQL: "SELECT 1"}, "Execute this SQL query and show results: SELECT 1", nil},
		{"direct sql empty", Request{Mode: ModeSQL}, "", ErrEmptyQuestion},
		{"schema export", Request{Mode: ModeSchemaExport}, schemaExportPrompt, nil},
		{"suggest", Request{Mode: ModeSuggest}, suggestPrompt, nil},
		{"unknown mode", Request{Mode: "poem"}, "", ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPrompt(tt.req)
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("prompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitBatch(t *testing.T) {
	got := SplitBatch("first\n\n  second  \r\n   \nthird")
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("SplitBatch = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractSQL(t *testing.T) {
	if got := ExtractSQL(coursesAnswer, []string{"SELECT 2"}); got != "SELECT course, credits FROM courses" {
		t.Errorf("fenced sql = %q", got)
	}
	if got := ExtractSQL("no code here", []string{"SELECT 1", "SELECT 2"}); got != "SELECT 2" {
		t.Errorf("executed fallback = %q", got)
	}
	if got := ExtractSQL("no code here", nil); got != "" {
		t.Errorf("nothing to extract = %q", got)
	}
}

func TestAskParsesAnswerTable(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{coursesAnswer}}
	sess := newTestSession(runner, session.DefaultFeatures())

	var steps []agent.Step
	resp, err := svc.Ask(context.Background(), sess, Request{Question: "list courses"}, func(s agent.Step) {
		steps = append(steps, s)
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(steps) != 1 || len(resp.Steps) != 1 {
		t.Errorf("steps = %d streamed, %d returned", len(steps), len(resp.Steps))
	}
	if resp.Table == nil || len(resp.Table.Rows) != 2 || resp.Table.Header[0] != "course" {
		t.Fatalf("table = %+v", resp.Table)
	}
	if len(resp.Columns) != 2 || resp.Columns[1].Kind != resultset.KindNumeric {
		t.Errorf("columns = %+v", resp.Columns)
	}
	if resp.Chart == nil || resp.Chart.Kind != chart.KindBar || resp.Chart.Title != "credits by course" {
		t.Errorf("chart = %+v", resp.Chart)
	}
	if resp.SQL != "" {
		t.Errorf("sql shown with show_sql off: %q", resp.SQL)
	}
	if !resp.Exportable {
		t.Error("table should be exportable")
	}

	if h := sess.History(); len(h) != 1 || h[0].Query != "list courses" || h[0].ID != resp.History.ID {
		t.Errorf("history = %+v", h)
	}
	msgs := sess.Messages()
	if len(msgs) != 3 || msgs[1].Role != "user" || msgs[2].ID != resp.MessageID || msgs[2].Table == nil {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestAskPrefersStructuredResult(t *testing.T) {
	svc := newTestService()
	rs := &db.ResultSet{
		Columns: []db.Column{{Name: "gpa"}, {Name: "credits"}},
		Rows: []db.Row{
			{Values: []db.Value{db.NewFloatValue(3.5), db.NewIntegerValue(12)}},
			{Values: []db.Value{db.NewFloatValue(2.9), db.NewIntegerValue(9)}},
		},
		RowCount: 2,
	}
	runner := &fakeRunner{result: &agent.Result{Answer: coursesAnswer, ResultSet: rs}}
	sess := newTestSession(runner, session.DefaultFeatures())

	resp, err := svc.Ask(context.Background(), sess, Request{Question: "gpa vs credits"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Table.Header[0] != "gpa" || resp.Table.Rows[1][1] != "9" {
		t.Errorf("table = %+v", resp.Table)
	}
	if resp.Chart == nil || resp.Chart.Kind != chart.KindScatter || resp.Chart.Title != "credits vs gpa" {
		t.Errorf("chart = %+v", resp.Chart)
	}
	if resp.Steps == nil {
		t.Error("steps should never be null")
	}
}

func TestAskEmptyStructuredResultFallsBackToText(t *testing.T) {
	svc := newTestService()
	rs := &db.ResultSet{Columns: []db.Column{{Name: "n"}}}
	runner := &fakeRunner{result: &agent.Result{Answer: coursesAnswer, ResultSet: rs}}
	sess := newTestSession(runner, session.DefaultFeatures())

	resp, err := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Table == nil || resp.Table.Header[0] != "course" {
		t.Errorf("table = %+v", resp.Table)
	}
}

func TestAskFeatureFlags(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{coursesAnswer, "There are 42 students."}}
	sess := newTestSession(runner, session.Features{ShowSQL: true})

	resp, err := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Chart != nil {
		t.Errorf("chart built with auto_visualize off: %+v", resp.Chart)
	}
	if resp.Exportable {
		t.Error("exportable with exports off")
	}
	if resp.SQL != "SELECT course, credits FROM courses" {
		t.Errorf("sql = %q", resp.SQL)
	}

	sess.SetFeatures(session.DefaultFeatures())
	resp, err = svc.Ask(context.Background(), sess, Request{Question: "how many?"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Table != nil || resp.Chart != nil || resp.Exportable {
		t.Errorf("plain answer produced table %+v chart %+v", resp.Table, resp.Chart)
	}
}

func TestAskIterationLimit(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{result: &agent.Result{Answer: "partial"}, err: agent.ErrMaxIterations}
	sess := newTestSession(runner, session.DefaultFeatures())

	resp, err := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if resp.Answer != iterationLimitAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(sess.History()) != 1 {
		t.Error("iteration limit should still be recorded")
	}
}

func TestAskAgentError(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{err: errors.New("rate limited")}
	sess := newTestSession(runner, session.DefaultFeatures())

	_, err := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)
	if !errors.Is(err, ErrAgentFailed) {
		t.Fatalf("error = %v", err)
	}
	msgs := sess.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "❌ Error processing query: rate limited" {
		t.Errorf("error message = %q", last.Content)
	}
	if len(sess.History()) != 0 {
		t.Error("failed query recorded in history")
	}
}

func TestAskModelSelection(t *testing.T) {
	svc := newTestService("llama3-8b-8192", "llama3-70b-8192")
	runner := &fakeRunner{answers: []string{"ok"}}
	sess := newTestSession(runner, session.DefaultFeatures())

	if _, err := svc.Ask(context.Background(), sess, Request{Question: "q", Model: "gpt-99"}, nil); !errors.Is(err, llm.ErrUnknownModel) {
		t.Errorf("unknown model error = %v", err)
	}
	if len(runner.questions) != 0 {
		t.Error("agent ran with an unknown model")
	}
	if _, err := svc.Ask(context.Background(), sess, Request{Question: "q", Model: "llama3-70b-8192"}, nil); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if runner.Model() != "llama3-70b-8192" {
		t.Errorf("model = %q", runner.Model())
	}
}

func TestBatch(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{"one", "two"}}
	sess := newTestSession(runner, session.DefaultFeatures())

	items, err := svc.Batch(context.Background(), sess, "first\n\nsecond\n", nil)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(items) != 2 || items[0].Response.Answer != "one" || items[1].Query != "second" {
		t.Errorf("items = %+v", items)
	}
	if len(sess.History()) != 2 {
		t.Errorf("history = %d items", len(sess.History()))
	}

	if _, err := svc.Batch(context.Background(), sess, "\n \n", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("empty batch error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items, err = svc.Batch(ctx, sess, "a\nb", nil)
	if !errors.Is(err, context.Canceled) || len(items) != 0 {
		t.Errorf("cancelled batch = %+v, %v", items, err)
	}
}

func TestRerunAndFavorites(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{"a", "b", "c"}}
	sess := newTestSession(runner, session.DefaultFeatures())

	first, err := svc.Ask(context.Background(), sess, Request{Question: "count students"}, nil)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := svc.Rerun(context.Background(), sess, first.History.ID, nil); err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}
	if _, err := svc.Rerun(context.Background(), sess, "missing", nil); !errors.Is(err, session.ErrHistoryNotFound) {
		t.Errorf("missing history error = %v", err)
	}

	sess.AddFavorite(first.History.ID)
	if _, err := svc.RunFavorite(context.Background(), sess, 0, nil); err != nil {
		t.Fatalf("RunFavorite failed: %v", err)
	}
	if _, err := svc.RunFavorite(context.Background(), sess, 3, nil); !errors.Is(err, session.ErrFavoriteIndex) {
		t.Errorf("bad index error = %v", err)
	}

	for i, q := range runner.questions {
		if q != "count students" {
			t.Errorf("question %d = %q", i, q)
		}
	}
	if len(runner.questions) != 3 {
		t.Errorf("ran %d questions", len(runner.questions))
	}
}

func TestExport(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{coursesAnswer, "plain"}}
	sess := newTestSession(runner, session.DefaultFeatures())

	withTable, _ := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)
	plain, _ := svc.Ask(context.Background(), sess, Request{Question: "q"}, nil)

	var buf bytes.Buffer
	if err := svc.Export(sess, withTable.MessageID, export.FormatCSV, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if got := buf.String(); !strings.HasPrefix(got, "course,credits\nCS101,3\n") {
		t.Errorf("csv = %q", got)
	}
	if err := svc.Export(sess, plain.MessageID, export.FormatCSV, &buf); !errors.Is(err, export.ErrNoTable) {
		t.Errorf("plain export error = %v", err)
	}
	if err := svc.Export(sess, "missing", export.FormatCSV, &buf); !errors.Is(err, session.ErrMessageNotFound) {
		t.Errorf("missing message error = %v", err)
	}
}

func TestAnalytics(t *testing.T) {
	svc := newTestService()
	runner := &fakeRunner{answers: []string{"a", "b"}}
	sess := newTestSession(runner, session.DefaultFeatures())

	a := svc.Analytics(sess)
	if a.RecordsByTable == nil || a.RecordsByTable.Kind != chart.KindBar || a.RecordsByTable.Title != "Records by Table" {
		t.Fatalf("records chart = %+v", a.RecordsByTable)
	}
	if cats := a.RecordsByTable.Bar.Categories; len(cats) != 2 || cats[0] != "students" {
		t.Errorf("categories = %v", cats)
	}
	if a.QueryTimes != nil {
		t.Errorf("query times without history = %+v", a.QueryTimes)
	}

	svc.Ask(context.Background(), sess, Request{Question: "q1"}, nil)
	svc.Ask(context.Background(), sess, Request{Question: "q2"}, nil)
	a = svc.Analytics(sess)
	if a.QueryTimes == nil || a.QueryTimes.Kind != chart.KindScatter || a.QueryTimes.Title != "Execution Time vs Query #" {
		t.Fatalf("query times = %+v", a.QueryTimes)
	}
	if x := a.QueryTimes.Scatter.X; len(x) != 2 || x[0] != 1 || x[1] != 2 {
		t.Errorf("query numbers = %v", x)
	}
	if a.Usage.QueriesExecuted != 2 {
		t.Errorf("usage = %+v", a.Usage)
	}
}

func TestOpenSampleSession(t *testing.T) {
	manager := session.NewManager(0)
	svc := NewService(nil, manager, Config{
		SampleDBPath: filepath.Join(t.TempDir(), "sample.db"),
		Models:       []string{"llama3-8b-8192"},
	})

	sess, err := svc.Open(context.Background(), db.Source{Kind: db.SourceSample}, session.DefaultFeatures(), "llama3-8b-8192")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer manager.CloseAll()

	if stats := sess.Stats(); stats == nil || stats.TableCount != 5 {
		t.Fatalf("stats = %+v", stats)
	}
	if !strings.Contains(sess.Messages()[0].Content, "with 5 tables") {
		t.Errorf("welcome = %q", sess.Messages()[0].Content)
	}
	if sess.Runner().Model() != "llama3-8b-8192" {
		t.Errorf("model = %q", sess.Runner().Model())
	}
	if got, err := manager.Get(sess.ID()); err != nil || got != sess {
		t.Errorf("session not registered: %v", err)
	}

	if _, err := svc.Open(context.Background(), db.Source{Kind: db.SourceSample}, session.DefaultFeatures(), "gpt-99"); !errors.Is(err, llm.ErrUnknownModel) {
		t.Errorf("unknown model error = %v", err)
	}
	var verr *db.ValidationError
	if _, err := svc.Open(context.Background(), db.Source{Kind: db.SourceServer, Engine: db.DatabaseTypeMySQL}, session.DefaultFeatures(), ""); !errors.As(err, &verr) {
		t.Errorf("invalid source error = %v", err)
	}
}
