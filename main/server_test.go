package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/config"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/session"
)

const coursesAnswer = "Here are the courses:\n| course | credits |\n|---|---|\n| CS101 | 3 |\n| MATH201 | 4 |"

type stubRunner struct {
	mu     sync.Mutex
	answer string
	err    error
	model  string
}

func (s *stubRunner) Run(ctx context.Context, question string, onStep func(agent.Step)) (*agent.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if onStep != nil {
		onStep(agent.Step{Tool: "sql_db_query", Status: "completed"})
	}
	return &agent.Result{Answer: s.answer}, nil
}

func (s *stubRunner) SetModel(model string) { s.model = model }
func (s *stubRunner) Model() string         { return s.model }

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.GinMode = "test"
	c.SampleDBPath = filepath.Join(dir, "sample.db")
	c.UploadDir = filepath.Join(dir, "uploads")
	app := NewApp(c, nil)
	t.Cleanup(app.Chat.Sessions().CloseAll)
	return app
}

func addStubSession(app *App, runner *stubRunner) *session.Session {
	s := session.New(session.Options{
		Source:   db.Source{Kind: db.SourceSample, Path: app.Config.SampleDBPath},
		Runner:   runner,
		Features: session.DefaultFeatures(),
	})
	app.Chat.Sessions().Add(s)
	return s
}

func do(app *App, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHealthAndOptions(t *testing.T) {
	app := newTestApp(t)

	if w := do(app, http.MethodGet, "/api/health", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w := do(app, http.MethodGet, "/api/options", nil)
	var opts struct {
		Models       []string `json:"models"`
		DefaultModel string   `json:"default_model"`
		Templates    []struct {
			Name string `json:"name"`
		} `json:"templates"`
	}
	decode(t, w, &opts)
	if len(opts.Models) != 3 || opts.DefaultModel != "llama3-8b-8192" || len(opts.Templates) != 5 {
		t.Errorf("options = %+v", opts)
	}
}

func TestSampleSessionLifecycle(t *testing.T) {
	app := newTestApp(t)

	w := do(app, http.MethodPost, "/api/sessions", obj{"source": obj{"kind": "sample"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var view SessionView
	decode(t, w, &view)
	if view.Stats == nil || view.Stats.TableCount != 5 || len(view.Messages) != 1 {
		t.Fatalf("view = %+v", view)
	}
	if view.Engine != db.DatabaseTypeSQLite || view.Model != "llama3-8b-8192" || !view.Features.AutoVisualize {
		t.Errorf("view = %+v", view)
	}

	if w := do(app, http.MethodGet, "/api/sessions", nil); !strings.Contains(w.Body.String(), view.ID) {
		t.Errorf("list = %s", w.Body.String())
	}
	if w := do(app, http.MethodPost, "/api/sessions/"+view.ID+"/stats/refresh", nil); w.Code != http.StatusOK {
		t.Errorf("refresh = %d %s", w.Code, w.Body.String())
	}
	if w := do(app, http.MethodDelete, "/api/sessions/"+view.ID, nil); w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(app, http.MethodGet, "/api/sessions/"+view.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name string
		body obj
		want int
	}{
		{"missing host", obj{"source": obj{"kind": "server", "engine": "mysql"}}, http.StatusBadRequest},
		{"bad url", obj{"source": obj{"kind": "url", "url": "mysql://u:p@h/db"}}, http.StatusBadRequest},
		{"unknown kind", obj{"source": obj{"kind": "ftp"}}, http.StatusBadRequest},
		{"unknown model", obj{"source": obj{"kind": "sample"}, "model": "gpt-99"}, http.StatusBadRequest},
		{"path traversal", obj{"source": obj{"kind": "upload"}, "upload_id": "../x.db"}, http.StatusBadRequest},
		{"missing upload", obj{"source": obj{"kind": "upload"}, "upload_id": "nope.db"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(app, http.MethodPost, "/api/sessions", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUploadAndOpen(t *testing.T) {
	app := newTestApp(t)
	src := filepath.Join(t.TempDir(), "mine.sqlite")
	if err := db.EnsureSampleDatabase(context.Background(), src); err != nil {
		t.Fatalf("EnsureSampleDatabase failed: %v", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	upload := func(name string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("file", name)
		fw.Write(data)
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		return w
	}

	if w := upload("notes.txt"); w.Code != http.StatusBadRequest {
		t.Errorf("txt upload = %d", w.Code)
	}
	w := upload("mine.sqlite")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	var up struct {
		UploadID string `json:"upload_id"`
	}
	decode(t, w, &up)
	if !strings.HasSuffix(up.UploadID, ".sqlite") {
		t.Errorf("upload id = %q", up.UploadID)
	}

	w = do(app, http.MethodPost, "/api/sessions", obj{"source": obj{"kind": "upload"}, "upload_id": up.UploadID})
	if w.Code != http.StatusCreated {
		t.Fatalf("open upload = %d %s", w.Code, w.Body.String())
	}
	var view SessionView
	decode(t, w, &view)
	if view.Kind != db.SourceUpload || view.Stats.TableCount != 5 {
		t.Errorf("view = %+v", view)
	}
}

func TestAskHistoryFavoritesExport(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{answer: coursesAnswer}
	s := addStubSession(app, runner)
	base := "/api/sessions/" + s.ID()

	w := do(app, http.MethodPost, base+"/ask", obj{"question": "list courses"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask = %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		MessageID string `json:"message_id"`
		Chart     struct {
			Kind  string `json:"kind"`
			Title string `json:"title"`
		} `json:"chart"`
		History session.HistoryItem `json:"history"`
	}
	decode(t, w, &resp)
	if resp.Chart.Kind != "bar" || resp.Chart.Title != "credits by course" {
		t.Errorf("chart = %+v", resp.Chart)
	}

	if w := do(app, http.MethodGet, base+"/history", nil); !strings.Contains(w.Body.String(), "list courses") {
		t.Errorf("history = %s", w.Body.String())
	}

	if w := do(app, http.MethodPost, base+"/favorites", obj{"history_id": resp.History.ID}); w.Code != http.StatusCreated {
		t.Errorf("add favorite = %d", w.Code)
	}
	if w := do(app, http.MethodPost, base+"/favorites", obj{"history_id": resp.History.ID}); w.Code != http.StatusOK {
		t.Errorf("duplicate favorite = %d", w.Code)
	}
	if w := do(app, http.MethodPost, base+"/favorites", obj{"history_id": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown favorite = %d", w.Code)
	}
	if w := do(app, http.MethodPost, base+"/favorites/0/run", nil); w.Code != http.StatusOK {
		t.Errorf("run favorite = %d %s", w.Code, w.Body.String())
	}
	if w := do(app, http.MethodPost, base+"/history/"+resp.History.ID+"/rerun", nil); w.Code != http.StatusOK {
		t.Errorf("rerun = %d", w.Code)
	}
	if w := do(app, http.MethodDelete, base+"/favorites/5", nil); w.Code != http.StatusNotFound {
		t.Errorf("remove out of range = %d", w.Code)
	}
	if w := do(app, http.MethodDelete, base+"/favorites/x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("remove bad index = %d", w.Code)
	}
	if w := do(app, http.MethodDelete, base+"/favorites/0", nil); w.Code != http.StatusOK {
		t.Errorf("remove favorite = %d", w.Code)
	}

	w = do(app, http.MethodGet, base+"/messages/"+resp.MessageID+"/export?format=csv", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "course,credits\n") {
		t.Errorf("csv export = %d %q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "query_result_") || !strings.Contains(cd, ".csv") {
		t.Errorf("content disposition = %q", cd)
	}
	if w := do(app, http.MethodGet, base+"/messages/"+resp.MessageID+"/export?format=xlsx", nil); w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Errorf("xlsx export = %d", w.Code)
	}
	if w := do(app, http.MethodGet, base+"/messages/"+resp.MessageID+"/export?format=pdf", nil); w.Code != http.StatusBadRequest {
		t.Errorf("pdf export = %d", w.Code)
	}
	welcome := s.Messages()[0].ID
	if w := do(app, http.MethodGet, base+"/messages/"+welcome+"/export", nil); w.Code != http.StatusConflict {
		t.Errorf("export without table = %d", w.Code)
	}

	if w := do(app, http.MethodGet, base+"/analytics", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Execution Time vs Query #") {
		t.Errorf("analytics = %d %s", w.Code, w.Body.String())
	}

	if w := do(app, http.MethodDelete, base+"/messages", nil); !strings.Contains(w.Body.String(), session.ClearedMessage) {
		t.Errorf("clear = %s", w.Body.String())
	}
}

func TestAskErrors(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	s := addStubSession(app, runner)
	base := "/api/sessions/" + s.ID()

	if w := do(app, http.MethodPost, base+"/ask", obj{"question": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty question = %d", w.Code)
	}
	if w := do(app, http.MethodPost, base+"/ask", obj{"mode": "template", "template": "nope"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown template = %d", w.Code)
	}
	if w := do(app, http.MethodPost, "/api/sessions/missing/ask", obj{"question": "q"}); w.Code != http.StatusNotFound {
		t.Errorf("missing session = %d", w.Code)
	}

	runner.err = errors.New("model unavailable")
	if w := do(app, http.MethodPost, base+"/ask", obj{"question": "q"}); w.Code != http.StatusBadGateway {
		t.Errorf("agent failure = %d", w.Code)
	}
	msgs := s.Messages()
	if last := msgs[len(msgs)-1].Content; last != "❌ Error processing query: model unavailable" {
		t.Errorf("error message = %q", last)
	}
}

func TestBatchAndFeatures(t *testing.T) {
	app := newTestApp(t)
	s := addStubSession(app, &stubRunner{answer: "42"})
	base := "/api/sessions/" + s.ID()

	w := do(app, http.MethodPost, base+"/batch", obj{"queries": "one\n\ntwo"})
	var out struct {
		Results []struct {
			Query string `json:"query"`
		} `json:"results"`
	}
	decode(t, w, &out)
	if w.Code != http.StatusOK || len(out.Results) != 2 || out.Results[1].Query != "two" {
		t.Errorf("batch = %d %s", w.Code, w.Body.String())
	}
	if w := do(app, http.MethodPost, base+"/batch", obj{"queries": " \n "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d", w.Code)
	}

	w = do(app, http.MethodPut, base+"/features", obj{"auto_visualize": false, "show_sql": true, "enable_exports": false})
	if w.Code != http.StatusOK || s.Features().AutoVisualize || !s.Features().ShowSQL {
		t.Errorf("features = %d %+v", w.Code, s.Features())
	}
	if w := do(app, http.MethodGet, base+"/messages/x/export", nil); w.Code != http.StatusForbidden {
		t.Errorf("export with exports off = %d", w.Code)
	}
}

func TestREPL(t *testing.T) {
	app := newTestApp(t)
	s := addStubSession(app, &stubRunner{answer: coursesAnswer})

	var out bytes.Buffer
	r := &repl{chat: app.Chat, sess: s, out: &out}
	in := strings.NewReader("list courses\n\\history\n\\stats\n\\clear\n\\quit\nnever asked\n")
	if err := r.run(context.Background(), in); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Hello! I'm your AI database assistant", "CS101", "📊 bar: credits by course", "list courses", "No statistics available.", session.ClearedMessage} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never asked") || len(s.History()) != 1 {
		t.Errorf("input after \\quit was processed")
	}
}

// blockingRunner holds its single Run until release is closed
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, question string, onStep func(agent.Step)) (*agent.Result, error) {
	close(b.started)
	<-b.release
	return &agent.Result{Answer: "done"}, nil
}

func (b *blockingRunner) SetModel(model string) {}
func (b *blockingRunner) Model() string         { return "blocking" }

func TestServeDrainsAsksBeforeClosingSessions(t *testing.T) {
	app := newTestApp(t)
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s := session.New(session.Options{
		Source:   db.Source{Kind: db.SourceSample, Path: app.Config.SampleDBPath},
		Runner:   runner,
		Features: session.DefaultFeatures(),
	})
	app.Chat.Sessions().Add(s)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- app.Serve(ctx, ln) }()

	asked := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+addr+"/api/sessions/"+s.ID()+"/ask", "application/json", strings.NewReader(`{"question":"slow"}`))
		if err != nil {
			asked <- 0
			return
		}
		resp.Body.Close()
		asked <- resp.StatusCode
	}()

	<-runner.started
	cancel()
	// Shutdown has begun once the listener refuses connections
	for {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			break
		}
		conn.Close()
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := app.Chat.Sessions().Get(s.ID()); err != nil {
		t.Errorf("session closed while an ask was in flight: %v", err)
	}

	close(runner.release)
	if code := <-asked; code != http.StatusOK {
		t.Errorf("ask status = %d", code)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve failed: %v", err)
	}
	if n := app.Chat.Sessions().Len(); n != 0 {
		t.Errorf("sessions after shutdown = %d", n)
	}
}

// obj is shorthand for JSON request bodies
type obj = map[string]interface{}
