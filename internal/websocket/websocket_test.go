package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/messages"
	"dbchat-backend/internal/session"
)

type scriptedRunner struct{}

func (scriptedRunner) Run(ctx context.Context, question string, onStep func(agent.Step)) (*agent.Result, error) {
	step := agent.Step{Tool: "sql_db_list_tables", Observation: "courses", Status: "completed"}
	onStep(step)
	return &agent.Result{
		Answer: "Courses:\n| course | credits |\n|---|---|\n| CS101 | 3 |",
		Steps:  []agent.Step{step},
	}, nil
}

func (scriptedRunner) SetModel(string) {}
func (scriptedRunner) Model() string   { return "test" }

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	ID   string          `json:"id"`
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Session, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := session.NewManager(0)
	sess := session.New(session.Options{
		Source:   db.Source{Kind: db.SourceSample},
		Runner:   scriptedRunner{},
		Features: session.DefaultFeatures(),
	})
	manager.Add(sess)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	handler := NewHandler(hub, chat.NewService(nil, manager, chat.Config{}))
	router := gin.New()
	router.GET("/ws/sessions/:id", handler.HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, sess, hub
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return f
}

func TestJoinAndPing(t *testing.T) {
	srv, sess, hub := newTestServer(t)
	ws := dial(t, srv, sess.ID())

	joined := readFrame(t, ws)
	if joined.Type != messages.TypeSessionJoined || !strings.Contains(string(joined.Data), sess.ID()) {
		t.Fatalf("first frame = %+v", joined)
	}

	if err := ws.WriteJSON(map[string]string{"type": "ping", "id": "p1"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	pong := readFrame(t, ws)
	if pong.Type != messages.TypePong || pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}
	if hub.GetSessionConnectionCount(sess.ID()) != 1 {
		t.Errorf("room size = %d", hub.GetSessionConnectionCount(sess.ID()))
	}

	ws.WriteJSON(map[string]string{"type": "dance"})
	if f := readFrame(t, ws); f.Type != messages.TypeError || !strings.Contains(string(f.Data), messages.CodeUnknownType) {
		t.Errorf("unknown type reply = %+v", f)
	}
}

func TestAskStreamsStepsAndAnswer(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	ws := dial(t, srv, sess.ID())
	readFrame(t, ws)

	ws.WriteJSON(map[string]interface{}{
		"type": "ask",
		"id":   "q1",
		"data": map[string]string{"question": "list courses"},
	})

	step := readFrame(t, ws)
	if step.Type != messages.TypeAgentStep || step.ID != "q1" {
		t.Fatalf("step frame = %+v", step)
	}

	answer := readFrame(t, ws)
	if answer.Type != messages.TypeAssistantResponse {
		t.Fatalf("answer frame = %+v", answer)
	}
	var resp chat.Response
	if err := json.Unmarshal(answer.Data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Table == nil || resp.Chart == nil || resp.Chart.Title != "credits by course" {
		t.Errorf("response = %+v", resp)
	}
	if len(sess.History()) != 1 {
		t.Errorf("history = %d", len(sess.History()))
	}
}

func TestAskInvalidRequest(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	ws := dial(t, srv, sess.ID())
	readFrame(t, ws)

	ws.WriteJSON(map[string]interface{}{"type": "ask", "data": map[string]string{"question": "  "}})
	f := readFrame(t, ws)
	if f.Type != messages.TypeError || !strings.Contains(string(f.Data), messages.CodeInvalidRequest) {
		t.Errorf("frame = %+v", f)
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial to unknown session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %+v", resp)
	}
}
