package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chart"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/resultset"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrHistoryNotFound = errors.New("history item not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrFavoriteIndex   = errors.New("favorite index out of range")
)

// ClearedMessage replaces the conversation when it is cleared
const ClearedMessage = "Chat history cleared! How can I help you with your database?"

// Runner answers a question against the session's database
type Runner interface {
	Run(ctx context.Context, question string, onStep func(agent.Step)) (*agent.Result, error)
	SetModel(model string)
	Model() string
}

// Features toggles per-session behavior
type Features struct {
	AutoVisualize bool `json:"auto_visualize"`
	ShowSQL       bool `json:"show_sql"`
	EnableExports bool `json:"enable_exports"`
}

// DefaultFeatures returns charts and exports on, SQL display off
func DefaultFeatures() Features {
	return Features{AutoVisualize: true, ShowSQL: false, EnableExports: true}
}

// Message is one chat message
type Message struct {
	ID         string           `json:"id"`
	Role       string           `json:"role"` // user, assistant
	Content    string           `json:"content"`
	SQL        string           `json:"sql,omitempty"`
	Chart      *chart.Chart     `json:"chart,omitempty"`
	Table      *resultset.Table `json:"table,omitempty"`
	Exportable bool             `json:"exportable,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// HistoryItem records one answered question
type HistoryItem struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	Response      string    `json:"response"`
	ExecutionTime float64   `json:"execution_time"` // seconds
}

// Usage summarizes the session's activity
type Usage struct {
	QueriesExecuted int     `json:"queries_executed"`
	FavoritesSaved  int     `json:"favorites_saved"`
	AvgQueryTime    float64 `json:"avg_query_time"`
}

// Options configures a new Session
type Options struct {
	Source        db.Source
	Database      *db.Database
	Runner        Runner
	Features      Features
	Stats         *db.Stats
	HistoryLimit  int
	ResponseChars int
}

// Session is the complete state of one user's conversation with one database
type Session struct {
	id        string
	source    db.Source
	database  *db.Database
	runner    Runner
	createdAt time.Time

	mu            sync.RWMutex
	features      Features
	messages      []Message
	history       []HistoryItem
	favorites     []HistoryItem
	stats         *db.Stats
	lastActive    time.Time
	historyLimit  int
	responseChars int
}

// New creates a session seeded with the welcome message
func New(opts Options) *Session {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.ResponseChars <= 0 {
		opts.ResponseChars = 500
	}
	now := time.Now()
	s := &Session{
		id:            uuid.New().String(),
		source:        opts.Source,
		database:      opts.Database,
		runner:        opts.Runner,
		createdAt:     now,
		features:      opts.Features,
		stats:         opts.Stats,
		lastActive:    now,
		historyLimit:  opts.HistoryLimit,
		responseChars: opts.ResponseChars,
	}
	tables := 0
	if opts.Stats != nil {
		tables = opts.Stats.TableCount
	}
	s.messages = []Message{newMessage("assistant", WelcomeMessage(tables, opts.Source.Kind))}
	return s
}

// WelcomeMessage greets the user with the size of the database
func WelcomeMessage(tableCount int, kind db.SourceKind) string {
	msg := fmt.Sprintf("Hello! I'm your AI database assistant. I can help you analyze your database with %d tables.", tableCount)
	if kind == db.SourceURL {
		msg += " 🎉 Great choice using Neon PostgreSQL!"
	}
	return msg + " What would you like to explore?"
}

func newMessage(role, content string) Message {
	return Message{ID: uuid.New().String(), Role: role, Content: content, CreatedAt: time.Now()}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Source() db.Source      { return s.source }
func (s *Session) Database() *db.Database { return s.database }
func (s *Session) Runner() Runner         { return s.runner }
func (s *Session) CreatedAt() time.Time   { return s.createdAt }

// Features returns the current toggles
func (s *Session) Features() Features {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features
}

// SetFeatures replaces the toggles
func (s *Session) SetFeatures(f Features) {
	s.mu.Lock()
	s.features = f
	s.mu.Unlock()
}

// Touch marks the session as used now
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the last time the session was used
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// AppendMessage stores m, assigning its id and time, and returns the stored copy
func (s *Session) AppendMessage(m Message) Message {
	stored := newMessage(m.Role, m.Content)
	stored.SQL, stored.Chart, stored.Table, stored.Exportable = m.SQL, m.Chart, m.Table, m.Exportable

	s.mu.Lock()
	s.messages = append(s.messages, stored)
	s.mu.Unlock()
	return stored
}

// Messages returns the conversation in order
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Message looks up one message by id
func (s *Session) Message(id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
}

// ClearMessages resets the conversation to a single notice. History and
// favorites are kept.
func (s *Session) ClearMessages() Message {
	m := newMessage("assistant", ClearedMessage)
	s.mu.Lock()
	s.messages = []Message{m}
	s.mu.Unlock()
	return m
}

// RecordQuery appends a history item, truncating the response and dropping
// the oldest item past the limit.
func (s *Session) RecordQuery(query, response string, elapsed time.Duration) HistoryItem {
	if runes := []rune(response); len(runes) > s.responseChars {
		response = string(runes[:s.responseChars]) + "..."
	}
	item := HistoryItem{
		ID:            uuid.New().String(),
		Timestamp:     time.Now(),
		Query:         query,
		Response:      response,
		ExecutionTime: elapsed.Seconds(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, item)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
	return item
}

// History returns the recorded queries, oldest first
func (s *Session) History() []HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryItem(nil), s.history...)
}

// HistoryItem looks up a history item by id
func (s *Session) HistoryItem(id string) (HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.history {
		if h.ID == id {
			return h, nil
		}
	}
	return HistoryItem{}, fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
}

// AddFavorite copies a history item into favorites. Adding the same item
// twice is a no-op reported by added == false.
func (s *Session) AddFavorite(historyID string) (item HistoryItem, added bool, err error) {
	item, err = s.HistoryItem(historyID)
	if err != nil {
		return HistoryItem{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.favorites {
		if f.ID == historyID {
			return f, false, nil
		}
	}
	s.favorites = append(s.favorites, item)
	return item, true, nil
}

// RemoveFavorite removes the favorite at index
func (s *Session) RemoveFavorite(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.favorites) {
		return fmt.Errorf("%w: %d", ErrFavoriteIndex, index)
	}
	s.favorites = append(s.favorites[:index], s.favorites[index+1:]...)
	return nil
}

// Favorites returns the saved queries in insertion order
func (s *Session) Favorites() []HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryItem(nil), s.favorites...)
}

// Usage reports query count, favorites and the mean execution time
func (s *Session) Usage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := Usage{QueriesExecuted: len(s.history), FavoritesSaved: len(s.favorites)}
	if len(s.history) > 0 {
		var total float64
		for _, h := range s.history {
			total += h.ExecutionTime
		}
		u.AvgQueryTime = total / float64(len(s.history))
	}
	return u
}

// Stats returns the cached database statistics
func (s *Session) Stats() *db.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// RefreshStats recollects database statistics
func (s *Session) RefreshStats(ctx context.Context) (*db.Stats, error) {
	if s.database == nil {
		return s.Stats(), nil
	}
	stats, err := s.database.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	return stats, nil
}

// Close releases the database connection
func (s *Session) Close() error {
	if s.database == nil {
		return nil
	}
	return s.database.Close()
}
