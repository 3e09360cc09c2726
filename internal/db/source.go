package db

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// SourceKind selects how a session reaches its database.
type SourceKind string

const (
	SourceSample SourceKind = "sample"
	SourceUpload SourceKind = "upload"
	SourceServer SourceKind = "server"
	SourceURL    SourceKind = "url"
)

// Source describes one of four ways to reach a database. Only the fields of
// the selected Kind are read:
//
//	sample: Path (filled in by the server from configuration)
//	upload: Path of a stored SQLite file
//	server: Engine, Host, Port, Username, Password, Database
//	url:    URL (PostgreSQL connection URL)
type Source struct {
	Kind     SourceKind   `json:"kind"`
	Engine   DatabaseType `json:"engine,omitempty"`
	Host     string       `json:"host,omitempty"`
	Port     int          `json:"port,omitempty"`
	Username string       `json:"username,omitempty"`
	Password string       `json:"password,omitempty"`
	Database string       `json:"database,omitempty"`
	URL      string       `json:"url,omitempty"`
	Path     string       `json:"-"`
}

// SQLiteExtensions are the accepted upload file extensions.
var SQLiteExtensions = []string{".db", ".sqlite", ".sqlite3"}

var ErrUnsupportedSource = errors.New("unsupported database source")

// ValidationError reports the first invalid field of a Source.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Validate checks a Source without touching the network or filesystem.
func Validate(src Source) error {
	switch src.Kind {
	case SourceSample:
		if src.Path == "" {
			return invalid("path", "sample database path is not configured")
		}
		return nil
	case SourceUpload:
		if src.Path == "" {
			return invalid("path", "an uploaded database file is required")
		}
		if !HasSQLiteExtension(src.Path) {
			return invalid("path", "file must end in .db, .sqlite or .sqlite3")
		}
		return nil
	case SourceServer:
		if src.Engine != DatabaseTypeMySQL && src.Engine != DatabaseTypePostgreSQL {
			return invalid("engine", "must be mysql or postgresql")
		}
		switch {
		case src.Host == "":
			return invalid("host", "is required")
		case src.Username == "":
			return invalid("username", "is required")
		case src.Password == "":
			return invalid("password", "is required")
		case src.Database == "":
			return invalid("database", "is required")
		case src.Port < 0 || src.Port > 65535:
			return invalid("port", "must be between 1 and 65535")
		}
		return nil
	case SourceURL:
		return ValidatePostgresURL(src.URL)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Kind)
}

// HasSQLiteExtension reports whether name ends in an accepted extension.
func HasSQLiteExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SQLiteExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ValidatePostgresURL requires a postgres:// or postgresql:// URL with host,
// username and password.
func ValidatePostgresURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return invalid("url", "is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("url", "invalid URL format: "+err.Error())
	}
	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return invalid("url", "URL must start with 'postgresql://' or 'postgres://'")
	}
	if u.Hostname() == "" {
		return invalid("url", "URL must include a hostname")
	}
	if u.User == nil || u.User.Username() == "" {
		return invalid("url", "URL must include a username")
	}
	if pw, ok := u.User.Password(); !ok || pw == "" {
		return invalid("url", "URL must include a password")
	}
	if _, err := pq.ParseURL(raw); err != nil {
		return invalid("url", err.Error())
	}
	return nil
}

// NormalizePostgresURL rewrites the postgres:// scheme to postgresql://.
func NormalizePostgresURL(raw string) string {
	if strings.HasPrefix(raw, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(raw, "postgres://")
	}
	return raw
}

// URLInfo is the displayable part of a connection URL.
type URLInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	SSL      bool   `json:"ssl"`
}

// DescribeURL validates raw and extracts host, port, database and whether
// sslmode=require is set. The password is never returned.
func DescribeURL(raw string) (*URLInfo, error) {
	if err := ValidatePostgresURL(raw); err != nil {
		return nil, err
	}
	u, _ := url.Parse(raw)
	info := &URLInfo{
		Host:     u.Hostname(),
		Port:     DatabaseTypePostgreSQL.DefaultPort(),
		Database: strings.TrimPrefix(u.Path, "/"),
		SSL:      u.Query().Get("sslmode") == "require",
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			info.Port = n
		}
	}
	return info, nil
}

// ResolvedEngine returns the engine the source connects to.
func (s Source) ResolvedEngine() DatabaseType {
	switch s.Kind {
	case SourceServer:
		return s.Engine
	case SourceURL:
		return DatabaseTypePostgreSQL
	}
	return DatabaseTypeSQLite
}

// Describe returns a one-line label without credentials.
func (s Source) Describe() string {
	switch s.Kind {
	case SourceSample:
		return "Sample university database (SQLite)"
	case SourceUpload:
		return "Uploaded SQLite file " + filepath.Base(s.Path)
	case SourceServer:
		port := s.Port
		if port == 0 {
			port = s.Engine.DefaultPort()
		}
		return fmt.Sprintf("%s %s@%s:%d/%s", s.Engine, s.Username, s.Host, port, s.Database)
	case SourceURL:
		if info, err := DescribeURL(s.URL); err == nil {
			return fmt.Sprintf("postgresql %s:%d/%s", info.Host, info.Port, info.Database)
		}
		return "postgresql (connection URL)"
	}
	return string(s.Kind)
}
