package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logging.Logger("audit")

// FileName is the audit log file inside the configured directory.
const FileName = "audit.jsonl"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Target    string                 `json:"target"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Config controls where the log goes and how it rotates.
type Config struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger appends audit entries to a rotating JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
}

// NewLogger creates the log directory if needed and opens the audit file for appending.
func NewLogger(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	filePath := filepath.Join(cfg.Dir, FileName)

	// lumberjack opens lazily; touch the file so permission problems surface here.
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
	}, nil
}

type contextKey string

const (
	userKey   contextKey = "audit-user"
	paramsKey contextKey = "audit-params"
)

// WithUser attaches the acting user to ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithParams attaches request parameters to ctx.
func WithParams(ctx context.Context, params map[string]interface{}) context.Context {
	return context.WithValue(ctx, paramsKey, params)
}

// LogAction logs an audit record for a control action. result is "SUCCESS" or an error code.
func (l *Logger) LogAction(ctx context.Context, action, target, result string, latency time.Duration) {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Target:    target,
		Action:    action,
		Params:    paramsFromContext(ctx),
		Outcome:   outcome(result),
		Code:      result,
		LatencyMs: latency.Milliseconds(),
	}
	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("Failed to marshal audit entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		log.Errorf("Failed to write audit entry: %v", err)
	}
}

func userFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey).(string); ok && user != "" {
		return user
	}
	return "unknown"
}

func paramsFromContext(ctx context.Context) map[string]interface{} {
	if params, ok := ctx.Value(paramsKey).(map[string]interface{}); ok {
		return params
	}
	return make(map[string]interface{})
}

func outcome(result string) string {
	if result == "SUCCESS" {
		return "success"
	}
	return "failure"
}

// Rotate closes the current file and starts a new one, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lj, ok := l.out.(*lumberjack.Logger); ok {
		return lj.Rotate()
	}
	return nil
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}
