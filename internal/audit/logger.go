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

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/fhc/internal/fh"
)

// FileName is the active audit file inside the audit directory.
const FileName = "audit.jsonl"

// Entry is one audit record.
type Entry struct {
	Timestamp  time.Time              `json:"ts"`
	User       string                 `json:"user"`
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Outcome    string                 `json:"outcome"`
	Code       string                 `json:"code"`
	ActionCode fh.ActionCode          `json:"actionCode"`
	Error      string                 `json:"error,omitempty"`
	LatencyMs  int64                  `json:"latencyMs"`
}

// Options configures rotation.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger appends audit entries to a rotating file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
	rotate   func() error
	now      func() time.Time
}

// NewLogger opens the audit file in opts.Dir, creating the directory.
func NewLogger(opts Options) (*Logger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	filePath := filepath.Join(opts.Dir, FileName)
	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return &Logger{filePath: filePath, out: lj, rotate: lj.Rotate, now: time.Now}, nil
}

type userKey struct{}

// WithUser returns a context carrying the acting user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the acting user, or "unknown".
func UserFrom(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return "unknown"
}

// LogAction records the outcome of a control action on target.
func (l *Logger) LogAction(ctx context.Context, action, target string, params map[string]interface{}, err error, latency time.Duration) {
	entry := Entry{
		Timestamp:  l.now().UTC(),
		User:       UserFrom(ctx),
		Target:     target,
		Action:     action,
		Params:     params,
		Outcome:    "SUCCESS",
		ActionCode: fh.Action(err),
		LatencyMs:  latency.Milliseconds(),
	}
	entry.Code = entry.ActionCode.String()
	if err != nil {
		entry.Outcome = "ERROR"
		entry.Error = err.Error()
	}
	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry Entry) {
	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotate == nil {
		return nil
	}
	return l.rotate()
}

// Close closes the audit file. Later entries are dropped.
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

// GetFilePath returns the path of the active audit file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}
