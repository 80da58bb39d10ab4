// Package audit appends security-relevant decisions to a JSONL trail:
// every device command, every policy denial, every skill invocation.
// One JSON object per line so the trail can be grepped or replayed.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind is the audit event type.
type Kind string

const (
	CommandExecuted Kind = "command_executed"
	CommandDenied   Kind = "command_denied"
	GatewayDenied   Kind = "gateway_denied"
	MissionStarted  Kind = "mission_started"
	MissionDenied   Kind = "mission_denied"
	SkillExecuted   Kind = "skill_executed"
	SkillFailed     Kind = "skill_failed"
)

// Event is one audit entry.
type Event struct {
	Timestamp int64  `json:"ts"` // Unix milliseconds
	Kind      Kind   `json:"event"`
	Target    string `json:"target,omitempty"` // entity, skill or mission ID
	Action    string `json:"action,omitempty"` // command verb or request summary
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
}

// Log is an append-only audit trail. The zero-value-like Log returned by
// NewNop discards everything; a Log is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      io.WriteCloser
	logger *zap.Logger
}

// Open appends to the audit file at path, creating it if needed.
func Open(path string, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{w: f, logger: logger}, nil
}

// NewNop returns a Log that records nothing.
func NewNop() *Log {
	return &Log{logger: zap.NewNop()}
}

// Record appends e to the trail. Failures are logged, never propagated:
// auditing must not take the system down.
func (l *Log) Record(e Event) {
	if l == nil || l.w == nil {
		return
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.logger.Warn("audit event not serializable", zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		l.logger.Warn("audit write failed", zap.Error(err))
	}
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	err := l.w.Close()
	l.w = nil
	return err
}
