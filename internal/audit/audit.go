// Package audit carries security-relevant authentication events to a
// pluggable sink without blocking the request path.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	TypeLoginSuccess     = "login.success"
	TypeLoginFailure     = "login.failure"
	TypeLoginLocked      = "login.locked"
	TypeTwoFactorPending = "login.2fa_pending"
	TypeTwoFactorSuccess = "2fa.success"
	TypeTwoFactorFailure = "2fa.failure"
	TypeTwoFactorEnroll  = "2fa.enrolled"
	TypeBackupCodesReset = "2fa.backup_codes_regenerated"
	TypeRefreshSuccess   = "refresh.success"
	TypeRefreshReuse     = "refresh.reuse_detected"
	TypeLogout           = "logout"
	TypeLogoutAll        = "logout.all"
	TypeSessionRevoked   = "session.revoked"
	TypeTokenRevoked     = "token.revoked"
)

// Event is one security-relevant occurrence. UserID is present whenever
// the subject is known; failures before identification carry only the
// attempted identifier in Metadata.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives dispatched events. Implementations must not panic; a
// failing sink loses events, it never fails a login.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events into a buffered channel, for callers that
// want to consume the stream themselves.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line, suitable for piping
// into a log shipper.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
