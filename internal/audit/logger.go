// Package audit provides an audit trail for security-sensitive engine
// events.
//
// Logged events include authentication failures and lockouts, IP allow-list
// rejections, hierarchy violations, and configuration validation outcomes.
// Events are structured JSON, buffered asynchronously, and optionally
// chained with HMAC so tampering with the log file is detectable: each
// record carries the HMAC of its payload plus the previous record's HMAC.
//
// Example log entry:
//
//	{"timestamp": "2026-08-30T10:30:00Z", "event_type": "security:Lockout",
//	 "tenant_id": "t1", "principal": "t1:u1", "result": "failure"}
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType identifies the kind of audit event.
type EventType string

// Event types for isolation and security operations.
const (
	EventAuthFailure        EventType = "security:AuthFailure"
	EventAuthSuccess        EventType = "security:AuthSuccess"
	EventLockout            EventType = "security:Lockout"
	EventLockoutExpired     EventType = "security:LockoutExpired"
	EventIPRejected         EventType = "security:IPRejected"
	EventHierarchyViolation EventType = "isolation:HierarchyViolation"
	EventContextMissing     EventType = "isolation:ContextMissing"
	EventConfigValidated    EventType = "config:Validated"
	EventConfigRejected     EventType = "config:Rejected"
)

// Result represents the outcome of an operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event is a single audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Extra     map[string]string `json:"extra,omitempty"`
	ID        string            `json:"id"`
	EventType EventType         `json:"event_type"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Principal string            `json:"principal,omitempty"`
	SourceIP  string            `json:"source_ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Result    Result            `json:"result"`
	Message   string            `json:"message,omitempty"`
	Integrity string            `json:"integrity,omitempty"`
}

// Logger buffers and persists audit events.
type Logger struct {
	buffer   chan *Event
	file     *os.File
	secret   []byte
	prevHMAC string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Config holds configuration for the audit logger.
type Config struct {
	FilePath        string
	BufferSize      int
	IntegritySecret string
}

const defaultBufferSize = 1000

// NewLogger creates an audit logger. An empty FilePath logs through zerolog
// only; a non-empty IntegritySecret enables the HMAC chain.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	l := &Logger{
		buffer: make(chan *Event, cfg.BufferSize),
	}

	if cfg.IntegritySecret != "" {
		l.secret = []byte(cfg.IntegritySecret)
	}

	if cfg.FilePath != "" {
		//nolint:gosec // G302: audit files may need to be readable by collectors
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, err
		}

		l.file = f
	}

	return l, nil
}

// Start begins processing buffered events.
func (l *Logger) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)

	go l.processEvents(ctx)
}

// Stop flushes remaining events and closes the log file.
func (l *Logger) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	close(l.buffer)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
	}
}

// Log queues an audit event. A full buffer drops the event rather than
// blocking the request path.
func (l *Logger) Log(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.buffer <- event:
	default:
		log.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.EventType)).
			Msg("Audit buffer full, dropping event")
	}
}

func (l *Logger) processEvents(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case event, ok := <-l.buffer:
			if !ok {
				return
			}

			l.writeEvent(event)
		case <-ctx.Done():
			// Drain what is already buffered before exiting
			for {
				select {
				case event, ok := <-l.buffer:
					if !ok {
						return
					}

					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.secret != nil {
		event.Integrity = l.chainHMAC(event)
		l.prevHMAC = event.Integrity
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to marshal audit event")

		return
	}

	log.Info().
		Str("event_type", string(event.EventType)).
		Str("tenant_id", event.TenantID).
		Str("result", string(event.Result)).
		Msg("Audit event")

	if l.file != nil {
		if _, err := l.file.Write(append(data, '\n')); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to write audit event")
		}
	}
}

// chainHMAC computes the HMAC of the event payload chained with the
// previous record's HMAC.
func (l *Logger) chainHMAC(event *Event) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(event.ID))
	mac.Write([]byte(event.EventType))
	mac.Write([]byte(event.TenantID))
	mac.Write([]byte(event.Principal))
	mac.Write([]byte(event.Timestamp.Format(time.RFC3339Nano)))
	mac.Write([]byte(l.prevHMAC))

	return hex.EncodeToString(mac.Sum(nil))
}
