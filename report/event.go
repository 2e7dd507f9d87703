package report

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the finite set of events the coordinator and
// semantic pipeline may emit.
type EventType string

const (
	EventAuditStarted           EventType = "AUDIT_STARTED"
	EventAIAStarted              EventType = "AIA_STARTED"
	EventAIACompleted            EventType = "AIA_COMPLETED"
	EventSemanticAuditStarted    EventType = "SEMANTIC_AUDIT_STARTED"
	EventSemanticAuditCompleted  EventType = "SEMANTIC_AUDIT_COMPLETED"
	EventSemanticPassStarted     EventType = "SEMANTIC_PASS_STARTED"
	EventSemanticPassCompleted   EventType = "SEMANTIC_PASS_COMPLETED"
	EventFindingDiscovered       EventType = "FINDING_DISCOVERED"
	EventLLMExecutionStarted     EventType = "LLM_EXECUTION_STARTED"
	EventLLMExecutionCompleted   EventType = "LLM_EXECUTION_COMPLETED"
	EventSealTrustStarted        EventType = "SEAL_TRUST_STARTED"
	EventSealTrustCompleted      EventType = "SEAL_TRUST_COMPLETED"
	EventAuditCompleted          EventType = "AUDIT_COMPLETED"
	EventAuditFailed             EventType = "AUDIT_FAILED"
)

// Event is an immutable observational record.
type Event struct {
	EventID   string
	AuditID   string
	EventType EventType
	Timestamp time.Time
	Details   map[string]interface{}
}

// Emitter is the observability capability passes and the coordinator hold
// by interface, not as global state. Emitting is strictly observational:
// a failing Emitter MUST NOT alter pipeline execution, so every caller in
// this module treats Emit's return value as advisory-only and never
// propagates it.
type Emitter interface {
	Emit(Event)
}

// NullEmitter discards every event. It is the default when no emitter is
// configured.
type NullEmitter struct{}

func (NullEmitter) Emit(Event) {}

// NewEvent stamps a fresh Event with a uuid4 EventID and the current UTC
// time, grounded on the pack's audit-logger convention of minting a new
// UUID per recorded event.
func NewEvent(auditID string, eventType EventType, details map[string]interface{}, now time.Time) Event {
	return Event{
		EventID:   uuid.New().String(),
		AuditID:   auditID,
		EventType: eventType,
		Timestamp: now.UTC(),
		Details:   details,
	}
}

// LogEmitter writes each event as a single structured log line through
// the standard library logger, matching the teacher's plain stdlib log
// idiom rather than introducing a structured-logging dependency.
type LogEmitter struct {
	Logger *log.Logger
}

func NewLogEmitter(logger *log.Logger) *LogEmitter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogEmitter{Logger: logger}
}

func (e *LogEmitter) Emit(ev Event) {
	defer func() {
		// Emitter failures must be caught and discarded inside the core.
		_ = recover()
	}()
	e.Logger.Printf("AUDIT event=%s audit_id=%s event_id=%s details=%v", ev.EventType, ev.AuditID, ev.EventID, ev.Details)
}

// FanOut dispatches every Emit call to all of its member emitters,
// catching and discarding any panic from a member so one broken sink can
// never take down the audit.
type FanOut struct {
	Emitters []Emitter
}

func (f FanOut) Emit(ev Event) {
	for _, e := range f.Emitters {
		func() {
			defer func() { _ = recover() }()
			e.Emit(ev)
		}()
	}
}
