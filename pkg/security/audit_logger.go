package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of security event
type EventType string

const (
	EventUploadRejected     EventType = "upload_rejected"
	EventMalwareDetected    EventType = "malware_detected"
	EventRateLimitTriggered EventType = "rate_limit_triggered"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventScopeDenied        EventType = "scope_denied"
	EventCandidateToken     EventType = "candidate_token_rejected"
	EventServerError        EventType = "server_error"
)

// Severity is derived from EventType, never supplied by callers
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

var eventSeverity = map[EventType]Severity{
	EventUploadRejected:     SeverityWARN,
	EventRateLimitTriggered: SeverityWARN,
	EventCandidateToken:     SeverityWARN,
	EventUnauthorizedAccess: SeverityHIGH,
	EventScopeDenied:        SeverityHIGH,
	EventServerError:        SeverityHIGH,
	EventMalwareDetected:    SeverityCRITICAL,
}

func SeverityOf(ev EventType) Severity {
	if s, ok := eventSeverity[ev]; ok {
		return s
	}
	return SeverityINFO
}

// SecurityEvent represents a security-related event to be logged
type SecurityEvent struct {
	Timestamp    time.Time              `json:"timestamp"`
	Service      string                 `json:"service"`
	Environment  string                 `json:"env"`
	Severity     Severity               `json:"severity"`
	Event        EventType              `json:"event"`
	SubjectType  string                 `json:"subject_type,omitempty"`  // "email", "ip", "job", "token"
	SubjectValue string                 `json:"subject_value,omitempty"` // Masked or hashed for PII
	IP           string                 `json:"ip,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger writes security events to zap and, optionally, to a store.
type AuditLogger struct {
	log         *zap.Logger
	serviceName string
	environment string
	persist     func(ctx context.Context, event SecurityEvent) error
}

func NewAuditLogger(log *zap.Logger, serviceName, environment string) *AuditLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLogger{log: log.Named("security"), serviceName: serviceName, environment: environment}
}

// SetPersistFunc sets the function to persist events to database
func (al *AuditLogger) SetPersistFunc(f func(ctx context.Context, event SecurityEvent) error) {
	al.persist = f
}

func (al *AuditLogger) Log(ctx context.Context, event SecurityEvent) {
	if al == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = al.serviceName
	event.Environment = al.environment
	event.Severity = SeverityOf(event.Event)
	event.SubjectValue = maskValue(event.SubjectType, event.SubjectValue)

	level := zapcore.WarnLevel
	switch event.Severity {
	case SeverityINFO:
		level = zapcore.InfoLevel
	case SeverityHIGH, SeverityCRITICAL:
		level = zapcore.ErrorLevel
	}

	fields := []zap.Field{
		zap.String("event", string(event.Event)),
		zap.String("severity", string(event.Severity)),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType), zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	al.log.Log(level, string(event.Event), fields...)

	if al.persist != nil {
		go func(e SecurityEvent) {
			// request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := al.persist(ctx, e); err != nil {
				al.log.Error("Failed to persist security event", zap.Error(err))
			}
		}(event)
	}
}

// MaskEmail masks an email for logging (e.g., "j***@example.com")
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if len(email) < 3 || at < 0 {
		return "***"
	}
	if at <= 1 {
		return "***" + email[at:]
	}
	return email[:1] + "***" + email[at:]
}

// HashValue creates a short SHA256 digest of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}

func maskValue(subjectType, value string) string {
	switch subjectType {
	case "", "ip", "job":
		return value
	case "email":
		return MaskEmail(value)
	default:
		return HashValue(value)
	}
}

// detailsJSON renders details for storage; empty details are stored as JSON null.
func detailsJSON(d map[string]interface{}) string {
	if len(d) == 0 {
		return "null"
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "null"
	}
	return string(b)
}
