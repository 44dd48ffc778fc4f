package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"barrio-alarm/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Redacted replaces sensitive values in audit detail maps.
const Redacted = "[REDACTED]"

// redactedKeys are detail keys whose values never reach durable audit
// storage in the clear.
var redactedKeys = map[string]bool{
	"conditions":  true,
	"medications": true,
	"allergies":   true,
}

// Sink appends structured audit entries to durable storage. Entries are
// never mutated after write.
type Sink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSink creates the audit sink.
func NewSink(db *sql.DB, logger *zap.Logger) *Sink {
	return &Sink{db: db, logger: logger}
}

// EnsureSchema creates the backing table.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id            TEXT PRIMARY KEY,
			ts            TIMESTAMPTZ NOT NULL,
			audit_type    TEXT NOT NULL,
			group_id      TEXT,
			group_name    TEXT,
			actor_phone   TEXT,
			actor_name    TEXT,
			target_phone  TEXT,
			target_name   TEXT,
			detail        JSONB NOT NULL,
			audit_version TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit_entries table: %w", err)
	}
	return nil
}

// Append writes one entry. The detail map goes through a redaction pass
// first; the caller's map is not modified.
func (s *Sink) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Version = models.AuditVersion

	detail, err := json.Marshal(redactDetail(entry.Detail))
	if err != nil {
		return fmt.Errorf("failed to marshal audit detail: %w", err)
	}

	var targetPhone, targetName sql.NullString
	if entry.Target != nil {
		targetPhone = sql.NullString{String: entry.Target.Phone, Valid: true}
		targetName = sql.NullString{String: entry.Target.Name, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, ts, audit_type, group_id, group_name, actor_phone, actor_name,
			 target_phone, target_name, detail, audit_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID,
		entry.Timestamp,
		string(entry.Type),
		entry.GroupID,
		entry.GroupName,
		entry.Actor.Phone,
		entry.Actor.Name,
		targetPhone,
		targetName,
		detail,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	s.logger.Info("Audit entry written",
		zap.String("audit_type", string(entry.Type)),
		zap.String("id", entry.ID),
	)
	return nil
}

// LogMemberChange records an administrator edit to member data.
func (s *Sink) LogMemberChange(ctx context.Context, action, groupID, groupName string,
	actor models.AuditActor, target *models.AuditActor, field string, oldValue, newValue any) error {

	detail := map[string]any{
		"action": action,
	}
	if field != "" {
		detail["field"] = field
		detail["old_value"] = redactValue(field, oldValue)
		detail["new_value"] = redactValue(field, newValue)
	}

	return s.Append(ctx, &models.AuditEntry{
		Type:      models.AuditMemberChange,
		GroupID:   groupID,
		GroupName: groupName,
		Actor:     actor,
		Target:    target,
		Detail:    detail,
	})
}

// LogEmergencyEvent records one completed broadcast run.
func (s *Sink) LogEmergencyEvent(ctx context.Context, outcome *models.BroadcastOutcome) error {
	return s.Append(ctx, &models.AuditEntry{
		Type:      models.AuditEmergencyEvent,
		GroupID:   outcome.GroupID,
		GroupName: outcome.GroupName,
		Actor: models.AuditActor{
			Phone: outcome.ReporterPhone,
			Name:  outcome.ReporterName,
		},
		Detail: map[string]any{
			"incident_type":    outcome.IncidentType,
			"actions_taken":    outcome.ActionsTaken(),
			"stages":           outcome.Stages,
			"success_rate":     outcome.SuccessRate,
			"success":          outcome.Success,
			"member_data_used": outcome.MemberDataUsed,
			"response_time_ms": outcome.FinishedAt.Sub(outcome.StartedAt).Milliseconds(),
		},
	})
}

// LogSystemEvent records a general system event.
func (s *Sink) LogSystemEvent(ctx context.Context, eventType, component, description string, success bool) error {
	return s.Append(ctx, &models.AuditEntry{
		Type: models.AuditSystemEvent,
		Detail: map[string]any{
			"event_type":       eventType,
			"system_component": component,
			"description":      description,
			"success":          success,
		},
	})
}

// LogSecurityEvent records a permission check or access attempt.
func (s *Sink) LogSecurityEvent(ctx context.Context, eventType, groupID, groupName string,
	actor models.AuditActor, actionAttempted string, allowed bool, reason string) error {

	return s.Append(ctx, &models.AuditEntry{
		Type:      models.AuditSecurityEvent,
		GroupID:   groupID,
		GroupName: groupName,
		Actor:     actor,
		Detail: map[string]any{
			"event_type":       eventType,
			"action_attempted": actionAttempted,
			"allowed":          allowed,
			"reason":           reason,
		},
	})
}

func redactDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		if redactedKeys[k] {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

func redactValue(field string, value any) any {
	if redactedKeys[field] {
		return Redacted
	}
	return value
}
