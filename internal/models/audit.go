package models

import "time"

// AuditType is one of the four audit entry categories.
type AuditType string

const (
	AuditMemberChange   AuditType = "member_change"
	AuditEmergencyEvent AuditType = "emergency_event"
	AuditSystemEvent    AuditType = "system_event"
	AuditSecurityEvent  AuditType = "security_event"
)

// AuditVersion is stamped on every entry.
const AuditVersion = "1.0"

// AuditActor identifies who caused an audited event.
type AuditActor struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// AuditEntry is one append-only audit record. Never mutated after write.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      AuditType      `json:"audit_type"`
	GroupID   string         `json:"group_id,omitempty"`
	GroupName string         `json:"group_name,omitempty"`
	Actor     AuditActor     `json:"actor"`
	Target    *AuditActor    `json:"target,omitempty"`
	Detail    map[string]any `json:"detail"`
	Version   string         `json:"audit_version"`
}
