package audit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"barrio-alarm/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSink(db, zap.NewNop()), mock
}

func TestAppend_StampsIDAndVersion(t *testing.T) {
	sink, mock := setupTestSink(t)

	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditEntry{
		Type:  models.AuditSystemEvent,
		Actor: models.AuditActor{Phone: "56911112222", Name: "Waldo"},
		Detail: map[string]any{
			"event_type": "startup",
		},
	}
	require.NoError(t, sink.Append(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, models.AuditVersion, entry.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_RedactsSensitiveDetail(t *testing.T) {
	sink, mock := setupTestSink(t)

	var storedDetail []byte
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), detailCapture{&storedDetail}, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditEntry{
		Type:    models.AuditMemberChange,
		GroupID: "123@g.us",
		Actor:   models.AuditActor{Phone: "56911112222"},
		Detail: map[string]any{
			"action":     "update_member",
			"conditions": []string{"Diabetes"},
		},
	}
	require.NoError(t, sink.Append(context.Background(), entry))

	var detail map[string]any
	require.NoError(t, json.Unmarshal(storedDetail, &detail))
	assert.Equal(t, Redacted, detail["conditions"])
	assert.Equal(t, "update_member", detail["action"])

	// Redaction copies the map; the caller still sees the original values.
	assert.Equal(t, []string{"Diabetes"}, entry.Detail["conditions"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

// detailCapture grabs the raw JSONB argument for inspection.
type detailCapture struct {
	dst *[]byte
}

func (c detailCapture) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	*c.dst = b
	return true
}

func TestLogEmergencyEvent(t *testing.T) {
	sink, mock := setupTestSink(t)

	var storedDetail []byte
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), "emergency_event", "123@g.us",
			"Las Condes Norte", "56940035815", "Waldo Rodriguez", sqlmock.AnyArg(),
			sqlmock.AnyArg(), detailCapture{&storedDetail}, models.AuditVersion,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	started := time.Now().Add(-2 * time.Second)
	outcome := &models.BroadcastOutcome{
		IncidentType:  "INCENDIO",
		ReporterPhone: "56940035815",
		ReporterName:  "Waldo Rodriguez",
		GroupID:       "123@g.us",
		GroupName:     "Las Condes Norte",
		Stages: []models.StageResult{
			{Stage: models.StageDeviceAlarm, Outcome: models.StageSuccess},
			{Stage: models.StageTextBroadcast, Outcome: models.StageSuccess},
			{Stage: models.StageImageAlert, Outcome: models.StageFailure, Detail: "render unavailable"},
			{Stage: models.StageVoiceAlert, Outcome: models.StageSuccess},
			{Stage: models.StageAnimatedAlert, Outcome: models.StageFailure, Detail: "render unavailable"},
		},
		SuccessRate:    0.6,
		Success:        true,
		MemberDataUsed: true,
		StartedAt:      started,
		FinishedAt:     started.Add(2 * time.Second),
	}
	require.NoError(t, sink.LogEmergencyEvent(context.Background(), outcome))

	var detail map[string]any
	require.NoError(t, json.Unmarshal(storedDetail, &detail))
	assert.Equal(t, "INCENDIO", detail["incident_type"])
	assert.Equal(t,
		[]any{"device_alarm", "text_broadcast", "voice_alert"},
		detail["actions_taken"],
	)
	assert.Equal(t, true, detail["success"])
	assert.InDelta(t, 2000, detail["response_time_ms"], 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogMemberChange_RedactsFieldValues(t *testing.T) {
	sink, mock := setupTestSink(t)

	var storedDetail []byte
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), "member_change", "123@g.us",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "56900000001",
			"Elena Soto", detailCapture{&storedDetail}, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := sink.LogMemberChange(context.Background(), "update_medical", "123@g.us", "Las Condes Norte",
		models.AuditActor{Phone: "56940035815", Name: "Waldo Rodriguez"},
		&models.AuditActor{Phone: "56900000001", Name: "Elena Soto"},
		"medications", []string{}, []string{"Insulina"})
	require.NoError(t, err)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(storedDetail, &detail))
	assert.Equal(t, "medications", detail["field"])
	assert.Equal(t, Redacted, detail["old_value"])
	assert.Equal(t, Redacted, detail["new_value"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogSecurityEvent_Denied(t *testing.T) {
	sink, mock := setupTestSink(t)

	var storedDetail []byte
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), "security_event", "123@g.us",
			sqlmock.AnyArg(), "56900000001", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), detailCapture{&storedDetail}, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := sink.LogSecurityEvent(context.Background(), "permission_denied", "123@g.us", "Las Condes Norte",
		models.AuditActor{Phone: "56900000001", Name: "Elena Soto"},
		"remove_member", false, "not a group admin")
	require.NoError(t, err)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(storedDetail, &detail))
	assert.Equal(t, false, detail["allowed"])
	assert.Equal(t, "not a group admin", detail["reason"])

	assert.NoError(t, mock.ExpectationsWereMet())
}
