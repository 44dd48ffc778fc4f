package models

import "time"

// StageOutcome is the recorded result of one broadcast stage.
type StageOutcome string

const (
	StageSuccess StageOutcome = "success"
	StagePartial StageOutcome = "partial"
	StageFailure StageOutcome = "failure"
)

// Stage names, in pipeline order.
const (
	StageDeviceAlarm    = "device_alarm"
	StageTextBroadcast  = "text_broadcast"
	StageImageAlert     = "image_alert"
	StageVoiceAlert     = "voice_alert"
	StageAnimatedAlert  = "animated_alert"
	BroadcastStageCount = 5
)

// StageResult is one entry of the ordered per-stage outcome list.
type StageResult struct {
	Stage   string       `json:"stage"`
	Outcome StageOutcome `json:"outcome"`
	Detail  string       `json:"detail,omitempty"`
}

// BroadcastOutcome aggregates one pipeline run. Produced by the
// orchestrator, consumed only by the audit sink.
type BroadcastOutcome struct {
	IncidentType   string        `json:"incident_type"`
	ReporterPhone  string        `json:"reporter_phone"`
	ReporterName   string        `json:"reporter_name"`
	GroupID        string        `json:"group_id"`
	GroupName      string        `json:"group_name"`
	Stages         []StageResult `json:"stages"`
	SuccessRate    float64       `json:"success_rate"`
	Success        bool          `json:"success"`
	MemberDataUsed bool          `json:"member_data_used"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Successes counts stages that fully succeeded.
func (o *BroadcastOutcome) Successes() int {
	n := 0
	for _, s := range o.Stages {
		if s.Outcome == StageSuccess {
			n++
		}
	}
	return n
}

// ActionsTaken lists the names of the stages that succeeded, in order.
func (o *BroadcastOutcome) ActionsTaken() []string {
	actions := []string{}
	for _, s := range o.Stages {
		if s.Outcome == StageSuccess {
			actions = append(actions, s.Stage)
		}
	}
	return actions
}
