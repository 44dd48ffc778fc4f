package models

import "strings"

// GroupChatSuffix marks a chat identifier as a group chat.
const GroupChatSuffix = "@g.us"

// InboundMessage is one normalized text message from the chat gateway webhook.
type InboundMessage struct {
	ID         string `json:"id"`
	FromPhone  string `json:"from"`
	ChatID     string `json:"chat_id"`
	Text       string `json:"text"`
	SenderName string `json:"from_name"`
	ChatName   string `json:"chat_name"`
	Timestamp  int64  `json:"timestamp"`
}

// IsGroup reports whether the message originated in a group chat.
func (m *InboundMessage) IsGroup() bool {
	return strings.HasSuffix(m.ChatID, GroupChatSuffix)
}

// Activation is a positive classifier result: the message triggers the
// emergency broadcast pipeline.
type Activation struct {
	IncidentType string
}

// IncidentReport is the immutable input of one broadcast run. Constructed
// per activation and discarded after the run.
type IncidentReport struct {
	IncidentType  string
	ReporterPhone string
	ReporterName  string
	ChatID        string
	GroupName     string
	DeviceID      string
	BlinkCycles   int
	VoiceScript   string // optional pre-composed script, composer is skipped when set
}
