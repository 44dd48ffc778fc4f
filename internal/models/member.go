package models

import (
	"bytes"
	"encoding/json"
)

// SecretList holds a medical list attribute that is stored either as
// plaintext values or as an opaque encrypted token. The two forms never
// coexist: when Token is set it is the only thing serialized.
type SecretList struct {
	Values []string
	Token  string
}

// MarshalJSON writes the token when present, the plaintext list otherwise.
func (s SecretList) MarshalJSON() ([]byte, error) {
	if s.Token != "" {
		return json.Marshal(s.Token)
	}
	if s.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Values)
}

// UnmarshalJSON accepts either a JSON array (plaintext) or a bare string
// (encrypted token, or a legacy single value).
func (s *SecretList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.Token = ""
		return json.Unmarshal(trimmed, &s.Values)
	}
	s.Values = nil
	return json.Unmarshal(trimmed, &s.Token)
}

// IsEmpty reports whether the field carries neither values nor a token.
func (s SecretList) IsEmpty() bool {
	return s.Token == "" && len(s.Values) == 0
}

// Coordinates is an optional lat/lng pair; nil means not recorded.
type Coordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Address is the postal address block of a member.
type Address struct {
	Street       string      `json:"street"`
	Apartment    string      `json:"apartment"`
	Floor        string      `json:"floor"`
	Neighborhood string      `json:"neighborhood"`
	City         string      `json:"city"`
	Coordinates  Coordinates `json:"coordinates"`
}

// Contacts is the phone contact block of a member.
type Contacts struct {
	Primary   string `json:"primary"`
	Emergency string `json:"emergency"`
	Family    string `json:"family"`
}

// Medical is the medical block. Each list field carries a sibling
// <field>_encrypted flag in the persisted document; a field is either
// plaintext structured data or an opaque token, never both.
type Medical struct {
	Conditions           SecretList `json:"conditions"`
	ConditionsEncrypted  bool       `json:"conditions_encrypted,omitempty"`
	Medications          SecretList `json:"medications"`
	MedicationsEncrypted bool       `json:"medications_encrypted,omitempty"`
	Allergies            SecretList `json:"allergies"`
	AllergiesEncrypted   bool       `json:"allergies_encrypted,omitempty"`
	BloodType            string     `json:"blood_type"`
	BloodTypeEncrypted   bool       `json:"blood_type_encrypted,omitempty"`
}

// EmergencyInfo is the role block of a member.
type EmergencyInfo struct {
	IsAdmin              bool     `json:"is_admin"`
	ResponseRole         string   `json:"response_role"`
	EvacuationAssistance bool     `json:"evacuation_assistance"`
	SpecialNeeds         []string `json:"special_needs"`
}

// MemberMetadata tracks record lifecycle timestamps (ISO8601 strings).
type MemberMetadata struct {
	JoinedDate  string `json:"joined_date"`
	LastActive  string `json:"last_active"`
	DataVersion string `json:"data_version"`
}

// MemberRecord is one member of a group, keyed by phone in the group document.
type MemberRecord struct {
	Name          string         `json:"name"`
	Alias         []string       `json:"alias"`
	Address       Address        `json:"address"`
	Contacts      Contacts       `json:"contacts"`
	Medical       Medical        `json:"medical"`
	EmergencyInfo EmergencyInfo  `json:"emergency_info"`
	Metadata      MemberMetadata `json:"metadata"`
}

// GroupEmergencyContacts holds group-level emergency number overrides.
type GroupEmergencyContacts struct {
	Samu                  string `json:"samu"`
	Bomberos              string `json:"bomberos"`
	Carabineros           string `json:"carabineros"`
	GroupEmergencyContact string `json:"group_emergency_contact"`
	EmergencyCoordinator  string `json:"emergency_coordinator"`
}

// GroupSettings holds per-group feature switches.
type GroupSettings struct {
	EmergencyAlertsEnabled bool `json:"emergency_alerts_enabled"`
	AutoMemberDetection    bool `json:"auto_member_detection"`
	RequireAdminApproval   bool `json:"require_admin_approval"`
}

// GroupRecord is the persisted document for one group chat: the member
// mapping, the admin list and the group-level settings.
type GroupRecord struct {
	GroupID           string                   `json:"group_id"`
	GroupName         string                   `json:"group_name"`
	FolderName        string                   `json:"folder_name"`
	CreatedDate       string                   `json:"created_date"`
	LastUpdated       string                   `json:"last_updated"`
	Admins            []string                 `json:"admins"`
	Members           map[string]*MemberRecord `json:"members"`
	EmergencyContacts GroupEmergencyContacts   `json:"emergency_contacts"`
	GroupSettings     GroupSettings            `json:"group_settings"`
}

// IsAdmin reports whether the phone is in the group admin list.
func (g *GroupRecord) IsAdmin(phone string) bool {
	for _, p := range g.Admins {
		if p == phone {
			return true
		}
	}
	return false
}
