package models

// EnrichedProfile is the resolved reporter profile consumed by the
// broadcast orchestrator. It is always fully populated: unknown reporters
// get the safe fallback values and Registered=false.
type EnrichedProfile struct {
	Name         string
	Phone        string
	GroupName    string
	TotalMembers int

	FullAddress  string
	Street       string
	Apartment    string
	Floor        string
	Neighborhood string
	City         string
	Coordinates  Coordinates

	EmergencyContact string
	PrimaryContact   string
	FamilyContact    string

	MedicalInfo string
	BloodType   string
	Conditions  []string
	Allergies   []string
	Medications []string

	EvacuationInfo       string
	EvacuationAssistance bool
	SpecialNeeds         []string
	IsAdmin              bool
	ResponseRole         string

	// Derived flags; the orchestrator reads only these beyond the text fields.
	HasMedicalConditions bool
	IsHighPriority       bool

	// Registered is false when the profile is a synthesized fallback.
	Registered bool

	EmergencyNumbers GroupEmergencyContacts
}
