package enrichment

import (
	"context"
	"fmt"
	"strings"

	"barrio-alarm/internal/models"

	"go.uber.org/zap"
)

// Fallback text used when a reporter has no on-file data.
const (
	UnknownName   = "Usuario No Registrado"
	NoAddressText = "Dirección no registrada en sistema"
	NoMedicalText = "Información médica no disponible"
	NoContactText = "No registrado"
	DefaultSamu   = "131"
	DefaultFire   = "132"
	DefaultPolice = "133"
)

// GroupLoader is the slice of the member store the enricher needs.
type GroupLoader interface {
	Get(ctx context.Context, groupID string) (*models.GroupRecord, error)
}

// Enricher resolves a reporting phone number to a full member profile or a
// safe fallback. Enrich never fails outward: any lookup problem degrades to
// the fallback profile.
type Enricher struct {
	store  GroupLoader
	logger *zap.Logger
}

// NewEnricher creates an enricher over the member store.
func NewEnricher(store GroupLoader, logger *zap.Logger) *Enricher {
	return &Enricher{store: store, logger: logger}
}

// Enrich loads the reporter's profile for an emergency broadcast.
func (e *Enricher) Enrich(ctx context.Context, phone, groupID, groupName string) *models.EnrichedProfile {
	rec, err := e.store.Get(ctx, groupID)
	if err != nil || rec == nil {
		e.logger.Warn("No member data for group, using fallback profile",
			zap.String("group_id", groupID),
			zap.String("phone", phone),
		)
		return FallbackProfile(phone, groupName, 1)
	}

	member, ok := rec.Members[phone]
	if !ok {
		e.logger.Warn("Reporter not in member database, using fallback profile",
			zap.String("group_id", groupID),
			zap.String("phone", phone),
		)
		return FallbackProfile(phone, groupNameOf(rec, groupName), len(rec.Members))
	}

	profile := buildProfile(member, phone, rec)
	e.logger.Info("Reporter profile resolved",
		zap.String("phone", phone),
		zap.String("name", profile.Name),
		zap.Bool("high_priority", profile.IsHighPriority),
	)
	return profile
}

func buildProfile(member *models.MemberRecord, phone string, rec *models.GroupRecord) *models.EnrichedProfile {
	addr := member.Address
	conditions := member.Medical.Conditions.Values
	medications := member.Medical.Medications.Values
	allergies := member.Medical.Allergies.Values

	hasConditions := len(conditions) > 0

	p := &models.EnrichedProfile{
		Name:         member.Name,
		Phone:        phone,
		GroupName:    rec.GroupName,
		TotalMembers: len(rec.Members),

		FullAddress:  flattenAddress(addr),
		Street:       addr.Street,
		Apartment:    addr.Apartment,
		Floor:        addr.Floor,
		Neighborhood: addr.Neighborhood,
		City:         addr.City,
		Coordinates:  addr.Coordinates,

		EmergencyContact: firstNonEmpty(member.Contacts.Emergency, member.Contacts.Family, NoContactText),
		PrimaryContact:   firstNonEmpty(member.Contacts.Primary, phone),
		FamilyContact:    member.Contacts.Family,

		MedicalInfo: medicalSummary(member.Medical),
		BloodType:   member.Medical.BloodType,
		Conditions:  conditions,
		Allergies:   allergies,
		Medications: medications,

		EvacuationInfo:       evacuationSummary(member.EmergencyInfo),
		EvacuationAssistance: member.EmergencyInfo.EvacuationAssistance,
		SpecialNeeds:         member.EmergencyInfo.SpecialNeeds,
		IsAdmin:              member.EmergencyInfo.IsAdmin,
		ResponseRole:         firstNonEmpty(member.EmergencyInfo.ResponseRole, "member"),

		HasMedicalConditions: hasConditions,
		IsHighPriority:       member.EmergencyInfo.EvacuationAssistance || hasConditions,

		Registered: true,

		EmergencyNumbers: mergeEmergencyNumbers(rec.EmergencyContacts),
	}
	if p.Name == "" {
		p.Name = "Usuario Desconocido"
	}
	return p
}

// FallbackProfile is the profile used when the reporter has no on-file
// data, or when the lookup itself cannot be trusted.
func FallbackProfile(phone, groupName string, totalMembers int) *models.EnrichedProfile {
	return &models.EnrichedProfile{
		Name:             UnknownName,
		Phone:            phone,
		GroupName:        groupName,
		TotalMembers:     totalMembers,
		FullAddress:      NoAddressText,
		EmergencyContact: NoContactText,
		PrimaryContact:   phone,
		MedicalInfo:      NoMedicalText,
		Conditions:       []string{},
		Allergies:        []string{},
		Medications:      []string{},
		SpecialNeeds:     []string{},
		ResponseRole:     "member",
		Registered:       false,
		EmergencyNumbers: mergeEmergencyNumbers(models.GroupEmergencyContacts{}),
	}
}

// flattenAddress joins the non-empty address parts with commas.
func flattenAddress(addr models.Address) string {
	parts := []string{}
	if addr.Street != "" {
		parts = append(parts, addr.Street)
	}
	if addr.Apartment != "" {
		parts = append(parts, "Apt "+addr.Apartment)
	}
	if addr.Floor != "" {
		parts = append(parts, "Piso "+addr.Floor)
	}
	if addr.Neighborhood != "" {
		parts = append(parts, addr.Neighborhood)
	}
	if addr.City != "" {
		parts = append(parts, addr.City)
	}
	if len(parts) == 0 {
		return NoAddressText
	}
	return strings.Join(parts, ", ")
}

func medicalSummary(m models.Medical) string {
	parts := []string{}
	if m.BloodType != "" {
		parts = append(parts, "Tipo sangre: "+m.BloodType)
	}
	if len(m.Conditions.Values) > 0 {
		parts = append(parts, "Condiciones: "+strings.Join(m.Conditions.Values, ", "))
	}
	if len(m.Allergies.Values) > 0 {
		parts = append(parts, "Alergias: "+strings.Join(m.Allergies.Values, ", "))
	}
	if len(m.Medications.Values) > 0 {
		parts = append(parts, "Medicamentos: "+strings.Join(m.Medications.Values, ", "))
	}
	if len(parts) == 0 {
		return "Sin información médica registrada"
	}
	return strings.Join(parts, "; ")
}

func evacuationSummary(info models.EmergencyInfo) string {
	parts := []string{}
	if info.EvacuationAssistance {
		parts = append(parts, "REQUIERE ASISTENCIA PARA EVACUACIÓN")
	}
	if len(info.SpecialNeeds) > 0 {
		parts = append(parts, fmt.Sprintf("Necesidades especiales: %s", strings.Join(info.SpecialNeeds, ", ")))
	}
	return strings.Join(parts, "; ")
}

func mergeEmergencyNumbers(c models.GroupEmergencyContacts) models.GroupEmergencyContacts {
	if c.Samu == "" {
		c.Samu = DefaultSamu
	}
	if c.Bomberos == "" {
		c.Bomberos = DefaultFire
	}
	if c.Carabineros == "" {
		c.Carabineros = DefaultPolice
	}
	return c
}

func groupNameOf(rec *models.GroupRecord, fallback string) string {
	if rec.GroupName != "" {
		return rec.GroupName
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
