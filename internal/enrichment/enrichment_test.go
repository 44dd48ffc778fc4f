package enrichment

import (
	"context"
	"testing"

	"barrio-alarm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLoader struct {
	rec *models.GroupRecord
	err error
}

func (f *fakeLoader) Get(ctx context.Context, groupID string) (*models.GroupRecord, error) {
	return f.rec, f.err
}

func testGroup() *models.GroupRecord {
	return &models.GroupRecord{
		GroupID:   "123@g.us",
		GroupName: "Las Condes Norte",
		Members: map[string]*models.MemberRecord{
			"56940035815": {
				Name: "Waldo Rodriguez",
				Address: models.Address{
					Street:       "Av. Apoquindo 1234",
					Apartment:    "502",
					Neighborhood: "Las Condes",
					City:         "Santiago",
				},
				Contacts: models.Contacts{
					Primary:   "56940035815",
					Emergency: "56911112222",
				},
				Medical: models.Medical{
					Conditions: models.SecretList{Values: []string{"Diabetes"}},
					Allergies:  models.SecretList{Values: []string{"Penicilina"}},
					BloodType:  "O+",
				},
				EmergencyInfo: models.EmergencyInfo{
					ResponseRole:         "coordinator",
					EvacuationAssistance: false,
				},
			},
			"56900000001": {
				Name: "Elena Soto",
				EmergencyInfo: models.EmergencyInfo{
					EvacuationAssistance: true,
					SpecialNeeds:         []string{"silla de ruedas"},
				},
			},
		},
		EmergencyContacts: models.GroupEmergencyContacts{
			GroupEmergencyContact: "56933334444",
		},
	}
}

func TestEnrich_KnownMember(t *testing.T) {
	e := NewEnricher(&fakeLoader{rec: testGroup()}, zap.NewNop())

	p := e.Enrich(context.Background(), "56940035815", "123@g.us", "Las Condes Norte")

	require.True(t, p.Registered)
	assert.Equal(t, "Waldo Rodriguez", p.Name)
	assert.Equal(t, "Av. Apoquindo 1234, Apt 502, Las Condes, Santiago", p.FullAddress)
	assert.Equal(t, "56911112222", p.EmergencyContact)
	assert.Contains(t, p.MedicalInfo, "Tipo sangre: O+")
	assert.Contains(t, p.MedicalInfo, "Condiciones: Diabetes")
	assert.Contains(t, p.MedicalInfo, "Alergias: Penicilina")
	assert.Equal(t, 2, p.TotalMembers)

	// Conditions present → both derived flags set.
	assert.True(t, p.HasMedicalConditions)
	assert.True(t, p.IsHighPriority)

	// Group defaults merged with overrides.
	assert.Equal(t, "131", p.EmergencyNumbers.Samu)
	assert.Equal(t, "56933334444", p.EmergencyNumbers.GroupEmergencyContact)
}

func TestEnrich_EvacuationAssistanceAlone(t *testing.T) {
	e := NewEnricher(&fakeLoader{rec: testGroup()}, zap.NewNop())

	p := e.Enrich(context.Background(), "56900000001", "123@g.us", "Las Condes Norte")

	assert.False(t, p.HasMedicalConditions)
	assert.True(t, p.IsHighPriority)
	assert.Contains(t, p.EvacuationInfo, "REQUIERE ASISTENCIA PARA EVACUACIÓN")
	assert.Contains(t, p.EvacuationInfo, "silla de ruedas")
}

func TestEnrich_UnknownPhoneInExistingGroup(t *testing.T) {
	e := NewEnricher(&fakeLoader{rec: testGroup()}, zap.NewNop())

	p := e.Enrich(context.Background(), "56999999999", "123@g.us", "Las Condes Norte")

	assert.False(t, p.Registered)
	assert.Equal(t, UnknownName, p.Name)
	assert.Equal(t, "56999999999", p.Phone)
	assert.Equal(t, NoAddressText, p.FullAddress)
	assert.Equal(t, NoMedicalText, p.MedicalInfo)
	assert.Empty(t, p.Conditions)
	assert.False(t, p.HasMedicalConditions)
	assert.False(t, p.IsHighPriority)
	assert.Equal(t, 2, p.TotalMembers)
}

func TestEnrich_MissingGroup(t *testing.T) {
	e := NewEnricher(&fakeLoader{rec: nil}, zap.NewNop())

	p := e.Enrich(context.Background(), "56999999999", "none@g.us", "Grupo Nuevo")

	assert.False(t, p.Registered)
	assert.Equal(t, "Grupo Nuevo", p.GroupName)
	assert.Equal(t, "56999999999", p.PrimaryContact)
	assert.Equal(t, "131", p.EmergencyNumbers.Samu)
	assert.Equal(t, "132", p.EmergencyNumbers.Bomberos)
	assert.Equal(t, "133", p.EmergencyNumbers.Carabineros)
}
