package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"barrio-alarm/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockGroupStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *GroupStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewGroupStore(db, newTestCipher(t), nil, zap.NewNop())
	return db, mock, store
}

func testGroupRecord() *models.GroupRecord {
	return &models.GroupRecord{
		GroupID:   "120363400467632358@g.us",
		GroupName: "Las Condes Norte",
		Admins:    []string{"56940035815"},
		Members: map[string]*models.MemberRecord{
			"56940035815": {
				Name: "Waldo Rodriguez",
				Medical: models.Medical{
					Conditions: models.SecretList{Values: []string{"Diabetes"}},
					Allergies:  models.SecretList{Values: []string{"Penicilina"}},
					BloodType:  "O+",
				},
				EmergencyInfo: models.EmergencyInfo{IsAdmin: true, ResponseRole: "coordinator"},
			},
		},
	}
}

func TestPut_EncryptsSensitiveFields(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	var storedDoc []byte
	mock.ExpectExec(`INSERT INTO group_records`).
		WithArgs("120363400467632358@g.us", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := testGroupRecord()
	err := store.Put(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// The caller's record is never mutated by encrypt-on-write.
	assert.Equal(t, []string{"Diabetes"}, rec.Members["56940035815"].Medical.Conditions.Values)
	assert.Empty(t, rec.Members["56940035815"].Medical.Conditions.Token)

	// Verify the persisted shape directly on an encrypted copy.
	encrypted, err := store.encryptGroup(rec)
	require.NoError(t, err)
	storedDoc, err = json.Marshal(encrypted)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(storedDoc, &doc))
	members := doc["members"].(map[string]any)
	medical := members["56940035815"].(map[string]any)["medical"].(map[string]any)

	// Sensitive fields become opaque tokens with an _encrypted sibling.
	assert.Equal(t, true, medical["conditions_encrypted"])
	_, isString := medical["conditions"].(string)
	assert.True(t, isString)
	assert.NotContains(t, string(storedDoc), "Diabetes")

	// Blood type is never sensitive: plaintext, no flag set.
	assert.Equal(t, "O+", medical["blood_type"])
	_, hasFlag := medical["blood_type_encrypted"]
	assert.False(t, hasFlag)
}

func TestGet_DecryptsAtBoundary(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	encrypted, err := store.encryptGroup(testGroupRecord())
	require.NoError(t, err)
	doc, err := json.Marshal(encrypted)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("120363400467632358@g.us").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	rec, err := store.Get(context.Background(), "120363400467632358@g.us")
	require.NoError(t, err)
	require.NotNil(t, rec)

	member := rec.Members["56940035815"]
	require.NotNil(t, member)
	assert.Equal(t, []string{"Diabetes"}, member.Medical.Conditions.Values)
	assert.Empty(t, member.Medical.Conditions.Token)
	assert.False(t, member.Medical.ConditionsEncrypted)
	assert.Equal(t, "O+", member.Medical.BloodType)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_AbsentGroup(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("unknown@g.us").
		WillReturnError(sql.ErrNoRows)

	rec, err := store.Get(context.Background(), "unknown@g.us")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGet_StoreUnavailableDegradesToAbsent(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("any@g.us").
		WillReturnError(assert.AnError)

	rec, err := store.Get(context.Background(), "any@g.us")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEnsureGroup_BootstrapsFirstSenderAsAdmin(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("9999@g.us").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO group_records`).
		WithArgs("9999@g.us", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &models.InboundMessage{
		ID:         "m1",
		FromPhone:  "56911111111",
		ChatID:     "9999@g.us",
		ChatName:   "Providencia Sur",
		SenderName: "Ana Martinez",
		Text:       "hola",
	}

	rec, err := store.EnsureGroup(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, []string{"56911111111"}, rec.Admins)
	member := rec.Members["56911111111"]
	require.NotNil(t, member)
	assert.True(t, member.EmergencyInfo.IsAdmin)
	assert.Equal(t, "coordinator", member.EmergencyInfo.ResponseRole)
	assert.Equal(t, "Providencia_Sur", rec.FolderName)
	assert.Equal(t, "131", rec.EmergencyContacts.Samu)
	assert.True(t, rec.GroupSettings.EmergencyAlertsEnabled)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureGroup_AutoAddsUnknownMember(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	existing, err := store.encryptGroup(testGroupRecord())
	require.NoError(t, err)
	doc, err := json.Marshal(existing)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("120363400467632358@g.us").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectExec(`INSERT INTO group_records`).
		WithArgs("120363400467632358@g.us", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &models.InboundMessage{
		ID:         "m2",
		FromPhone:  "56922222222",
		ChatID:     "120363400467632358@g.us",
		ChatName:   "Las Condes Norte",
		SenderName: "Pedro",
		Text:       "buenas",
	}

	rec, err := store.EnsureGroup(context.Background(), msg)
	require.NoError(t, err)

	member := rec.Members["56922222222"]
	require.NotNil(t, member)
	assert.False(t, member.EmergencyInfo.IsAdmin)
	assert.Equal(t, "member", member.EmergencyInfo.ResponseRole)
	assert.Equal(t, "56922222222", member.Contacts.Primary)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMember_UnknownGroup(t *testing.T) {
	db, mock, store := setupMockGroupStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT doc FROM group_records`).
		WithArgs("none@g.us").
		WillReturnError(sql.ErrNoRows)

	err := store.RemoveMember(context.Background(), "none@g.us", "569")
	assert.Error(t, err)
}

func TestSanitizeFolderName(t *testing.T) {
	assert.Equal(t, "Las_Condes_Norte", SanitizeFolderName("Las Condes Norte"))
	assert.Equal(t, "Providencia_Sur_-_Emergencias", SanitizeFolderName("Providencia Sur - Emergencias"))
	assert.Equal(t, "Unknown_Group", SanitizeFolderName("!!!"))
}
