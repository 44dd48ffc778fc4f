package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"barrio-alarm/internal/models"

	"go.uber.org/zap"
)

// DataVersion is stamped on member records created by this build.
const DataVersion = "1.0"

// GroupStore persists one JSON document per group chat with field-level
// encryption of sensitive medical attributes. Callers above the store never
// see encrypted tokens: every write re-evaluates sensitive fields
// (encrypt-on-write) and every read resolves them (decrypt-on-read).
type GroupStore struct {
	db        *sql.DB
	cipher    *FieldCipher
	sensitive Predicate
	logger    *zap.Logger

	// read-modify-write of one group document is a critical section per
	// group id; no cross-group lock
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGroupStore creates the store. A nil predicate selects DefaultPredicate.
func NewGroupStore(db *sql.DB, cipher *FieldCipher, sensitive Predicate, logger *zap.Logger) *GroupStore {
	if sensitive == nil {
		sensitive = DefaultPredicate
	}
	return &GroupStore{
		db:        db,
		cipher:    cipher,
		sensitive: sensitive,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// EnsureSchema creates the backing table.
func (s *GroupStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_records (
			group_id   TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create group_records table: %w", err)
	}
	return nil
}

func (s *GroupStore) lock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[groupID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[groupID] = m
	}
	return m
}

// Get loads a group document. An absent record or an unreachable store both
// yield (nil, nil): callers behave as "group not yet initialized".
func (s *GroupStore) Get(ctx context.Context, groupID string) (*models.GroupRecord, error) {
	rec, err := s.get(ctx, groupID)
	if err != nil {
		s.logger.Warn("Group record unavailable",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return nil, nil
	}
	return rec, nil
}

func (s *GroupStore) get(ctx context.Context, groupID string) (*models.GroupRecord, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM group_records WHERE group_id = $1`, groupID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group record: %w", err)
	}

	var rec models.GroupRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group record: %w", err)
	}

	for _, member := range rec.Members {
		s.decryptMedical(&member.Medical)
	}
	return &rec, nil
}

// Put stores a group document, re-encrypting every member's sensitive
// fields before the write.
func (s *GroupStore) Put(ctx context.Context, rec *models.GroupRecord) error {
	m := s.lock(rec.GroupID)
	m.Lock()
	defer m.Unlock()
	return s.put(ctx, rec)
}

func (s *GroupStore) put(ctx context.Context, rec *models.GroupRecord) error {
	encrypted, err := s.encryptGroup(rec)
	if err != nil {
		return err
	}
	encrypted.LastUpdated = time.Now().Format(time.RFC3339)

	doc, err := json.Marshal(encrypted)
	if err != nil {
		return fmt.Errorf("failed to marshal group record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_records (group_id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (group_id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, rec.GroupID, doc)
	if err != nil {
		return fmt.Errorf("failed to store group record: %w", err)
	}

	s.logger.Debug("Group record stored",
		zap.String("group_id", rec.GroupID),
		zap.Int("member_count", len(rec.Members)),
	)
	return nil
}

// EnsureGroup bootstraps the group document on first contact and auto-adds
// unknown senders. The whole read-modify-write runs under the per-group lock
// so close-together messages from one group cannot lose updates.
func (s *GroupStore) EnsureGroup(ctx context.Context, msg *models.InboundMessage) (*models.GroupRecord, error) {
	m := s.lock(msg.ChatID)
	m.Lock()
	defer m.Unlock()

	rec, err := s.get(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Format(time.RFC3339)

	if rec == nil {
		// First message from this chat: seed the record with the sender
		// as sole admin and coordinator.
		rec = &models.GroupRecord{
			GroupID:     msg.ChatID,
			GroupName:   msg.ChatName,
			FolderName:  SanitizeFolderName(msg.ChatName),
			CreatedDate: now,
			Admins:      []string{msg.FromPhone},
			Members: map[string]*models.MemberRecord{
				msg.FromPhone: newMemberRecord(msg.SenderName, msg.FromPhone, true, now),
			},
			EmergencyContacts: models.GroupEmergencyContacts{
				Samu:        "131",
				Bomberos:    "132",
				Carabineros: "133",
			},
			GroupSettings: models.GroupSettings{
				EmergencyAlertsEnabled: true,
				AutoMemberDetection:    true,
			},
		}
		if err := s.put(ctx, rec); err != nil {
			return nil, err
		}
		s.logger.Info("Group record created",
			zap.String("group_id", msg.ChatID),
			zap.String("group_name", msg.ChatName),
			zap.String("admin", msg.FromPhone),
		)
		return rec, nil
	}

	member, known := rec.Members[msg.FromPhone]
	if !known {
		if !rec.GroupSettings.AutoMemberDetection {
			return rec, nil
		}
		rec.Members[msg.FromPhone] = newMemberRecord(msg.SenderName, msg.FromPhone, false, now)
		s.logger.Info("Member auto-added",
			zap.String("group_id", msg.ChatID),
			zap.String("phone", msg.FromPhone),
		)
	} else {
		member.Metadata.LastActive = now
	}

	if err := s.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RemoveMember deletes a member record. This is the only code path that
// physically removes a member, reserved for explicit administrator removal.
func (s *GroupStore) RemoveMember(ctx context.Context, groupID, phone string) error {
	m := s.lock(groupID)
	m.Lock()
	defer m.Unlock()

	rec, err := s.get(ctx, groupID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("group not found: %s", groupID)
	}
	if _, ok := rec.Members[phone]; !ok {
		return fmt.Errorf("member not found: %s", phone)
	}
	delete(rec.Members, phone)
	return s.put(ctx, rec)
}

func newMemberRecord(name, phone string, admin bool, now string) *models.MemberRecord {
	if name == "" {
		name = "Usuario"
	}
	role := "member"
	if admin {
		role = "coordinator"
	}
	return &models.MemberRecord{
		Name:  name,
		Alias: []string{},
		Contacts: models.Contacts{
			Primary: phone,
		},
		EmergencyInfo: models.EmergencyInfo{
			IsAdmin:      admin,
			ResponseRole: role,
			SpecialNeeds: []string{},
		},
		Metadata: models.MemberMetadata{
			JoinedDate:  now,
			LastActive:  now,
			DataVersion: DataVersion,
		},
	}
}

// encryptGroup returns a deep copy of the record with every member's
// sensitive fields sealed. The caller's record is left untouched.
func (s *GroupStore) encryptGroup(rec *models.GroupRecord) (*models.GroupRecord, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to copy group record: %w", err)
	}
	var copied models.GroupRecord
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("failed to copy group record: %w", err)
	}

	for phone, member := range copied.Members {
		if err := s.encryptMedical(&member.Medical); err != nil {
			return nil, fmt.Errorf("failed to encrypt member %s: %w", phone, err)
		}
	}
	return &copied, nil
}

// encryptMedical seals each sensitive field. A field already carrying a
// token (a value this process could not decrypt) is left as-is so data is
// never destroyed by a re-store.
func (s *GroupStore) encryptMedical(m *models.Medical) error {
	fields := []struct {
		name      string
		list      *models.SecretList
		encrypted *bool
	}{
		{FieldConditions, &m.Conditions, &m.ConditionsEncrypted},
		{FieldMedications, &m.Medications, &m.MedicationsEncrypted},
		{FieldAllergies, &m.Allergies, &m.AllergiesEncrypted},
	}

	for _, f := range fields {
		if f.list.Token != "" {
			*f.encrypted = true
			continue
		}
		if !s.sensitive(f.name, f.list.Values) {
			*f.encrypted = false
			continue
		}
		token, err := s.cipher.EncryptList(f.list.Values)
		if err != nil {
			return err
		}
		f.list.Values = nil
		f.list.Token = token
		*f.encrypted = true
	}
	return nil
}

// decryptMedical resolves sealed fields back to plaintext. Any field that
// cannot be resolved keeps its raw value unchanged.
func (s *GroupStore) decryptMedical(m *models.Medical) {
	fields := []struct {
		list      *models.SecretList
		encrypted *bool
	}{
		{&m.Conditions, &m.ConditionsEncrypted},
		{&m.Medications, &m.MedicationsEncrypted},
		{&m.Allergies, &m.AllergiesEncrypted},
	}

	for _, f := range fields {
		if f.list.Token == "" {
			*f.encrypted = false
			continue
		}
		values, ok := s.cipher.DecryptList(f.list.Token)
		if !ok {
			continue
		}
		f.list.Values = values
		f.list.Token = ""
		*f.encrypted = false
	}

	if m.BloodTypeEncrypted && m.BloodType != "" {
		if value, ok := s.cipher.DecryptString(m.BloodType); ok {
			m.BloodType = value
			m.BloodTypeEncrypted = false
		}
	}
}

var folderNameInvalid = regexp.MustCompile(`[^\w\s-]`)
var folderNameSpaces = regexp.MustCompile(`\s+`)

// SanitizeFolderName derives a filesystem-safe folder name from a group name.
func SanitizeFolderName(groupName string) string {
	sanitized := folderNameInvalid.ReplaceAllString(groupName, "")
	sanitized = folderNameSpaces.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	if sanitized == "" {
		sanitized = "Unknown_Group"
	}
	return sanitized
}
