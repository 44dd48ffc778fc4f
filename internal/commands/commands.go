package commands

import (
	"context"
	"fmt"
	"strings"

	"barrio-alarm/internal/classifier"
	"barrio-alarm/internal/models"

	"go.uber.org/zap"
)

// Kind identifies one chat command.
type Kind int

const (
	Unknown Kind = iota
	Help
	Status
	WhoAmI
)

// Command is one parsed chat command.
type Command struct {
	Kind Kind
	Raw  string
}

// aliases maps the user-facing Spanish command words to their kind.
var aliases = map[string]Kind{
	"ayuda":    Help,
	"help":     Help,
	"comandos": Help,
	"estado":   Status,
	"status":   Status,
	"quien":    WhoAmI,
	"quién":    WhoAmI,
	"yo":       WhoAmI,
}

// Parse recognizes a command in message text. Only text starting with
// the command prefix is considered.
func Parse(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, classifier.CommandPrefix) {
		return Command{}, false
	}

	word := strings.TrimPrefix(trimmed, classifier.CommandPrefix)
	if i := strings.IndexFunc(word, func(r rune) bool { return r == ' ' || r == '\n' }); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	kind, ok := aliases[word]
	if !ok {
		return Command{Kind: Unknown, Raw: trimmed}, true
	}
	return Command{Kind: kind, Raw: trimmed}, true
}

// GroupLoader is the slice of the member store the command table needs.
type GroupLoader interface {
	Get(ctx context.Context, groupID string) (*models.GroupRecord, error)
}

// ProfileResolver resolves a member profile for the whoami reply.
type ProfileResolver interface {
	Enrich(ctx context.Context, phone, groupID, groupName string) *models.EnrichedProfile
}

// Table executes parsed commands and produces the chat reply.
type Table struct {
	store    GroupLoader
	enricher ProfileResolver
	logger   *zap.Logger
}

// NewTable creates the command table.
func NewTable(store GroupLoader, enricher ProfileResolver, logger *zap.Logger) *Table {
	return &Table{store: store, enricher: enricher, logger: logger}
}

// Execute runs one command and returns the reply text.
func (t *Table) Execute(ctx context.Context, cmd Command, msg *models.InboundMessage) string {
	switch cmd.Kind {
	case Help:
		return helpText()
	case Status:
		return t.statusText(ctx, msg)
	case WhoAmI:
		return t.whoAmIText(ctx, msg)
	case Unknown:
		return "Comando no reconocido. Escribe @ayuda para ver los comandos disponibles."
	default:
		return "Comando no reconocido. Escribe @ayuda para ver los comandos disponibles."
	}
}

func helpText() string {
	return strings.Join([]string{
		"🛟 SISTEMA DE ALARMA VECINAL",
		"",
		"Para reportar una emergencia escribe SOS seguido del tipo:",
		"EJEMPLO: SOS INCENDIO",
		"",
		"COMANDOS:",
		"• @ayuda - muestra esta ayuda",
		"• @estado - estado del grupo y del sistema",
		"• @quien - tus datos registrados",
	}, "\n")
}

func (t *Table) statusText(ctx context.Context, msg *models.InboundMessage) string {
	rec, err := t.store.Get(ctx, msg.ChatID)
	if err != nil || rec == nil {
		t.logger.Warn("Status command without group record",
			zap.String("chat_id", msg.ChatID),
		)
		return "SISTEMA activo. Este grupo aún no tiene miembros registrados."
	}

	alerts := "activadas"
	if !rec.GroupSettings.EmergencyAlertsEnabled {
		alerts = "desactivadas"
	}

	return fmt.Sprintf(
		"SISTEMA activo.\nGrupo: %s\nMiembros registrados: %d\nAlertas de emergencia: %s\nSAMU %s | Bomberos %s | Carabineros %s",
		rec.GroupName,
		len(rec.Members),
		alerts,
		rec.EmergencyContacts.Samu,
		rec.EmergencyContacts.Bomberos,
		rec.EmergencyContacts.Carabineros,
	)
}

func (t *Table) whoAmIText(ctx context.Context, msg *models.InboundMessage) string {
	profile := t.enricher.Enrich(ctx, msg.FromPhone, msg.ChatID, msg.ChatName)
	if !profile.Registered {
		return "No estás registrado en este grupo. Un administrador puede agregar tus datos."
	}

	return fmt.Sprintf(
		"👤 %s\n📍 %s\n📞 Contacto de emergencia: %s\n🏥 %s\nRol: %s",
		profile.Name,
		profile.FullAddress,
		profile.EmergencyContact,
		profile.MedicalInfo,
		profile.ResponseRole,
	)
}
