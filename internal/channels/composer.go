package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"barrio-alarm/internal/config"
	"barrio-alarm/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AlertComposer produces the Spanish alert text and the voice script for
// one incident. Composition never fails outward: when the language model
// is unreachable a deterministic template carries the same facts.
type AlertComposer interface {
	ComposeAlert(ctx context.Context, incidentType string, profile *models.EnrichedProfile) string
	ComposeVoiceScript(ctx context.Context, incidentType string, profile *models.EnrichedProfile) string
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ComposerClient is the language-model backed composer.
type ComposerClient struct {
	config     *config.ComposerConfig
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewComposerClient creates the composer.
func NewComposerClient(cfg *config.ComposerConfig, logger *zap.Logger) *ComposerClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &ComposerClient{
		config:     cfg,
		httpClient: client,
		logger:     logger,
	}
}

// ComposeAlert builds the broadcast text for the group chat.
func (c *ComposerClient) ComposeAlert(ctx context.Context, incidentType string, profile *models.EnrichedProfile) string {
	prompt := fmt.Sprintf(
		"Redacta una alerta de emergencia vecinal en español, urgente y clara, máximo 120 palabras. "+
			"Tipo de emergencia: %s. Reporta: %s. Dirección: %s. "+
			"Información médica relevante: %s. %s"+
			"Incluye los números de emergencia SAMU %s, Bomberos %s, Carabineros %s. "+
			"No inventes datos.",
		incidentType, profile.Name, profile.FullAddress,
		profile.MedicalInfo, priorityNote(profile),
		profile.EmergencyNumbers.Samu, profile.EmergencyNumbers.Bomberos, profile.EmergencyNumbers.Carabineros,
	)

	if text, err := c.complete(ctx, prompt, 300); err == nil {
		return text
	} else {
		c.logger.Warn("Alert composition fell back to template", zap.Error(err))
	}
	return FallbackAlert(incidentType, profile)
}

// ComposeVoiceScript builds the short script read by the voice alert.
func (c *ComposerClient) ComposeVoiceScript(ctx context.Context, incidentType string, profile *models.EnrichedProfile) string {
	prompt := fmt.Sprintf(
		"Redacta un guion hablado de emergencia en español para un mensaje de voz, máximo 40 palabras, "+
			"tono calmado pero urgente. Emergencia: %s. Reporta: %s. Dirección: %s. No inventes datos.",
		incidentType, profile.Name, profile.FullAddress,
	)

	if text, err := c.complete(ctx, prompt, 120); err == nil {
		return text
	} else {
		c.logger.Warn("Voice script composition fell back to template", zap.Error(err))
	}
	return FallbackVoiceScript(incidentType, profile)
}

func (c *ComposerClient) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var result chatResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.config.Model,
			Messages: []chatMessage{
				{Role: "system", Content: "Eres un asistente de emergencias vecinales en Chile."},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   maxTokens,
			Temperature: 0.3,
		}).
		SetResult(&result).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("composer request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("composer API rejected request: %s", resp.Status())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("composer returned no choices")
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("composer returned empty text")
	}
	return text, nil
}

// FallbackAlert is the deterministic template used when the language
// model is unavailable. It carries every fact responders need.
func FallbackAlert(incidentType string, profile *models.EnrichedProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 EMERGENCIA REPORTADA: %s 🚨\n\n", incidentType)
	fmt.Fprintf(&b, "👤 Reporta: %s\n", profile.Name)
	fmt.Fprintf(&b, "📍 Dirección: %s\n", profile.FullAddress)
	if profile.MedicalInfo != "" {
		fmt.Fprintf(&b, "🏥 Info médica: %s\n", profile.MedicalInfo)
	}
	if profile.IsHighPriority {
		b.WriteString("⚠️ PRIORIDAD ALTA: requiere atención inmediata\n")
	}
	if profile.EvacuationInfo != "" {
		fmt.Fprintf(&b, "♿ %s\n", profile.EvacuationInfo)
	}
	fmt.Fprintf(&b, "\n📞 SAMU: %s | Bomberos: %s | Carabineros: %s\n",
		profile.EmergencyNumbers.Samu,
		profile.EmergencyNumbers.Bomberos,
		profile.EmergencyNumbers.Carabineros,
	)
	fmt.Fprintf(&b, "\nVecinos de %s: por favor confirmen si pueden asistir.", profile.GroupName)
	return b.String()
}

// FallbackVoiceScript is the deterministic voice template.
func FallbackVoiceScript(incidentType string, profile *models.EnrichedProfile) string {
	return fmt.Sprintf(
		"Atención vecinos. Emergencia de tipo %s reportada por %s en %s. "+
			"Por favor presten ayuda si están cerca. Llamen al SAMU %s si hay heridos.",
		strings.ToLower(incidentType), profile.Name, profile.FullAddress,
		profile.EmergencyNumbers.Samu,
	)
}

func priorityNote(profile *models.EnrichedProfile) string {
	if profile.IsHighPriority {
		return "La persona es de prioridad alta (condición médica o necesita asistencia de evacuación). "
	}
	return ""
}
