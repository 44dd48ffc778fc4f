package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"barrio-alarm/internal/classifier"
	"barrio-alarm/internal/commands"
	"barrio-alarm/internal/config"
	"barrio-alarm/internal/models"

	"go.uber.org/zap"
)

// broadcastTimeout bounds one full broadcast run, including the external
// synthesis and render calls.
const broadcastTimeout = 5 * time.Minute

// Broadcaster runs the emergency pipeline for one incident.
type Broadcaster interface {
	Run(ctx context.Context, report *models.IncidentReport) *models.BroadcastOutcome
}

// MessageCache is the dedup and conversation-history slice of the cache.
type MessageCache interface {
	MarkProcessed(ctx context.Context, messageID string) (bool, error)
	AppendRecent(ctx context.Context, chatID, text string) error
}

// GroupRegistry keeps group membership current as messages arrive.
type GroupRegistry interface {
	EnsureGroup(ctx context.Context, msg *models.InboundMessage) (*models.GroupRecord, error)
}

// CommandRunner executes parsed chat commands.
type CommandRunner interface {
	Execute(ctx context.Context, cmd commands.Command, msg *models.InboundMessage) string
}

// Replier sends command replies back to the chat.
type Replier interface {
	SendText(ctx context.Context, chatID, body string) error
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookMessage struct {
	ID        string       `json:"id"`
	FromMe    bool         `json:"from_me"`
	Type      string       `json:"type"`
	ChatID    string       `json:"chat_id"`
	From      string       `json:"from"`
	FromName  string       `json:"from_name"`
	ChatName  string       `json:"chat_name"`
	Timestamp int64        `json:"timestamp"`
	Text      *webhookText `json:"text"`
}

type webhookPayload struct {
	Messages []webhookMessage `json:"messages"`
}

// WebhookHandler receives chat gateway deliveries and routes each message
// to the command table, the emergency pipeline or the conversation cache.
type WebhookHandler struct {
	cache       MessageCache
	registry    GroupRegistry
	commands    CommandRunner
	replier     Replier
	broadcaster Broadcaster
	config      *config.Config
	logger      *zap.Logger

	// broadcasts tracks in-flight pipeline runs so shutdown can drain them.
	broadcasts sync.WaitGroup
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(
	cache MessageCache,
	registry GroupRegistry,
	cmdRunner CommandRunner,
	replier Replier,
	broadcaster Broadcaster,
	cfg *config.Config,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		cache:       cache,
		registry:    registry,
		commands:    cmdRunner,
		replier:     replier,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger,
	}
}

// HandleWebhook accepts one gateway delivery. It always answers 200 for
// well-formed payloads: a non-2xx answer makes the gateway redeliver the
// whole batch, and per-message problems are already logged and deduped.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("Malformed webhook payload", zap.Error(err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	for i := range payload.Messages {
		h.process(r.Context(), &payload.Messages[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// HandleHealth answers the liveness probe.
func (h *WebhookHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Wait blocks until all in-flight broadcasts finish. Called on shutdown.
func (h *WebhookHandler) Wait() {
	h.broadcasts.Wait()
}

func (h *WebhookHandler) process(ctx context.Context, wm *webhookMessage) {
	if wm.FromMe {
		return
	}
	if wm.Type != "text" || wm.Text == nil || wm.Text.Body == "" {
		return
	}
	if wm.ID == "" {
		return
	}

	first, err := h.cache.MarkProcessed(ctx, wm.ID)
	if err != nil {
		// Dedup is advisory: process rather than drop a possible emergency.
		h.logger.Warn("Dedup check failed, processing anyway",
			zap.String("message_id", wm.ID),
			zap.Error(err),
		)
	} else if !first {
		h.logger.Debug("Duplicate delivery skipped", zap.String("message_id", wm.ID))
		return
	}

	msg := &models.InboundMessage{
		ID:         wm.ID,
		FromPhone:  wm.From,
		ChatID:     wm.ChatID,
		Text:       wm.Text.Body,
		SenderName: wm.FromName,
		ChatName:   wm.ChatName,
		Timestamp:  wm.Timestamp,
	}

	if msg.IsGroup() {
		if _, err := h.registry.EnsureGroup(ctx, msg); err != nil {
			h.logger.Warn("Failed to update group membership",
				zap.String("chat_id", msg.ChatID),
				zap.Error(err),
			)
		}
	}

	if cmd, ok := commands.Parse(msg.Text); ok {
		reply := h.commands.Execute(ctx, cmd, msg)
		if err := h.replier.SendText(ctx, msg.ChatID, reply); err != nil {
			h.logger.Error("Failed to send command reply",
				zap.String("chat_id", msg.ChatID),
				zap.Error(err),
			)
		}
		return
	}

	if activation, ok := classifier.Classify(msg.Text); ok {
		h.startBroadcast(msg, activation)
		return
	}

	if err := h.cache.AppendRecent(ctx, msg.ChatID, msg.Text); err != nil {
		h.logger.Warn("Failed to cache message",
			zap.String("chat_id", msg.ChatID),
			zap.Error(err),
		)
	}
}

// startBroadcast launches the pipeline off the webhook request: the
// gateway must get its answer before the broadcast finishes.
func (h *WebhookHandler) startBroadcast(msg *models.InboundMessage, activation models.Activation) {
	report := &models.IncidentReport{
		IncidentType:  activation.IncidentType,
		ReporterPhone: msg.FromPhone,
		ReporterName:  msg.SenderName,
		ChatID:        msg.ChatID,
		GroupName:     msg.ChatName,
		DeviceID:      h.config.Device.DeviceID,
		BlinkCycles:   h.config.Broadcast.BlinkCycles,
	}

	h.logger.Info("Emergency activation detected",
		zap.String("incident_type", report.IncidentType),
		zap.String("chat_id", report.ChatID),
		zap.String("reporter", report.ReporterPhone),
	)

	h.broadcasts.Add(1)
	go func() {
		defer h.broadcasts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		defer cancel()
		h.broadcaster.Run(ctx, report)
	}()
}
