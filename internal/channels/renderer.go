package channels

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"barrio-alarm/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertRenderer produces visual alert assets for an incident.
type AlertRenderer interface {
	RenderStill(ctx context.Context, incidentType, alertText string) (pngPath string, err error)
	RenderAnimated(ctx context.Context, incidentType, alertText string) (gifPath string, err error)
}

// RenderClient renders alert images through the render webhook.
type RenderClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
	tempDir    string
}

// NewRenderClient creates the render client.
func NewRenderClient(cfg *config.RenderConfig, tempDir string, logger *zap.Logger) *RenderClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(45 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &RenderClient{
		httpClient: client,
		logger:     logger,
		tempDir:    tempDir,
	}
}

// RenderStill renders the static alert card.
func (c *RenderClient) RenderStill(ctx context.Context, incidentType, alertText string) (string, error) {
	path := filepath.Join(c.tempDir, "alert_"+uuid.New().String()+".png")
	if err := c.render(ctx, "/render/still", incidentType, alertText, path); err != nil {
		return "", err
	}
	return path, nil
}

// RenderAnimated renders the attention-grabbing animated alert.
func (c *RenderClient) RenderAnimated(ctx context.Context, incidentType, alertText string) (string, error) {
	path := filepath.Join(c.tempDir, "alert_"+uuid.New().String()+".gif")
	if err := c.render(ctx, "/render/animated", incidentType, alertText, path); err != nil {
		return "", err
	}
	return path, nil
}

func (c *RenderClient) render(ctx context.Context, endpoint, incidentType, alertText, outPath string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"incident_type": incidentType,
			"text":          alertText,
		}).
		SetOutput(outPath).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("render request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("render webhook rejected request: %s", resp.Status())
	}

	c.logger.Info("Alert asset rendered",
		zap.String("endpoint", endpoint),
		zap.String("path", outPath),
	)
	return nil
}
