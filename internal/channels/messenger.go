package channels

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"barrio-alarm/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Messenger sends outbound messages to a chat through the gateway.
type Messenger interface {
	SendText(ctx context.Context, chatID, body string) error
	SendVoice(ctx context.Context, chatID, oggPath string) error
	SendImage(ctx context.Context, chatID, imagePath, caption string) error
	SendGIF(ctx context.Context, chatID, gifPath, caption string) error
}

// GatewayClient is the chat gateway API client.
type GatewayClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewGatewayClient creates the gateway client.
func NewGatewayClient(cfg *config.GatewayConfig, logger *zap.Logger) *GatewayClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json")

	return &GatewayClient{
		httpClient: client,
		logger:     logger,
	}
}

// SendText posts a plain text message. A short typing delay makes the
// message read as human-sent in the chat.
func (c *GatewayClient) SendText(ctx context.Context, chatID, body string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"to":          chatID,
			"body":        body,
			"typing_time": 1,
		}).
		Post("/messages/text")
	if err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected text message: %s", resp.Status())
	}

	c.logger.Info("Text message sent",
		zap.String("chat_id", chatID),
		zap.Int("length", len(body)),
	)
	return nil
}

// SendVoice posts a voice note. The gateway expects OGG/Opus audio as a
// base64 data URI.
func (c *GatewayClient) SendVoice(ctx context.Context, chatID, oggPath string) error {
	media, err := fileAsDataURI(oggPath, "audio/ogg")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"to":    chatID,
			"media": media,
		}).
		Post("/messages/voice")
	if err != nil {
		return fmt.Errorf("failed to send voice message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected voice message: %s", resp.Status())
	}

	c.logger.Info("Voice message sent", zap.String("chat_id", chatID))
	return nil
}

// SendImage posts a still image. The gateway's media endpoints are
// inconsistent across plans, so delivery falls through an ordered chain:
// multipart upload, then inline base64, then a document attachment.
func (c *GatewayClient) SendImage(ctx context.Context, chatID, imagePath, caption string) error {
	strategies := []Strategy{
		{Name: "multipart", Attempt: func(ctx context.Context) error {
			return c.sendImageMultipart(ctx, chatID, imagePath, caption)
		}},
		{Name: "base64", Attempt: func(ctx context.Context) error {
			return c.sendImageBase64(ctx, chatID, imagePath, caption)
		}},
		{Name: "document", Attempt: func(ctx context.Context) error {
			return c.sendImageDocument(ctx, chatID, imagePath, caption)
		}},
	}

	winner, err := TryInOrder(ctx, c.logger, "send_image", strategies)
	if err != nil {
		return err
	}

	c.logger.Info("Image sent",
		zap.String("chat_id", chatID),
		zap.String("strategy", winner),
	)
	return nil
}

// SendGIF posts an animated alert.
func (c *GatewayClient) SendGIF(ctx context.Context, chatID, gifPath, caption string) error {
	media, err := fileAsDataURI(gifPath, "image/gif")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"to":      chatID,
			"media":   media,
			"caption": caption,
		}).
		Post("/messages/gif")
	if err != nil {
		return fmt.Errorf("failed to send animated alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected animated alert: %s", resp.Status())
	}

	c.logger.Info("Animated alert sent", zap.String("chat_id", chatID))
	return nil
}

func (c *GatewayClient) sendImageMultipart(ctx context.Context, chatID, imagePath, caption string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFile("media", imagePath).
		SetFormData(map[string]string{
			"to":      chatID,
			"caption": caption,
		}).
		Post("/messages/image")
	if err != nil {
		return fmt.Errorf("multipart image upload failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected multipart image: %s", resp.Status())
	}
	return nil
}

func (c *GatewayClient) sendImageBase64(ctx context.Context, chatID, imagePath, caption string) error {
	media, err := fileAsDataURI(imagePath, "image/png")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"to":      chatID,
			"media":   media,
			"caption": caption,
		}).
		Post("/messages/image")
	if err != nil {
		return fmt.Errorf("base64 image send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected base64 image: %s", resp.Status())
	}
	return nil
}

func (c *GatewayClient) sendImageDocument(ctx context.Context, chatID, imagePath, caption string) error {
	media, err := fileAsDataURI(imagePath, "application/octet-stream")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"to":       chatID,
			"media":    media,
			"filename": filepath.Base(imagePath),
			"caption":  caption,
		}).
		Post("/messages/document")
	if err != nil {
		return fmt.Errorf("document image send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gateway rejected document image: %s", resp.Status())
	}
	return nil
}

func fileAsDataURI(path, mimeType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read media file %s: %w", path, err)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
