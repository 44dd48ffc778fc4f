package channels

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"barrio-alarm/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpeechSynthesizer turns an alert script into a voice-note audio file.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, script string) (oggPath string, err error)
}

// ConvertFunc transcodes the synthesized audio into OGG/Opus. Swappable
// in tests to avoid the external encoder.
type ConvertFunc func(ctx context.Context, mp3Path, oggPath string) error

// TTSClient synthesizes Spanish voice alerts through the speech API and
// transcodes them for voice-note delivery.
type TTSClient struct {
	config     *config.SpeechConfig
	httpClient *resty.Client
	logger     *zap.Logger
	tempDir    string
	convert    ConvertFunc
}

// NewTTSClient creates the synthesizer.
func NewTTSClient(cfg *config.SpeechConfig, tempDir string, logger *zap.Logger) *TTSClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(60 * time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &TTSClient{
		config:     cfg,
		httpClient: client,
		logger:     logger,
		tempDir:    tempDir,
		convert:    convertWithFFmpeg,
	}
}

// SetConvertFunc replaces the transcoder.
func (c *TTSClient) SetConvertFunc(fn ConvertFunc) {
	c.convert = fn
}

// Synthesize produces an OGG/Opus file for the script and returns its
// path. The caller owns the file and removes it after sending.
func (c *TTSClient) Synthesize(ctx context.Context, script string) (string, error) {
	id := uuid.New().String()
	mp3Path := filepath.Join(c.tempDir, "alert_"+id+".mp3")
	oggPath := filepath.Join(c.tempDir, "alert_"+id+".ogg")

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":           c.config.Model,
			"voice":           c.config.Voice,
			"input":           script,
			"response_format": "mp3",
		}).
		SetOutput(mp3Path).
		Post("/v1/audio/speech")
	if err != nil {
		return "", fmt.Errorf("speech synthesis request failed: %w", err)
	}
	if resp.IsError() {
		os.Remove(mp3Path)
		return "", fmt.Errorf("speech API rejected synthesis: %s", resp.Status())
	}
	defer os.Remove(mp3Path)

	if err := c.convert(ctx, mp3Path, oggPath); err != nil {
		os.Remove(oggPath)
		return "", fmt.Errorf("failed to transcode voice alert: %w", err)
	}

	c.logger.Info("Voice alert synthesized",
		zap.String("path", oggPath),
		zap.Int("script_length", len(script)),
	)
	return oggPath, nil
}

// convertWithFFmpeg transcodes to the voice-note format the gateway
// accepts: OGG/Opus, 16 kHz, mono.
func convertWithFFmpeg(ctx context.Context, mp3Path, oggPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", mp3Path,
		"-c:a", "libopus",
		"-b:a", "32k",
		"-ar", "16000",
		"-ac", "1",
		oggPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, string(out))
	}
	return nil
}
