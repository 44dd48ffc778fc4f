package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"barrio-alarm/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DeviceController switches the physical alarm device on or off.
type DeviceController interface {
	SetState(ctx context.Context, deviceID string, on bool) error
}

type cloudAuthResponse struct {
	Status int    `json:"status"`
	Token  string `json:"at"`
	Msg    string `json:"msg,omitempty"`
}

type cloudSwitchResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

// CloudSwitchClient drives the smart switch through its vendor cloud.
// The vendor shards accounts by region, so authentication walks the
// configured regions in order until one accepts the credentials.
type CloudSwitchClient struct {
	config     *config.DeviceConfig
	httpClient *resty.Client
	logger     *zap.Logger

	// regionURL maps a region code to its API endpoint. Overridable in tests.
	regionURL func(region string) string

	mu     sync.Mutex
	token  string
	region string
}

// NewCloudSwitchClient creates the cloud switch client.
func NewCloudSwitchClient(cfg *config.DeviceConfig, logger *zap.Logger) *CloudSwitchClient {
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &CloudSwitchClient{
		config:     cfg,
		httpClient: client,
		logger:     logger,
		regionURL: func(region string) string {
			return fmt.Sprintf("https://%s-apia.coolkit.cc", region)
		},
	}
}

// authenticate resolves the account's home region. Each region is one
// strategy in the chain.
func (c *CloudSwitchClient) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return nil
	}

	strategies := make([]Strategy, 0, len(c.config.Regions))
	for _, region := range c.config.Regions {
		region := region
		strategies = append(strategies, Strategy{
			Name: "region_" + region,
			Attempt: func(ctx context.Context) error {
				return c.login(ctx, region)
			},
		})
	}

	if _, err := TryInOrder(ctx, c.logger, "device_auth", strategies); err != nil {
		return fmt.Errorf("device cloud authentication failed: %w", err)
	}
	return nil
}

func (c *CloudSwitchClient) login(ctx context.Context, region string) error {
	var auth cloudAuthResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-CK-Appid", c.config.AppID).
		SetBody(map[string]any{
			"email":    c.config.Email,
			"password": c.config.Password,
		}).
		SetResult(&auth).
		Post(c.regionURL(region) + "/v2/user/login")
	if err != nil {
		return fmt.Errorf("login request to %s failed: %w", region, err)
	}
	if resp.IsError() || auth.Status != 0 || auth.Token == "" {
		return fmt.Errorf("region %s rejected credentials: %s", region, auth.Msg)
	}

	c.token = auth.Token
	c.region = region
	c.logger.Info("Device cloud authenticated", zap.String("region", region))
	return nil
}

// SetState toggles the switch. An expired token is dropped so the next
// call re-authenticates.
func (c *CloudSwitchClient) SetState(ctx context.Context, deviceID string, on bool) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	token, region := c.token, c.region
	c.mu.Unlock()

	state := "off"
	if on {
		state = "on"
	}

	var result cloudSwitchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("X-CK-Appid", c.config.AppID).
		SetBody(map[string]any{
			"type":   1,
			"id":     deviceID,
			"params": map[string]string{"switch": state},
		}).
		SetResult(&result).
		Post(c.regionURL(region) + "/v2/device/thing/status")
	if err != nil {
		return fmt.Errorf("device switch request failed: %w", err)
	}
	if resp.StatusCode() == 401 {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("device cloud session expired")
	}
	if resp.IsError() || result.Status != 0 {
		return fmt.Errorf("device cloud rejected switch command: %s", result.Msg)
	}

	c.logger.Info("Device state set via cloud",
		zap.String("device_id", deviceID),
		zap.Bool("on", on),
	)
	return nil
}

// ChainController tries each controller in order until one accepts the
// command. Used to fall back from the vendor cloud to the local broker.
type ChainController struct {
	controllers []namedController
	logger      *zap.Logger
}

type namedController struct {
	name string
	ctrl DeviceController
}

// NewChainController creates an empty chain.
func NewChainController(logger *zap.Logger) *ChainController {
	return &ChainController{logger: logger}
}

// Add appends a controller to the chain.
func (c *ChainController) Add(name string, ctrl DeviceController) *ChainController {
	c.controllers = append(c.controllers, namedController{name: name, ctrl: ctrl})
	return c
}

// SetState delegates down the chain.
func (c *ChainController) SetState(ctx context.Context, deviceID string, on bool) error {
	strategies := make([]Strategy, 0, len(c.controllers))
	for _, nc := range c.controllers {
		nc := nc
		strategies = append(strategies, Strategy{
			Name: nc.name,
			Attempt: func(ctx context.Context) error {
				return nc.ctrl.SetState(ctx, deviceID, on)
			},
		})
	}
	_, err := TryInOrder(ctx, c.logger, "device_switch", strategies)
	return err
}
