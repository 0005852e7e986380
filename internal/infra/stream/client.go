package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harborapp/backend/internal/infra/httpclient"
)

const (
	channelType  = "messaging"
	systemUserID = "harbor-system"
)

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client talks to the chat provider's REST API. The rest of the backend only
// sees channel identifiers and acknowledgments; message delivery, presence
// and history all live on the provider side.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	secret  []byte
	now     func() time.Time
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("messaging base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("messaging api credentials are required")
	}

	return &Client{
		http:    httpclient.New(cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  []byte(cfg.APISecret),
		now:     time.Now,
	}, nil
}

// DeriveChannelID builds the stable channel identifier for a pair of users.
// The smaller identity always comes first, so both swipe orders map to the
// same channel.
func DeriveChannelID(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return "match-" + strconv.FormatInt(userA, 10) + "-" + strconv.FormatInt(userB, 10)
}

func (c *Client) CreateChannel(ctx context.Context, userA, userB int64) (string, error) {
	if userA <= 0 || userB <= 0 || userA == userB {
		return "", fmt.Errorf("invalid channel member pair")
	}

	channelID := DeriveChannelID(userA, userB)
	payload := map[string]any{
		"data": map[string]any{
			"members": []string{
				strconv.FormatInt(userA, 10),
				strconv.FormatInt(userB, 10),
			},
			"created_by_id": systemUserID,
		},
	}

	path := fmt.Sprintf("/channels/%s/%s/query", channelType, channelID)
	if err := c.post(ctx, path, payload); err != nil {
		return "", fmt.Errorf("create channel %s: %w", channelID, err)
	}

	return channelID, nil
}

func (c *Client) FreezeChannel(ctx context.Context, channelID string) error {
	if strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("channel id is required")
	}

	payload := map[string]any{
		"set": map[string]any{
			"frozen": true,
		},
	}

	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	if err := c.patch(ctx, path, payload); err != nil {
		return fmt.Errorf("freeze channel %s: %w", channelID, err)
	}

	return nil
}

func (c *Client) SendSystemMessage(ctx context.Context, channelID, text string) error {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("channel id and text are required")
	}

	// Client-side message id makes retries idempotent on the provider side.
	payload := map[string]any{
		"message": map[string]any{
			"id":      uuid.NewString(),
			"text":    text,
			"type":    "system",
			"user_id": systemUserID,
		},
	}

	path := fmt.Sprintf("/channels/%s/%s/message", channelType, channelID)
	if err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("send system message to %s: %w", channelID, err)
	}

	return nil
}

// ServerToken mints the short-lived JWT the provider expects from backend
// callers.
func (c *Client) ServerToken() (string, error) {
	if len(c.secret) == 0 {
		return "", fmt.Errorf("messaging api secret is empty")
	}

	now := c.now().UTC()
	claims := jwt.MapClaims{
		"server": true,
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign server token: %w", err)
	}

	return signed, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) patch(ctx context.Context, path string, payload any) error {
	return c.do(ctx, http.MethodPatch, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?api_key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	token, err := c.ServerToken()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("Stream-Auth-Type", "jwt")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call messaging api: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("messaging api responded %d", resp.StatusCode)
	}

	return nil
}
