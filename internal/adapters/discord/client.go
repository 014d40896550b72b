// Package discord talks to the chat platform REST API on behalf of the bot.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
	UserAgent      string
}

type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: platform base url is required", domain.ErrValidation)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%w: platform base url: %v", domain.ErrValidation, err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "dc-license-bot"
	}
	return &Client{
		baseURL:   base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}, nil
}

type channelResponse struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	ParentID string `json:"parent_id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
}

type messageRequest struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// allowedMentions keeps declarations from pinging anyone they mention.
type allowedMentions struct {
	Parse []string `json:"parse"`
}

type messageResponse struct {
	ID string `json:"id"`
}

func (c *Client) GetThread(ctx context.Context, threadID string) (domain.ThreadInfo, error) {
	var ch channelResponse
	if err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(threadID), nil, &ch); err != nil {
		return domain.ThreadInfo{}, err
	}
	return domain.ThreadInfo{
		ThreadID:  ch.ID,
		ChannelID: ch.ParentID,
		GuildID:   ch.GuildID,
		AuthorID:  ch.OwnerID,
		Title:     ch.Name,
	}, nil
}

func (c *Client) PostMessage(ctx context.Context, threadID, content string) (string, error) {
	var msg messageResponse
	body := messageRequest{Content: content, AllowedMentions: allowedMentions{Parse: []string{}}}
	if err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(threadID)+"/messages", body, &msg); err != nil {
		return "", err
	}
	if msg.ID == "" {
		return "", fmt.Errorf("%w: post message returned no id", domain.ErrPlatform)
	}
	return msg.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, threadID, messageID, content string) error {
	body := messageRequest{Content: content, AllowedMentions: allowedMentions{Parse: []string{}}}
	return c.do(ctx, http.MethodPatch, messagePath(threadID, messageID), body, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	return c.do(ctx, http.MethodDelete, messagePath(threadID, messageID), nil, nil)
}

func (c *Client) PinMessage(ctx context.Context, threadID, messageID string) error {
	return c.do(ctx, http.MethodPut, pinPath(threadID, messageID), nil, nil)
}

func (c *Client) UnpinMessage(ctx context.Context, threadID, messageID string) error {
	return c.do(ctx, http.MethodDelete, pinPath(threadID, messageID), nil, nil)
}

func messagePath(threadID, messageID string) string {
	return "/channels/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID)
}

func pinPath(threadID, messageID string) string {
	return "/channels/" + url.PathEscape(threadID) + "/pins/" + url.PathEscape(messageID)
}

// do waits for the rate limiter, sends one request and decodes a JSON reply
// into out when out is non-nil. 404 maps to domain.ErrNotFound; every other
// failure wraps domain.ErrPlatform.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", domain.ErrPlatform, err)
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrPlatform, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrPlatform, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", domain.ErrPlatform, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", domain.ErrPlatform, method, path, err)
	}
	return nil
}

var _ ports.Platform = (*Client)(nil)
