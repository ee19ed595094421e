// Package rewards is the boundary to the external XP-granting
// collaborator. The core only sees the Granter interface; grants are
// fire-and-forget with the granter owning its retry policy.
package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shadowmere/dungeon-gm/pkg/session"
)

// Granter delivers earned XP and adventure results to the external
// reward system.
type Granter interface {
	GrantXP(ctx context.Context, tokenID int64, amount int) error
	RecordAdventure(ctx context.Context, data session.AdventureData) error
}

// Noop discards all grants. Used when no reward endpoint is configured.
type Noop struct{}

func (Noop) GrantXP(context.Context, int64, int) error { return nil }

func (Noop) RecordAdventure(context.Context, session.AdventureData) error { return nil }

const maxRetries = 3

// ChainService posts grants to the chain gateway over HTTP, retrying
// transient failures with a short linear backoff.
type ChainService struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
}

func NewChainService(baseURL, token string, logger *slog.Logger) *ChainService {
	return &ChainService{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		backoff: time.Second,
	}
}

type grantXPRequest struct {
	TokenID int64 `json:"tokenId"`
	Amount  int   `json:"amount"`
}

type adventureRequest struct {
	TokenID   int64 `json:"tokenId"`
	Floor     int   `json:"floor"`
	Result    int   `json:"result"`
	XPEarned  int   `json:"xpEarned"`
	KillCount int   `json:"killCount"`
}

func (c *ChainService) GrantXP(ctx context.Context, tokenID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	err := c.post(ctx, "/grant-xp", grantXPRequest{TokenID: tokenID, Amount: amount})
	if err != nil {
		c.logger.Error("XP grant failed", "token_id", tokenID, "amount", amount, "error", err)
		return err
	}
	c.logger.Info("XP granted", "token_id", tokenID, "amount", amount)
	return nil
}

func (c *ChainService) RecordAdventure(ctx context.Context, data session.AdventureData) error {
	var lastErr error
	for _, tokenID := range data.TokenIDs {
		req := adventureRequest{
			TokenID:   tokenID,
			Floor:     data.Floor,
			Result:    data.Result,
			XPEarned:  data.XPEarned,
			KillCount: data.KillCount,
		}
		if err := c.post(ctx, "/record-adventure", req); err != nil {
			c.logger.Error("adventure record failed", "token_id", tokenID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (c *ChainService) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("gateway returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr)
}
