package progression

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"town-challenge-service/internal/domain"
)

// HTTPBridge talks to the external progression service that owns job levels
// and account balances. Every request carries the session ID so the remote
// side can drop replays.
type HTTPBridge struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBridge(baseURL string) *HTTPBridge {
	return &HTTPBridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type experienceRequest struct {
	UserID    string `json:"userId"`
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	Points    int    `json:"points"`
}

type experienceResponse struct {
	NewLevel int `json:"newLevel"`
}

type currencyRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Amount    int    `json:"amount"`
}

func (b *HTTPBridge) CreditExperience(ctx context.Context, userID, jobID, sessionID string, points int) (int, error) {
	var resp experienceResponse
	err := b.post(ctx, "/progression/experience", experienceRequest{
		UserID:    userID,
		JobID:     jobID,
		SessionID: sessionID,
		Points:    points,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.NewLevel, nil
}

func (b *HTTPBridge) CreditCurrency(ctx context.Context, userID, sessionID string, amount int) error {
	return b.post(ctx, "/progression/currency", currencyRequest{
		UserID:    userID,
		SessionID: sessionID,
		Amount:    amount,
	}, nil)
}

func (b *HTTPBridge) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: bridge returned %d", domain.ErrUpstreamFailure, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamFailure, err)
		}
	}
	return nil
}

// NoopBridge accepts every credit without side effects. Used when no bridge
// URL is configured (standalone/demo mode).
type NoopBridge struct{}

func (NoopBridge) CreditExperience(context.Context, string, string, string, int) (int, error) {
	return 0, nil
}

func (NoopBridge) CreditCurrency(context.Context, string, string, int) error {
	return nil
}
