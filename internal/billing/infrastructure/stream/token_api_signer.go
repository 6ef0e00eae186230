package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/resilience"
	"golang.org/x/oauth2"
)

// DefaultAPIBaseURL is the Cloudflare API root.
const DefaultAPIBaseURL = "https://api.cloudflare.com/client/v4"

// TokenAPISigner asks the Stream token endpoint for a signed playback token.
type TokenAPISigner struct {
	accountID string
	baseURL   string
	client    *http.Client
	breaker   *resilience.Breaker
	now       func() time.Time
}

var _ application.PlaybackSigner = (*TokenAPISigner)(nil)

// TokenAPIConfig configures a TokenAPISigner.
type TokenAPIConfig struct {
	AccountID string
	APIToken  string
	BaseURL   string
	Timeout   time.Duration
}

// NewTokenAPISigner creates a signer. It is disabled unless both the
// account id and API token are set.
func NewTokenAPISigner(cfg TokenAPIConfig, breaker *resilience.Breaker) *TokenAPISigner {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &TokenAPISigner{
		accountID: cfg.AccountID,
		baseURL:   base,
		breaker:   breaker,
		now:       time.Now,
	}
	if cfg.AccountID != "" && cfg.APIToken != "" {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken, TokenType: "Bearer"})
		s.client = &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: source, Base: http.DefaultTransport},
		}
	}
	return s
}

func (s *TokenAPISigner) Name() string  { return "token-api" }
func (s *TokenAPISigner) Enabled() bool { return s != nil && s.client != nil }

type tokenRequest struct {
	Exp int64 `json:"exp"`
}

type tokenResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Token string `json:"token"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Sign requests a token valid for ttl.
func (s *TokenAPISigner) Sign(ctx context.Context, playbackID string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("token api not configured")
	}
	body, err := json.Marshal(tokenRequest{Exp: s.now().Add(ttl).Unix()})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/accounts/%s/stream/%s/token", s.baseURL, s.accountID, playbackID)

	return resilience.Execute(s.breaker, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return "", fmt.Errorf("stream token api: status=%d body=%s", resp.StatusCode, string(msg))
		}

		var out tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode stream token response: %w", err)
		}
		if !out.Success || out.Result.Token == "" {
			if len(out.Errors) > 0 {
				return "", fmt.Errorf("stream token api: %s", out.Errors[0].Message)
			}
			return "", fmt.Errorf("stream token api: empty token")
		}
		return out.Result.Token, nil
	})
}
