package astro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/astro-tavern/backend/internal/config"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

// tokenSkew is subtracted from the advertised token lifetime.
const tokenSkew = time.Minute

// tokenRefreshTimeout bounds a refresh that no longer follows any single caller's context.
const tokenRefreshTimeout = 15 * time.Second

// Client fetches birth charts from the Prokerala astrology API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	ayanamsa     int
	logger       *zap.Logger
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	tokenGroup  singleflight.Group
}

// NewClient builds a Prokerala client. httpClient may be nil.
func NewClient(cfg config.ChartConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		ayanamsa:     cfg.Ayanamsa,
		logger:       logger,
		now:          time.Now,
	}
}

// BirthChart returns the birth-details document for a UTC instant and coordinates.
// The body is returned verbatim.
func (c *Client) BirthChart(ctx context.Context, instant time.Time, lat, lon float64) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ayanamsa", strconv.Itoa(c.ayanamsa))
	params.Set("datetime", instant.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("coordinates", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/astrology/birth-details?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gateway.Wrap(gateway.Chart, 0, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, gateway.Wrap(gateway.Chart, res.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		c.logger.Warn("chart request failed",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", truncate(body, 2048)))
		return nil, gateway.Wrap(gateway.Chart, res.StatusCode, errors.New(http.StatusText(res.StatusCode)))
	}

	if !json.Valid(body) {
		return nil, gateway.Wrap(gateway.Chart, res.StatusCode, errors.New("response is not valid JSON"))
	}

	c.logger.Debug("chart fetched", zap.String("datetime", params.Get("datetime")))
	return json.RawMessage(body), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached access token, refreshing it once for all concurrent callers.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	ch := c.tokenGroup.DoChan("token", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenRefreshTimeout)
		defer cancel()
		return c.fetchToken(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", gateway.Wrap(gateway.Chart, 0, fmt.Errorf("obtain access token: %w", ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", gateway.Wrap(gateway.Chart, 0, fmt.Errorf("obtain access token: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		c.logger.Warn("chart token request failed",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", body))
		return "", gateway.Wrap(gateway.Chart, res.StatusCode, errors.New("failed to obtain access token"))
	}

	var decoded tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", gateway.Wrap(gateway.Chart, res.StatusCode, fmt.Errorf("decode token: %w", err))
	}
	if decoded.AccessToken == "" {
		return "", gateway.Wrap(gateway.Chart, res.StatusCode, errors.New("empty access token"))
	}

	c.mu.Lock()
	c.accessToken = decoded.AccessToken
	c.expiresAt = c.now().Add(time.Duration(decoded.ExpiresIn)*time.Second - tokenSkew)
	c.mu.Unlock()

	return decoded.AccessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
