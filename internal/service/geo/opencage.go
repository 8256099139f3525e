package geo

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
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/config"
	"github.com/zhouzirui/astro-tavern/backend/internal/model/geo"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

// Client resolves places and timezones through the OpenCage geocoding API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	countryCode string
	limit       int
	logger      *zap.Logger
}

// NewClient builds an OpenCage client. httpClient may be nil.
func NewClient(cfg config.GeocodeConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		countryCode: cfg.CountryCode,
		limit:       limit,
		logger:      logger,
	}
}

type opencageResponse struct {
	Results []struct {
		Formatted string `json:"formatted"`
		Geometry  struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"geometry"`
		Annotations struct {
			Timezone struct {
				Name string `json:"name"`
			} `json:"timezone"`
		} `json:"annotations"`
	} `json:"results"`
}

// Search returns candidate places for a free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]geo.Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.limit))
	if c.countryCode != "" {
		params.Set("countrycode", c.countryCode)
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	places := make([]geo.Place, 0, len(resp.Results))
	for _, result := range resp.Results {
		places = append(places, geo.Place{
			Formatted: result.Formatted,
			Lat:       result.Geometry.Lat,
			Lon:       result.Geometry.Lng,
		})
	}
	return places, nil
}

// Timezone resolves coordinates to an IANA timezone identifier.
func (c *Client) Timezone(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("no_annotations", "0")

	resp, err := c.get(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", gateway.Wrap(gateway.Geocode, 0, errors.New("no results for coordinates"))
	}

	name := strings.TrimSpace(resp.Results[0].Annotations.Timezone.Name)
	if name == "" {
		return "", gateway.Wrap(gateway.Geocode, 0, errors.New("timezone annotation missing"))
	}
	return name, nil
}

func (c *Client) get(ctx context.Context, params url.Values) (*opencageResponse, error) {
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gateway.Wrap(gateway.Geocode, 0, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		c.logger.Warn("geocode request failed",
			zap.Int("status", res.StatusCode),
			zap.String("body", string(body)))
		return nil, gateway.Wrap(gateway.Geocode, res.StatusCode, errors.New(http.StatusText(res.StatusCode)))
	}

	var decoded opencageResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, gateway.Wrap(gateway.Geocode, res.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return &decoded, nil
}
