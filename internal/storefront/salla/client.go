package salla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	opFetchOrders  = "fetch_orders"
	opRefreshToken = "refresh_token"
	opStoreInfo    = "store_info"

	maxErrorBody = 2048
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type Client struct {
	cfg     config.SallaConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(p Params) domain.Client {
	return NewClient(p.Config.Salla, nil, p.Log)
}

// NewClient builds a client over httpClient. A nil httpClient gets a traced client with the configured timeout.
func NewClient(cfg config.SallaConfig, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = tracing.WrapHTTPClient(&http.Client{Timeout: cfg.RequestTimeout})
	}
	if log == nil {
		log = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.Named("storefront.salla"),
	}
}

func (c *Client) FetchPendingOrders(ctx context.Context, accessToken string, page, perPage int) (*domain.OrderPage, error) {
	query := url.Values{}
	query.Set("status", "pending")
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.APIBaseURL+"/orders?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out domain.OrderPage
	if err := c.do(req, opFetchOrders, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	body, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
	})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.OAuthBaseURL+"/oauth2/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out domain.Tokens
	if err := c.do(req, opRefreshToken, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, fmt.Errorf("storefront %s: empty access token", opRefreshToken)
	}
	return &out, nil
}

type storeInfoEnvelope struct {
	Data domain.StoreInfo `json:"data"`
}

func (c *Client) GetStoreInfo(ctx context.Context, accessToken string) (*domain.StoreInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.APIBaseURL+"/store/info", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out storeInfoEnvelope
	if err := c.do(req, opStoreInfo, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("storefront request failed", zap.String("operation", operation), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("storefront request rejected",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
		)
		return &domain.APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode storefront %s: %w", operation, err)
	}
	return nil
}
