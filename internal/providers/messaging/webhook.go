package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

// WebhookSender posts each reminder as JSON to a messaging gateway (WhatsApp, SMS, ...).
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
	log   *zap.Logger
}

type webhookMessage struct {
	TenantID       string  `json:"tenant_id"`
	Stage          string  `json:"stage"`
	CartID         string  `json:"cart_id"`
	ExternalCartID string  `json:"external_cart_id"`
	CustomerName   string  `json:"customer_name"`
	CustomerPhone  *string `json:"customer_phone,omitempty"`
	CustomerEmail  *string `json:"customer_email,omitempty"`
	CartURL        string  `json:"cart_url,omitempty"`
	TemplateID     string  `json:"template_id"`
	Content        string  `json:"content"`
	ImageURL       *string `json:"image_url,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
}

func NewWebhook(url, token string, httpClient *http.Client, log *zap.Logger) *WebhookSender {
	if httpClient == nil {
		httpClient = tracing.WrapHTTPClient(&http.Client{})
	}
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  httpClient,
		log:   log.Named("messaging.webhook"),
	}
}

func (s *WebhookSender) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	if s.url == "" {
		return domain.SendResult{}, fmt.Errorf("%w: webhook url not configured", domain.ErrSendFailed)
	}

	body, err := json.Marshal(webhookMessage{
		TenantID:       req.TenantID,
		Stage:          string(req.Stage),
		CartID:         req.Cart.ID.String(),
		ExternalCartID: req.Cart.ExternalCartID,
		CustomerName:   req.Cart.CustomerName,
		CustomerPhone:  req.Cart.CustomerPhone,
		CustomerEmail:  req.Cart.CustomerEmail,
		CartURL:        req.Cart.CartURL,
		TemplateID:     req.Template.ID.String(),
		Content:        req.Content,
		ImageURL:       req.Template.ImageURL,
	})
	if err != nil {
		return domain.SendResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return domain.SendResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		s.log.Warn("messaging.webhook.rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)),
		)
		return domain.SendResult{}, fmt.Errorf("%w: gateway status %d", domain.ErrSendFailed, resp.StatusCode)
	}

	var out webhookResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		s.log.Debug("messaging.webhook.unparsed_response", zap.Error(err))
	}
	messageID := out.MessageID
	if messageID == "" {
		messageID = out.ID
	}
	return domain.SendResult{Provider: ProviderWebhook, MessageID: messageID}, nil
}
