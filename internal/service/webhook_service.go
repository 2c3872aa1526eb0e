package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"savings-lockbox/internal/core/ports"

	"github.com/rs/zerolog"
)

// HeaderWebhookSignature carries the hex HMAC-SHA256 of the request body.
const HeaderWebhookSignature = "X-LockBox-Signature"

// webhookRetryIntervals are the waits between delivery attempts.
var webhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// WebhookPayload is the JSON structure POSTed to the configured webhook URL.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
	Signature string             `json:"signature"`
}

// WebhookPayloadData holds the lockbox details in the webhook.
type WebhookPayloadData struct {
	Owner          string `json:"owner"`
	LockBox        string `json:"lockbox"`
	TargetAmount   uint64 `json:"target_amount"`
	CurrentBalance uint64 `json:"current_balance"`
	Amount         uint64 `json:"amount"`
	IsActive       bool   `json:"is_active"`
	Timestamp      int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookService implements ports.NotificationService.
type webhookService struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	retries    []time.Duration
	log        zerolog.Logger
}

// NewWebhookService creates a notifier that POSTs signed lockbox events to url.
func NewWebhookService(
	url string,
	secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.NotificationService {
	return &webhookService{
		url:        url,
		secret:     secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		retries:    webhookRetryIntervals,
		log:        log,
	}
}

// Notify signs the event and delivers it asynchronously with retries.
func (s *webhookService) Notify(_ context.Context, event ports.LockBoxEvent) error {
	if s.url == "" {
		s.log.Debug().Str("event", event.Type).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	lb := event.LockBox
	data := WebhookPayloadData{
		Owner:          lb.Owner.String(),
		LockBox:        lb.Address.String(),
		TargetAmount:   lb.TargetAmount,
		CurrentBalance: lb.CurrentBalance,
		Amount:         event.Amount,
		IsActive:       lb.IsActive,
		Timestamp:      time.Now().Unix(),
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook data: %w", err)
	}

	payload := WebhookPayload{
		EventType: event.Type,
		Data:      data,
		Signature: s.sigSvc.Sign(s.secret, string(dataBytes)),
	}

	// Fire async with retries
	go s.deliverWithRetries(payload, lb.Owner.String())

	return nil
}

// deliverWithRetries attempts delivery once plus once per retry interval.
func (s *webhookService) deliverWithRetries(payload WebhookPayload, owner string) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("owner", owner).Msg("webhook: failed to marshal payload")
		return
	}

	for attempt := 0; attempt <= len(s.retries); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retries[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(payloadBytes))
		if err != nil {
			s.log.Error().Err(err).Str("owner", owner).Int("attempt", attempt+1).Msg("webhook: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderWebhookSignature, payload.Signature)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("owner", owner).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("owner", owner).Str("event", payload.EventType).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: delivered successfully")
			return
		}

		s.log.Warn().Str("owner", owner).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
	}

	s.log.Error().Str("owner", owner).Str("event", payload.EventType).Msg("webhook: all retry attempts exhausted")
}
