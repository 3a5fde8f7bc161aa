package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"relove-be/internal/logger"

	"go.uber.org/zap"
)

const resendBaseURL = "https://api.resend.com"

// EmailSender delivers transactional email. Implementations are
// best-effort: callers treat failures as diagnostics, never as checkout
// failures.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

type resendSender struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewResendSender(apiKey, from string) EmailSender {
	if apiKey == "" {
		logger.L().Warn("email API key is empty, sends will fail")
	}

	return &resendSender{
		apiKey:  apiKey,
		from:    from,
		baseURL: resendBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *resendSender) Send(ctx context.Context, to, subject, html string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", "resend"),
		zap.String("subject", subject),
	)

	payload, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error("email send failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read email response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("email rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("email error: %s", string(body))
	}

	log.Info("email sent")
	return nil
}
