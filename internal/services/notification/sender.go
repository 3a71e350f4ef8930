package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// EmailSender submits a templated email to a transactional email API.
type EmailSender interface {
	Send(ctx context.Context, templateID string, recipient string, params Params) error
}

// EmailJSConfig holds the credentials of an EmailJS-compatible REST API.
type EmailJSConfig struct {
	URL        string
	ServiceID  string
	PublicKey  string
	PrivateKey string
	Timeout    time.Duration
}

// EmailJSSender implements EmailSender against the EmailJS REST API.
type EmailJSSender struct {
	conf       EmailJSConfig
	httpClient *http.Client
}

type emailJSRequest struct {
	ServiceID      string `json:"service_id"`
	TemplateID     string `json:"template_id"`
	UserID         string `json:"user_id"`
	AccessToken    string `json:"accessToken,omitempty"`
	TemplateParams Params `json:"template_params"`
}

// NewEmailJSSender creates a sender whose outbound calls are traced.
func NewEmailJSSender(conf EmailJSConfig) *EmailJSSender {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EmailJSSender{
		conf: conf,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send posts the template and parameters. The recipient is passed as the first template
// parameter, to_email, unless params already carries one.
func (s *EmailJSSender) Send(ctx context.Context, templateID string, recipient string, params Params) error {
	if _, ok := params.Get("to_email"); !ok {
		params = append(Params{{Key: "to_email", Value: recipient}}, params...)
	}

	payload, err := json.Marshal(emailJSRequest{
		ServiceID:      s.conf.ServiceID,
		TemplateID:     templateID,
		UserID:         s.conf.PublicKey,
		AccessToken:    s.conf.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.conf.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email api error: status=%d body=%s", resp.StatusCode, string(b))
	}

	return nil
}
