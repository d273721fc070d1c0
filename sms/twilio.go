package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned without touching the network while the breaker
// is open. It is retryable: the queue's backoff naturally waits out the
// cooldown.
var ErrCircuitOpen = errors.New("sms provider circuit open")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	accountSid string
	authToken  string
	fromNumber string
	baseURL    string

	httpClient *http.Client
	breaker    *Breaker
	logger     *logrus.Logger
}

// NewTwilioClient reads credentials from TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN
// and TWILIO_FROM_NUMBER. TWILIO_API_BASE_URL overrides the endpoint for
// tests.
func NewTwilioClient(logger *logrus.Logger) (*TwilioClient, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	fromNumber := os.Getenv("TWILIO_FROM_NUMBER")
	if accountSid == "" || authToken == "" || fromNumber == "" {
		return nil, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set")
	}

	baseURL := os.Getenv("TWILIO_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}

	return &TwilioClient{
		accountSid: accountSid,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		breaker:    NewBreaker(),
		logger:     logger,
	}, nil
}

type twilioMessageResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *TwilioClient) Send(ctx context.Context, toPhone, body string) (string, error) {
	if !c.breaker.Allow() {
		return "", ErrCircuitOpen
	}

	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.accountSid, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.Record(false)
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.Record(false)
		return "", fmt.Errorf("twilio response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.breaker.Record(false)
		return "", fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var msg twilioMessageResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		c.breaker.Record(false)
		return "", fmt.Errorf("twilio response parse failed: %w", err)
	}
	if msg.Sid == "" {
		c.breaker.Record(false)
		return "", errors.New("twilio response has no message sid")
	}

	c.breaker.Record(true)
	return msg.Sid, nil
}

// CircuitState exposes the breaker for the ops health endpoint.
func (c *TwilioClient) CircuitState() string {
	return c.breaker.State()
}

// LogSender is the local/dev fallback when Twilio credentials are absent: it
// logs the message instead of delivering it and fabricates a message id.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, toPhone, body string) (string, error) {
	s.logger.WithFields(logrus.Fields{
		"field": "LogSender",
		"to":    toPhone,
		"body":  body,
	}).Info("sms delivery skipped (no provider configured)")
	return fmt.Sprintf("log-%d", time.Now().UnixNano()), nil
}
