// Package giftogram is a thin client for the gift card provider API.
package giftogram

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"GiftSend/internal/metrics"
	"GiftSend/internal/models"
)

var recipientEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Config struct {
	BaseURL     string
	APIKey      string
	Environment string
	CampaignID  string
	Timeout     time.Duration
}

// Client talks to the provider. It never retries: every call is one attempt.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: logger.Named("giftogram"),
		now: time.Now,
	}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// SubmitOrder validates req locally and creates one order for one recipient.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ValidateOrder(req); err != nil {
		return nil, err
	}

	campaignID := req.CampaignID
	if campaignID == "" {
		campaignID = c.cfg.CampaignID
	}
	name := req.RecipientName
	if name == "" {
		name = localPart(req.RecipientEmail)
	}
	message := req.Message
	if message == "" {
		message = models.DefaultMessage
	}

	externalID := NewExternalID(c.now())

	payload := createOrderRequest{
		ExternalID:      externalID,
		CampaignID:      campaignID,
		Notes:           fmt.Sprintf("Gift card for %s (%s)", name, req.RecipientEmail),
		ReferenceNumber: externalID,
		Message:         message,
		Subject:         models.DefaultSubject,
		Recipients:      []orderRecipient{{Email: req.RecipientEmail, Name: name}},
		Denomination:    strconv.Itoa(req.Amount),
	}

	var resp createOrderResponse
	if err := c.request(ctx, "create order", http.MethodPost, "/api/v1/orders", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.OrderID == "" {
		return nil, &models.ProviderError{Op: "create order", Message: "malformed response: missing data.order_id"}
	}

	c.log.Info("order created",
		zap.String("external_id", externalID),
		zap.String("order_id", resp.Data.OrderID),
		zap.String("recipient", req.RecipientEmail),
		zap.Int("amount", req.Amount),
	)

	return &Order{
		ProviderOrderID: resp.Data.OrderID,
		ExternalID:      externalID,
		ProviderStatus:  resp.Data.Status,
		CampaignID:      campaignID,
		Amount:          req.Amount,
		RecipientEmail:  req.RecipientEmail,
		RecipientName:   name,
		Message:         message,
		Subject:         models.DefaultSubject,
		CreatedAt:       c.now(),
	}, nil
}

// GetOrderStatus fetches the provider's current view of an order.
func (c *Client) GetOrderStatus(ctx context.Context, providerOrderID string) (*OrderStatus, error) {
	if providerOrderID == "" {
		return nil, &models.ValidationError{Message: "Missing required fields", Fields: []string{"orderId"}}
	}

	var resp orderStatusResponse
	path := "/api/v1/orders/" + url.PathEscape(providerOrderID)
	if err := c.request(ctx, "order status", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	st := resp.OrderStatus
	if resp.Data != nil {
		st = *resp.Data
	}
	if st.Status == "" {
		return nil, &models.ProviderError{Op: "order status", Message: "malformed response: missing status"}
	}
	if st.OrderID == "" {
		st.OrderID = providerOrderID
	}
	return &st, nil
}

// ListCampaigns returns the campaigns available to the account.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp campaignsResponse
	if err := c.request(ctx, "campaigns", http.MethodGet, "/api/v1/campaigns", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &models.ProviderError{Op: "campaigns", Message: "malformed response: missing data"}
	}
	return resp.Data, nil
}

// request performs one call to the provider API
func (c *Client) request(ctx context.Context, op, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("provider request failed", zap.String("op", op), zap.Error(err))
		return &models.ProviderError{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			switch {
			case errResp.Message != "":
				msg = errResp.Message
			case errResp.Error != "":
				msg = errResp.Error
			}
		}
		c.log.Warn("provider returned error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &models.ProviderError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + err.Error(),
			Err:        err,
		}
	}

	return nil
}

// ValidateOrder checks req before anything is sent to the provider.
func ValidateOrder(req OrderRequest) error {
	var missing []string
	if req.Amount == 0 {
		missing = append(missing, "amount")
	}
	if req.RecipientEmail == "" {
		missing = append(missing, "recipientEmail")
	}
	if len(missing) > 0 {
		return &models.ValidationError{Message: "Missing required fields", Fields: missing}
	}

	if !recipientEmailPattern.MatchString(req.RecipientEmail) {
		return &models.ValidationError{Message: "Invalid recipient email format", Fields: []string{"recipientEmail"}}
	}
	if !models.ValidAmount(req.Amount) {
		return &models.ValidationError{
			Message: fmt.Sprintf("Amount must be between $%d and $%d", models.MinAmount, models.MaxAmount),
			Fields:  []string{"amount"},
		}
	}
	return nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewExternalID returns a reference key of the form GC-<unix millis>-<9 chars>.
// Suffix characters are uniform over base36.
func NewExternalID(now time.Time) string {
	// largest multiple of 36 that fits a byte; higher bytes are redrawn
	const limit = 252

	suffix := make([]byte, 0, 9)
	buf := make([]byte, 16)
	for len(suffix) < cap(suffix) {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("read random bytes: %v", err))
		}
		for _, b := range buf {
			if b >= limit || len(suffix) == cap(suffix) {
				continue
			}
			suffix = append(suffix, base36[int(b)%len(base36)])
		}
	}
	return fmt.Sprintf("GC-%d-%s", now.UnixMilli(), suffix)
}

// MaskedKey returns the first characters of the API key, for diagnostics.
func (c *Client) MaskedKey() string {
	if c.cfg.APIKey == "" {
		return "NOT SET"
	}
	if len(c.cfg.APIKey) <= 10 {
		return "..."
	}
	return c.cfg.APIKey[:10] + "..."
}

// IsProviderError reports whether err carries a provider failure.
func IsProviderError(err error) bool {
	var pe *models.ProviderError
	return errors.As(err, &pe)
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
