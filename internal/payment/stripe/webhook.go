package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/accounts/internal/payment/domain"
)

// SignatureTolerance bounds how old a signed webhook timestamp may be.
const SignatureTolerance = 5 * time.Minute

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Created  int64  `json:"created"`
}

// ParseWebhook verifies the Stripe-Signature header and reduces the event.
// Events this service does not act on return ErrEventIgnored.
func (c *Client) ParseWebhook(payload []byte, headers http.Header) (*domain.Event, error) {
	if c.webhookSecret == "" {
		return nil, domain.ErrWebhookDisabled
	}
	if err := c.verify(payload, headers.Get("Stripe-Signature")); err != nil {
		return nil, err
	}

	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(evt.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(evt.Type) {
	case "charge.failed", "invoice.payment_failed":
	default:
		return nil, domain.ErrEventIgnored
	}

	var obj eventObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(obj.Customer) == "" {
		return nil, domain.ErrEventIgnored
	}

	return &domain.Event{
		ID:         evt.ID,
		Type:       domain.EventTypePaymentFailed,
		Provider:   ProviderName,
		CustomerID: strings.TrimSpace(obj.Customer),
		OccurredAt: timestamp(obj.Created, evt.Created),
	}, nil
}

func (c *Client) verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.ErrInvalidSignature
	}
	ts, signatures, err := parseSignature(header)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if age := c.now().Sub(time.Unix(unix, 0)); age > SignatureTolerance || age < -SignatureTolerance {
		return domain.ErrInvalidSignature
	}

	expected := Sign(c.webhookSecret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// Sign computes the v1 signature for a timestamped payload.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignature(header string) (string, []string, error) {
	var ts string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
