package adyen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/igabaycare/care-api/internal/model"
)

var (
	ErrInvalidSignature = errors.New("adyen: invalid hmac signature")
	ErrMalformed        = errors.New("adyen: malformed notification")
)

// Event codes acted upon.
const (
	EventAuthorisation = "AUTHORISATION"
	EventCancellation  = "CANCELLATION"
	EventRefund        = "REFUND"
)

type NotificationRequest struct {
	Live              string             `json:"live"`
	NotificationItems []NotificationItem `json:"notificationItems"`
}

type NotificationItem struct {
	Item NotificationRequestItem `json:"NotificationRequestItem"`
}

type NotificationRequestItem struct {
	AdditionalData      map[string]interface{} `json:"additionalData"`
	Amount              Amount                 `json:"amount"`
	EventCode           string                 `json:"eventCode"`
	EventDate           string                 `json:"eventDate"`
	MerchantAccountCode string                 `json:"merchantAccountCode"`
	MerchantReference   string                 `json:"merchantReference"`
	OriginalReference   string                 `json:"originalReference"`
	PaymentMethod       string                 `json:"paymentMethod"`
	PspReference        string                 `json:"pspReference"`
	Reason              string                 `json:"reason"`
	Success             string                 `json:"success"`
}

// SigningString is the colon-joined payload Adyen signs for one item.
func (i *NotificationRequestItem) SigningString() string {
	return strings.Join([]string{
		i.PspReference,
		i.OriginalReference,
		i.MerchantAccountCode,
		i.MerchantReference,
		strconv.FormatInt(i.Amount.Value, 10),
		i.Amount.Currency,
		i.EventCode,
		i.Success,
	}, ":")
}

func (i *NotificationRequestItem) signature() string {
	if i.AdditionalData == nil {
		return ""
	}
	s, _ := i.AdditionalData["hmacSignature"].(string)
	return s
}

// Sign computes base64(HMAC-SHA256(key, signing string)) with the
// hex-encoded key from the Customer Area.
func Sign(hexKey string, item *NotificationRequestItem) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", fmt.Errorf("adyen: invalid hmac key: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(item.SigningString()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type Verifier struct {
	hmacKey string
}

func NewVerifier(hexKey string) *Verifier {
	return &Verifier{hmacKey: hexKey}
}

// Parse decodes the batch and verifies every item. A single bad signature
// rejects the whole batch.
func (v *Verifier) Parse(body []byte) ([]*model.ProviderEvent, error) {
	if v.hmacKey == "" {
		return nil, ErrInvalidSignature
	}

	var req NotificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(req.NotificationItems) == 0 {
		return nil, fmt.Errorf("%w: no notification items", ErrMalformed)
	}

	events := make([]*model.ProviderEvent, 0, len(req.NotificationItems))
	for idx := range req.NotificationItems {
		item := &req.NotificationItems[idx].Item
		expected, err := Sign(v.hmacKey, item)
		if err != nil {
			return nil, err
		}
		if !hmac.Equal([]byte(expected), []byte(item.signature())) {
			return nil, ErrInvalidSignature
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		events = append(events, toEvent(item, raw))
	}
	return events, nil
}

func toEvent(item *NotificationRequestItem, raw json.RawMessage) *model.ProviderEvent {
	success := item.Success == "true"
	ev := &model.ProviderEvent{
		Provider:   model.ProviderAdyen,
		EventID:    item.PspReference + ":" + item.EventCode + ":" + item.Success,
		EventType:  item.EventCode,
		Reference:  item.MerchantReference,
		Amount:     item.Amount.Value,
		Currency:   item.Amount.Currency,
		Reason:     item.Reason,
		PaymentRef: item.PspReference,
		OccurredAt: parseEventDate(item.EventDate),
		Raw:        raw,
	}

	switch item.EventCode {
	case EventAuthorisation:
		if success {
			ev.Status = model.TransactionStatusPaid
		} else {
			ev.Status = model.TransactionStatusFailed
		}
	case EventCancellation:
		if success {
			ev.Status = model.TransactionStatusCancelled
		}
	case EventRefund:
		if success {
			ev.Status = model.TransactionStatusRefunded
		}
	}
	return ev
}

// parseEventDate returns the zero time when eventDate is missing or
// unreadable, so the event never counts as newer than one already applied.
func parseEventDate(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
