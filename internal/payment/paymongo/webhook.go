package paymongo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/igabaycare/care-api/internal/model"
)

const SignatureHeader = "Paymongo-Signature"

var (
	ErrInvalidSignature = errors.New("paymongo: invalid signature")
	ErrReplayed         = errors.New("paymongo: signature timestamp outside tolerance")
	ErrMalformed        = errors.New("paymongo: malformed event")
)

// Event types acted upon.
const (
	EventSourceChargeable = "source.chargeable"
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

type Signature struct {
	Timestamp int64
	Test      string
	Live      string
}

// ParseSignature reads "t=<unix>,te=<hex>,li=<hex>".
func ParseSignature(header string) (*Signature, error) {
	var sig Signature
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, ErrInvalidSignature
			}
			sig.Timestamp = ts
		case "te":
			sig.Test = v
		case "li":
			sig.Live = v
		}
	}
	if sig.Timestamp == 0 {
		return nil, ErrInvalidSignature
	}
	return &sig, nil
}

// Sign computes hex(HMAC-SHA256(secret, "<t>.<body>")).
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type Verifier struct {
	secret    string
	liveMode  bool
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, liveMode bool, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, liveMode: liveMode, tolerance: tolerance, now: time.Now}
}

func (v *Verifier) Verify(header string, body []byte) error {
	if v.secret == "" {
		return ErrInvalidSignature
	}
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}

	given := sig.Test
	if v.liveMode {
		given = sig.Live
	}
	if given == "" || !hmac.Equal([]byte(Sign(v.secret, sig.Timestamp, body)), []byte(given)) {
		return ErrInvalidSignature
	}

	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(sig.Timestamp, 0))
		if age > v.tolerance || age < -v.tolerance {
			return ErrReplayed
		}
	}
	return nil
}

type eventBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type      string `json:"type"`
			Livemode  bool   `json:"livemode"`
			CreatedAt int64  `json:"created_at"`
			Data      struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					Amount        int64      `json:"amount"`
					Currency      string     `json:"currency"`
					Status        string     `json:"status"`
					Source        *SourceRef `json:"source"`
					FailedMessage string     `json:"failed_message"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// Parse verifies the signature and normalises the event. Payment events
// reference the source they charged, which is the handle stored at checkout.
func (v *Verifier) Parse(header string, body []byte) (*model.ProviderEvent, error) {
	if err := v.Verify(header, body); err != nil {
		return nil, err
	}

	var eb eventBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	attrs := eb.Data.Attributes
	if eb.Data.ID == "" || attrs.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformed)
	}

	resource := attrs.Data
	ev := &model.ProviderEvent{
		Provider:   model.ProviderPayMongo,
		EventID:    eb.Data.ID,
		EventType:  attrs.Type,
		Reference:  resource.ID,
		Amount:     resource.Attributes.Amount,
		Currency:   resource.Attributes.Currency,
		Reason:     resource.Attributes.FailedMessage,
		Raw:        json.RawMessage(body),
	}
	// left zero when missing so ordering treats the event as not newer
	if attrs.CreatedAt > 0 {
		ev.OccurredAt = time.Unix(attrs.CreatedAt, 0).UTC()
	}

	switch attrs.Type {
	case EventSourceChargeable:
		ev.Chargeable = true
	case EventPaymentPaid, EventPaymentFailed, EventPaymentRefunded:
		ev.PaymentRef = resource.ID
		if src := resource.Attributes.Source; src != nil && src.ID != "" {
			ev.Reference = src.ID
		}
		switch attrs.Type {
		case EventPaymentPaid:
			ev.Status = model.TransactionStatusPaid
		case EventPaymentFailed:
			ev.Status = model.TransactionStatusFailed
		default:
			ev.Status = model.TransactionStatusRefunded
		}
	}
	return ev, nil
}
