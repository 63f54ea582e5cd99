package razorpay

import (
	"fmt"
	"strings"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
)

// OrderCreateParams captures the inputs needed to open a gateway order.
type OrderCreateParams struct {
	AmountMinor int64
	Currency    enums.Currency
	Receipt     string
	Notes       map[string]string
}

// Validate ensures the order request is well formed before hitting the gateway.
func (p OrderCreateParams) Validate() error {
	if p.AmountMinor <= 0 {
		return fmt.Errorf("amount must be positive, got %d", p.AmountMinor)
	}
	if !p.Currency.IsValid() {
		return fmt.Errorf("invalid currency %q", p.Currency)
	}
	if strings.TrimSpace(p.Receipt) == "" {
		return fmt.Errorf("receipt is required")
	}
	return nil
}

func (p OrderCreateParams) toRequestData() map[string]interface{} {
	data := map[string]interface{}{
		"amount":   p.AmountMinor,
		"currency": p.Currency.String(),
		"receipt":  p.Receipt,
	}
	if len(p.Notes) > 0 {
		notes := make(map[string]interface{}, len(p.Notes))
		for k, v := range p.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}
	return data
}

// RefundCreateParams captures the inputs for refunding a captured payment.
type RefundCreateParams struct {
	PaymentID   string
	AmountMinor int64
	Reason      string
	Notes       map[string]string
}

// Validate ensures the refund request is well formed before hitting the gateway.
func (p RefundCreateParams) Validate() error {
	if strings.TrimSpace(p.PaymentID) == "" {
		return fmt.Errorf("payment id is required")
	}
	if p.AmountMinor <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", p.AmountMinor)
	}
	return nil
}

func (p RefundCreateParams) toRequestData() map[string]interface{} {
	data := map[string]interface{}{}
	notes := make(map[string]interface{}, len(p.Notes)+1)
	for k, v := range p.Notes {
		notes[k] = v
	}
	if strings.TrimSpace(p.Reason) != "" {
		notes["reason"] = p.Reason
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	return data
}
