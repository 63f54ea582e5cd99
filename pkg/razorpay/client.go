package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/nikhilbhat/swiftcart-backend/pkg/config"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
	"github.com/nikhilbhat/swiftcart-backend/pkg/logger"
)

// Gateway-side status values surfaced on orders, payments, and refunds.
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"

	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"

	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errLoggerRequired    = errors.New("razorpay logger is required")
)

// Order is the gateway order opened ahead of client-side checkout.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Payment is the gateway's view of a captured or failed charge.
type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	ErrorCode   string `json:"error_code"`
	ErrorReason string `json:"error_description"`
}

// Refund is the gateway's record of money returned against a payment.
type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount"`
	Status      string `json:"status"`
}

// Client wraps the Razorpay SDK with centralized logging, validation, and error mapping.
type Client struct {
	sdk       *rzp.Client
	keyID     string
	keySecret string
	logger    *logger.Logger
}

// NewClient initializes the Razorpay wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}

	sdk := rzp.NewClient(keyID, keySecret)
	if cfg.CallTimeout > 0 {
		sdk.SetTimeout(int16(cfg.CallTimeout.Seconds()))
	}

	c := &Client{
		sdk:       sdk,
		keyID:     keyID,
		keySecret: keySecret,
		logger:    logg,
	}

	logg.Info(ctx, "razorpay client initialized")
	return c, nil
}

// KeyID returns the public key clients embed in their checkout widget.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// CreateOrder opens a gateway order for the given amount in minor units.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error) {
	if err := params.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gateway order request")
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"receipt":  params.Receipt,
		"amount":   params.AmountMinor,
		"currency": params.Currency.String(),
	})

	raw, err := c.sdk.Order.Create(params.toRequestData(), nil)
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, c.mapGatewayError(err, "create order")
	}

	order := &Order{}
	if err := decodeInto(raw, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway order")
	}
	c.log(ctx, "response", "create_order", map[string]any{
		"gateway_order_id": order.ID,
		"status":           order.Status,
	})
	return order, nil
}

// FetchPayment loads the gateway's record for a payment id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	c.log(ctx, "request", "fetch_payment", map[string]any{"gateway_payment_id": paymentID})

	raw, err := c.sdk.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		c.log(ctx, "error", "fetch_payment", map[string]any{"error": err.Error()})
		return nil, c.mapGatewayError(err, "fetch payment")
	}

	payment := &Payment{}
	if err := decodeInto(raw, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway payment")
	}
	c.log(ctx, "response", "fetch_payment", map[string]any{
		"gateway_payment_id": payment.ID,
		"status":             payment.Status,
	})
	return payment, nil
}

// CreateRefund returns money against a captured payment.
func (c *Client) CreateRefund(ctx context.Context, params RefundCreateParams) (*Refund, error) {
	if err := params.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gateway refund request")
	}
	c.log(ctx, "request", "create_refund", map[string]any{
		"gateway_payment_id": params.PaymentID,
		"amount":             params.AmountMinor,
	})

	raw, err := c.sdk.Payment.Refund(params.PaymentID, int(params.AmountMinor), params.toRequestData(), nil)
	if err != nil {
		c.log(ctx, "error", "create_refund", map[string]any{"error": err.Error()})
		return nil, c.mapGatewayError(err, "create refund")
	}

	refund := &Refund{}
	if err := decodeInto(raw, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway refund")
	}
	c.log(ctx, "response", "create_refund", map[string]any{
		"gateway_refund_id": refund.ID,
		"status":            refund.Status,
	})
	return refund, nil
}

// SignaturePayload reconstructs the string Razorpay signs on checkout success.
func SignaturePayload(gatewayOrderID, gatewayPaymentID string) string {
	return gatewayOrderID + "|" + gatewayPaymentID
}

// VerifyPaymentSignature checks the checkout callback signature in constant time.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(SignaturePayload(gatewayOrderID, gatewayPaymentID)))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("razorpay %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "secret", "signature", "token", "vpa", "email", "contact"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapGatewayError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	code := pkgerrors.CodeDependency
	switch {
	case strings.Contains(msg, "BAD_REQUEST_ERROR"):
		code = pkgerrors.CodeValidation
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		code = pkgerrors.CodeNotFound
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("razorpay %s failed", op))
}

func decodeInto(payload map[string]interface{}, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
