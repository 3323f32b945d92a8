package payment

import (
	"strings"
)

// FailureKind classifies why a payment attempt ended without a verified payment.
type FailureKind string

const (
	KindOrderCreation  FailureKind = "order_creation_failed"
	KindUserCancelled  FailureKind = "user_cancelled"
	KindVerification   FailureKind = "verification_failed"
	KindCardDeclined   FailureKind = "card_declined"
	KindInsufficient   FailureKind = "insufficient_funds"
	KindInvalidCard    FailureKind = "invalid_card"
	KindExpiredCard    FailureKind = "expired_card"
	KindBankError      FailureKind = "bank_error"
	KindAuthentication FailureKind = "authentication_failed"
	KindNetwork        FailureKind = "network_error"
	KindGateway        FailureKind = "gateway_error"
	KindServer         FailureKind = "server_error"
	KindTimeout        FailureKind = "transaction_timeout"
	KindPaymentFailed  FailureKind = "payment_failed"
)

// Code is the upper-case form used in redirect query strings.
func (k FailureKind) Code() string { return strings.ToUpper(string(k)) }

// Failure is the terminal description of a failed attempt.
type Failure struct {
	Kind        FailureKind `json:"kind"`
	Description string      `json:"description"`
	OrderID     string      `json:"orderId,omitempty"`
	PaymentID   string      `json:"paymentId,omitempty"`
}

// Code returns the upper-case kind.
func (f Failure) Code() string { return f.Kind.Code() }

// GatewayError is the error object the hosted widget reports on payment.failed.
type GatewayError struct {
	Code        string         `json:"code"`
	Description string         `json:"description"`
	Source      string         `json:"source"`
	Step        string         `json:"step"`
	Reason      string         `json:"reason"`
	Metadata    map[string]any `json:"metadata"`
}

// OrderID returns metadata.order_id when present.
func (e GatewayError) OrderID() string { return metaString(e.Metadata, "order_id") }

// PaymentID returns metadata.payment_id when present.
func (e GatewayError) PaymentID() string { return metaString(e.Metadata, "payment_id") }

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

var reasonKinds = map[string]FailureKind{
	"payment_cancelled":         KindUserCancelled,
	"payment_declined":          KindCardDeclined,
	"card_declined":             KindCardDeclined,
	"insufficient_funds":        KindInsufficient,
	"incorrect_card_details":    KindInvalidCard,
	"invalid_card_number":       KindInvalidCard,
	"card_number_invalid":       KindInvalidCard,
	"card_expired":              KindExpiredCard,
	"expired_card":              KindExpiredCard,
	"bank_technical_error":      KindBankError,
	"issuer_down":               KindBankError,
	"authentication_failed":     KindAuthentication,
	"payment_risk_check_failed": KindAuthentication,
	"network_error":             KindNetwork,
	"gateway_technical_error":   KindGateway,
	"server_error":              KindServer,
	"payment_timed_out":         KindTimeout,
	"transaction_timeout":       KindTimeout,
}

var descriptionKinds = []struct {
	needle string
	kind   FailureKind
}{
	{"insufficient", KindInsufficient},
	{"expired", KindExpiredCard},
	{"declined", KindCardDeclined},
	{"invalid card", KindInvalidCard},
	{"card number", KindInvalidCard},
	{"cancel", KindUserCancelled},
	{"authentication", KindAuthentication},
	{"otp", KindAuthentication},
	{"timed out", KindTimeout},
	{"timeout", KindTimeout},
	{"network", KindNetwork},
	{"bank", KindBankError},
}

var codeKinds = map[string]FailureKind{
	"BAD_REQUEST_ERROR": KindPaymentFailed,
	"GATEWAY_ERROR":     KindGateway,
	"SERVER_ERROR":      KindServer,
}

// Normalize maps a gateway error onto a FailureKind, checking the reason,
// then the description, then the error code.
func Normalize(e GatewayError) Failure {
	f := Failure{
		Kind:        KindPaymentFailed,
		Description: strings.TrimSpace(e.Description),
		OrderID:     e.OrderID(),
		PaymentID:   e.PaymentID(),
	}
	if f.Description == "" {
		f.Description = "Payment failed"
	}
	if kind, ok := reasonKinds[strings.ToLower(strings.TrimSpace(e.Reason))]; ok {
		f.Kind = kind
		return f
	}
	desc := strings.ToLower(e.Description)
	for _, d := range descriptionKinds {
		if strings.Contains(desc, d.needle) {
			f.Kind = d.kind
			return f
		}
	}
	if kind, ok := codeKinds[strings.ToUpper(strings.TrimSpace(e.Code))]; ok {
		f.Kind = kind
	}
	return f
}

// KnownKind reports whether k is one of the defined kinds.
func KnownKind(k FailureKind) bool {
	switch k {
	case KindOrderCreation, KindUserCancelled, KindVerification, KindCardDeclined,
		KindInsufficient, KindInvalidCard, KindExpiredCard, KindBankError,
		KindAuthentication, KindNetwork, KindGateway, KindServer, KindTimeout, KindPaymentFailed:
		return true
	}
	return false
}
