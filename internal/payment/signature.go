package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-pay/gopay"
)

// Outbound form fields.
const (
	FieldTotalValue      = "total_value"
	FieldDescription     = "description"
	FieldAPIKey          = "api_key"
	FieldVerify          = "verify"
	FieldOwnerEmail      = "owner_email"
	FieldOwnerFirstName  = "owner_first_name"
	FieldOwnerLastName   = "owner_last_name"
	FieldResponseURL     = "response_url"
	FieldConfirmationURL = "confirmation_url"
	FieldSignature       = "signature"
)

// Inbound callback fields.
const (
	FieldPurchaseDescription = "purchase_description"
	FieldPurchaseSignature   = "purchase_signature"
	FieldPurchaseTotalValue  = "purchase_total_value"
	FieldPurchaseState       = "purchase_state"
)

const (
	signSeparator = "~"
	// outboundSignSuffix stands for the three fixed trailing slots of the
	// checkout signature.
	outboundSignSuffix = "~0~0~0"
)

// GenerateSign computes the Wenjoy signature for values. Outbound signatures
// (private=false) cover the public api key and the checkout fields; inbound
// signatures (private=true) cover the private key and the purchase fields.
// Field values must not contain "~".
func GenerateSign(acq Acquirer, values gopay.BodyMap, private bool) string {
	var parts []string
	if private {
		parts = []string{
			acq.PrivateAPIKey,
			values.GetString(FieldPurchaseTotalValue),
			values.GetString(FieldPurchaseDescription),
			values.GetString(FieldPurchaseState),
		}
	} else {
		parts = []string{
			values.GetString(FieldAPIKey),
			values.GetString(FieldTotalValue),
			values.GetString(FieldDescription),
			strings.ToLower(values.GetString(FieldVerify)),
		}
	}
	canonical := strings.Join(parts, signSeparator)
	if !private {
		canonical += outboundSignSuffix
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// VerifyCallbackSignature recomputes the inbound signature and compares it
// byte for byte with the one the gateway sent.
func VerifyCallbackSignature(acq Acquirer, fields CallbackFields) bool {
	if acq.PrivateAPIKey == "" || fields.Signature == "" {
		return false
	}
	expected := GenerateSign(acq, fields.BodyMap(), true)
	return hmac.Equal([]byte(expected), []byte(fields.Signature))
}
