package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-pay/gopay"
)

// CallbackFields are the purchase fields posted back by the gateway, exactly as
// received. Lookup and signing use these values untouched.
type CallbackFields struct {
	Description string
	Signature   string
	TotalValue  string
	State       string
	// Raw keeps every received field for logging and replay detection.
	Raw map[string]string
}

// CallbackFieldsFromMap picks the purchase fields out of a flat field set.
func CallbackFieldsFromMap(raw map[string]string) CallbackFields {
	return CallbackFields{
		Description: raw[FieldPurchaseDescription],
		Signature:   raw[FieldPurchaseSignature],
		TotalValue:  raw[FieldPurchaseTotalValue],
		State:       raw[FieldPurchaseState],
		Raw:         raw,
	}
}

// Validate performs the presence check on the four required fields. A value
// holding only whitespace counts as missing.
func (f CallbackFields) Validate() error {
	for _, v := range []string{f.Description, f.Signature, f.TotalValue, f.State} {
		if strings.TrimSpace(v) == "" {
			return malformedCallback(f.Description, f.Signature)
		}
	}
	return nil
}

// BodyMap exposes the signed purchase fields in the shape GenerateSign expects.
func (f CallbackFields) BodyMap() gopay.BodyMap {
	bm := make(gopay.BodyMap)
	bm.Set(FieldPurchaseDescription, f.Description).
		Set(FieldPurchaseTotalValue, f.TotalValue).
		Set(FieldPurchaseState, f.State)
	return bm
}

// ParseCallbackRequest extracts callback fields from a form body, a JSON body or
// the query string, in that order of precedence.
func ParseCallbackRequest(r *http.Request) (CallbackFields, error) {
	raw := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if r.Body != nil {
			var body map[string]any
			dec := json.NewDecoder(r.Body)
			dec.UseNumber()
			if err := dec.Decode(&body); err != nil {
				return CallbackFields{}, fmt.Errorf("decode callback json: %w", err)
			}
			for key, value := range body {
				raw[key] = stringify(value)
			}
		}
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return CallbackFields{}, fmt.Errorf("parse callback form: %w", err)
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				raw[key] = values[0]
			}
		}
	}
	return CallbackFieldsFromMap(raw), nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
