package payment

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// ProviderWenjoy is the provider code stored on Wenjoy transactions.
	ProviderWenjoy = "wenjoy"

	// CallbackPath is the public route the gateway posts purchase results to.
	CallbackPath = "/payment/wenjoy/response"
	// ProcessPath is where browsers land after the gateway redirect.
	ProcessPath = "/payment/process"

	prodCheckoutURL    = "https://wenjoy.com.co/api/1.0/pc/post-checkout"
	stagingCheckoutURL = "https://staging.wenjoy.com.co/api/1.0/pc/post-checkout"
)

// Acquirer holds the Wenjoy integration settings. PrivateAPIKey only ever
// takes part in verifying callbacks and is redacted from logs.
type Acquirer struct {
	ID            string
	State         string
	APIKey        string
	PrivateAPIKey string
	BaseURL       string
}

// Environment returns "prod" for enabled acquirers and "test" otherwise.
func (a Acquirer) Environment() string {
	if strings.EqualFold(strings.TrimSpace(a.State), "enabled") {
		return "prod"
	}
	return "test"
}

// FormActionURL is the gateway endpoint the checkout form posts to.
func (a Acquirer) FormActionURL() string {
	if a.Environment() == "prod" {
		return prodCheckoutURL
	}
	return stagingCheckoutURL
}

// CallbackURL joins the public base URL with the callback route.
func (a Acquirer) CallbackURL() string {
	base := strings.TrimSpace(a.BaseURL)
	if base == "" {
		return CallbackPath
	}
	joined, err := url.JoinPath(base, CallbackPath)
	if err != nil {
		return strings.TrimRight(base, "/") + CallbackPath
	}
	return joined
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (a Acquirer) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", a.ID).
		Str("environment", a.Environment()).
		Bool("api_key_set", a.APIKey != "").
		Bool("private_api_key_set", a.PrivateAPIKey != "")
}

// String keeps the keys out of fmt output.
func (a Acquirer) String() string {
	return "wenjoy acquirer " + a.ID + " (" + a.Environment() + ")"
}
