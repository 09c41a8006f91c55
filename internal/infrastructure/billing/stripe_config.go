package billing

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
)

// StripeConfig holds the settings the Stripe gateway needs
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string

	// SuccessURL is where hosted checkout returns after payment.
	// It must contain {CHECKOUT_SESSION_ID} so the client can confirm the session.
	SuccessURL string

	// CancelURL is where hosted checkout returns when the user backs out
	CancelURL string
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_test_") && !strings.HasPrefix(c.SecretKey, "sk_live_") &&
		!strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key has an unexpected format")
	}
	if c.SuccessURL == "" || c.CancelURL == "" {
		return fmt.Errorf("stripe: success and cancel URLs are required")
	}
	if !strings.Contains(c.SuccessURL, "{CHECKOUT_SESSION_ID}") {
		return fmt.Errorf("stripe: success URL must contain {CHECKOUT_SESSION_ID}")
	}
	return nil
}

// InitStripeClient initializes the Stripe client with the configured API key
func (c *StripeConfig) InitStripeClient() {
	stripe.Key = c.SecretKey
}
