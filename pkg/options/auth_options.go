package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AuthOptions)(nil)

// DefaultAuthSecret is only fit for local development.
const DefaultAuthSecret = "hydronom-dev-secret-please-change"

// AuthOptions configures bearer token verification.
type AuthOptions struct {
	Secret string `json:"secret" mapstructure:"secret"`

	// DevTokens exposes GET /auth/dev-token.
	DevTokens bool `json:"dev-tokens" mapstructure:"dev-tokens"`

	TokenTTL time.Duration `json:"token-ttl" mapstructure:"token-ttl"`
}

func NewAuthOptions() *AuthOptions {
	return &AuthOptions{
		Secret:    DefaultAuthSecret,
		DevTokens: true,
		TokenTTL:  12 * time.Hour,
	}
}

func (o *AuthOptions) Validate() []error {
	var errors []error

	if len(o.Secret) < 16 {
		errors = append(errors, fmt.Errorf("--auth.secret must be at least 16 bytes"))
	}
	if o.TokenTTL <= 0 {
		errors = append(errors, fmt.Errorf("--auth.token-ttl must be positive"))
	}

	return errors
}

func (o *AuthOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Secret, "auth.secret", o.Secret, "HMAC secret used to sign and verify bearer tokens.")
	fs.BoolVar(&o.DevTokens, "auth.dev-tokens", o.DevTokens, "Serve /auth/dev-token for local development.")
	fs.DurationVar(&o.TokenTTL, "auth.token-ttl", o.TokenTTL, "Lifetime of issued dev tokens.")
}
