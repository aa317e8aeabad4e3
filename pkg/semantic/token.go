// pkg/semantic/token.go
package semantic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenUnavailable marks a failed token retrieval. All semantic-model
// write paths are disabled for the call when this is returned.
var ErrTokenUnavailable = errors.New("semantic model token unavailable")

// TokenProvider supplies the bearer token used for semantic-model write
// sessions. Credentials are threaded explicitly through the reconciler;
// providers must not mutate process-wide state.
type TokenProvider interface {
	Token(ctx context.Context, scope string) (string, error)
}

// StaticTokenProvider returns a fixed token, mainly for tests and for
// platforms that inject short-lived credentials directly.
type StaticTokenProvider struct {
	Value string
}

// Token returns the static token
func (p StaticTokenProvider) Token(context.Context, string) (string, error) {
	if p.Value == "" {
		return "", ErrTokenUnavailable
	}
	return p.Value, nil
}

// EnvTokenProvider reads the bearer token from an environment variable and
// verifies that a JWT's remaining lifetime covers the reconciliation call.
// Opaque (non-JWT) tokens are passed through untouched.
type EnvTokenProvider struct {
	Var    string
	MinTTL time.Duration
	now    func() time.Time
}

// NewEnvTokenProvider creates a provider reading the given variable. The
// default minimum remaining lifetime is two minutes, enough to cover a full
// reconciliation pass.
func NewEnvTokenProvider(envVar string) *EnvTokenProvider {
	return &EnvTokenProvider{
		Var:    envVar,
		MinTTL: 2 * time.Minute,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, used by tests
func (p *EnvTokenProvider) WithClock(now func() time.Time) *EnvTokenProvider {
	p.now = now
	return p
}

// Token retrieves and validates the token
func (p *EnvTokenProvider) Token(_ context.Context, scope string) (string, error) {
	raw := os.Getenv(p.Var)
	if raw == "" {
		return "", fmt.Errorf("%w: %s is not set (scope %s)", ErrTokenUnavailable, p.Var, scope)
	}

	if err := p.checkLifetime(raw); err != nil {
		return "", err
	}

	return raw, nil
}

// checkLifetime rejects JWTs that would expire mid-call. The signature is
// not verified here; the service does that.
func (p *EnvTokenProvider) checkLifetime(raw string) error {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		// not a JWT: opaque tokens carry no readable expiry
		return nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if exp.Time.Before(p.now().Add(p.MinTTL)) {
		return fmt.Errorf("%w: token expires at %s, within the %s safety window",
			ErrTokenUnavailable, exp.Time.Format(time.RFC3339), p.MinTTL)
	}

	return nil
}
