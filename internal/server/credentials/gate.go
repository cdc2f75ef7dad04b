package credentials

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/logging"
)

// InvalidCredentialsMessage is the only failure text a client ever sees,
// whether the identity is unknown or the secret is wrong.
const InvalidCredentialsMessage = "Invalid credentials"

// Gate verifies a claimed identity against the store. It keeps no state
// between attempts: there is no lockout and no rate limit.
type Gate struct {
	store  Store
	logger logging.Logger
}

func NewGate(store Store, logger logging.Logger) *Gate {
	return &Gate{store: store, logger: logger.With("module", "credential_gate")}
}

// Authenticate returns nil iff identity exists and its verifier equals the
// presented derivative byte for byte. Every failure wraps
// common.ErrAuthentication; store outages are logged here and not exposed.
func (g *Gate) Authenticate(ctx context.Context, identity, derivative string) error {
	verifier, err := g.store.Verifier(ctx, identity)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			g.logger.Error(ctx, "credential lookup failed", "identity", identity, "error", err)
		}
		return common.ErrAuthentication
	}

	if !checkVerifier(verifier, []byte(derivative)) {
		return common.ErrAuthentication
	}
	return nil
}

func checkVerifier(verifier, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}

// Provision stores derivative as the verifier for identity.
func Provision(ctx context.Context, store Store, identity string, derivative string) error {
	if identity == "" || derivative == "" {
		return fmt.Errorf("identity and secret are required")
	}
	return store.AddUser(ctx, identity, []byte(derivative))
}
