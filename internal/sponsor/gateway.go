package sponsor

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/model"
)

// Gateway fans requests out to paymaster providers in the configured
// preference order. Each failing provider is logged and the next one tried;
// only when every provider has failed does a terminal "no sponsor available"
// error surface. Callers must not retry that condition blindly: it usually
// means policy or balance exhaustion, not a transient outage.
type Gateway struct {
	providers []Provider
}

func NewGateway(providers ...Provider) *Gateway {
	return &Gateway{providers: providers}
}

// Providers returns the configured provider names in preference order.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// GetSponsorship asks providers in order for fee-covering data.
func (g *Gateway) GetSponsorship(ctx context.Context, op model.PartialUserOperation, entryPoint common.Address) (*model.SponsorData, error) {
	if len(g.providers) == 0 {
		return nil, apperrors.Config("no sponsor providers configured")
	}
	for _, p := range g.providers {
		data, err := p.SponsorUserOperation(ctx, op, entryPoint)
		if err == nil {
			log.Debug().Str("provider", p.Name()).Msg("sponsorship obtained")
			return data, nil
		}
		log.Warn().Err(err).Str("provider", p.Name()).Msg("sponsor provider failed, trying next")
	}
	return nil, apperrors.NoSponsorAvailable(len(g.providers))
}

// Submit sends the signed operation through the same ordered fallback.
func (g *Gateway) Submit(ctx context.Context, op model.SignedUserOperation, entryPoint common.Address) (common.Hash, error) {
	if len(g.providers) == 0 {
		return common.Hash{}, apperrors.Config("no sponsor providers configured")
	}
	for _, p := range g.providers {
		opHash, err := p.SubmitUserOperation(ctx, op, entryPoint)
		if err == nil {
			return opHash, nil
		}
		log.Warn().Err(err).Str("provider", p.Name()).Msg("operation submission failed, trying next provider")
	}
	return common.Hash{}, apperrors.NoSponsorAvailable(len(g.providers))
}

// HealthCheck probes every provider. A provider that rejects the probe with
// a validation-style RPC error is reachable and therefore healthy; only
// connection or auth-class failures mark it unhealthy.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]bool {
	health := make(map[string]bool, len(g.providers))
	for _, p := range g.providers {
		err := p.Ping(ctx)
		healthy := reachable(err)
		health[p.Name()] = healthy
		if !healthy {
			log.Warn().Err(err).Str("provider", p.Name()).Msg("sponsor provider unhealthy")
		}
	}
	return health
}

func reachable(err error) bool {
	if err == nil {
		return true
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		// transport failure: connection refused, timeout, TLS, non-200
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	for _, marker := range []string{"unauthorized", "forbidden", "api key", "auth"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
