package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"reminderd/internal/delivery"
	"reminderd/internal/domain"
	"reminderd/internal/secrets"
)

// Adapters supplies the delivery adapter for an obligation.
type Adapters interface {
	// Default returns the platform provider, or nil if none is configured.
	Default() delivery.Adapter
	// ForIntegration builds a fresh adapter from the integration's sealed credentials.
	ForIntegration(ctx context.Context, integ domain.Integration) (delivery.Adapter, error)
}

// Factory is the production Adapters.
type Factory struct {
	def    delivery.Adapter
	vault  *secrets.Vault
	client *http.Client
}

func NewFactory(def delivery.Adapter, vault *secrets.Vault, client *http.Client) *Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Factory{def: def, vault: vault, client: client}
}

func (f *Factory) Default() delivery.Adapter { return f.def }

func (f *Factory) ForIntegration(_ context.Context, integ domain.Integration) (delivery.Adapter, error) {
	if f.vault == nil {
		return nil, secrets.ErrNoKey
	}
	plain, err := f.vault.Open(integ.SealedCredentials)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	creds, err := delivery.DecodeCredentials(integ.ServiceType, plain)
	if err != nil {
		return nil, err
	}
	return delivery.NewIntegration(integ, creds, f.client)
}
