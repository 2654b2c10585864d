package payment

import (
	"sort"
	"strings"

	"github.com/smallbiznis/accounts/internal/payment/domain"
)

// Registry holds processors by provider name; Active is the one new charges use.
type Registry struct {
	processors map[string]domain.Processor
	active     string
}

func NewRegistry(active string, processors ...domain.Processor) *Registry {
	registry := &Registry{
		processors: map[string]domain.Processor{},
		active:     normalize(active),
	}
	for _, processor := range processors {
		if processor == nil {
			continue
		}
		name := normalize(processor.Name())
		if name == "" {
			continue
		}
		registry.processors[name] = processor
	}
	return registry
}

func (r *Registry) Get(provider string) (domain.Processor, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	processor, ok := r.processors[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return processor, nil
}

func (r *Registry) Active() (domain.Processor, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	return r.Get(r.active)
}

// Verifier returns the webhook verifier for provider, if it has one.
func (r *Registry) Verifier(provider string) (domain.WebhookVerifier, error) {
	processor, err := r.Get(provider)
	if err != nil {
		return nil, err
	}
	verifier, ok := processor.(domain.WebhookVerifier)
	if !ok {
		return nil, domain.ErrWebhookDisabled
	}
	return verifier, nil
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
