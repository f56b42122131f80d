// Package registry turns a provider identifier and an environment snapshot
// into a configured backend instance.
package registry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ineyio/flowgate"
)

// EnvDefaultProvider names the backend preferred over declaration order.
const EnvDefaultProvider = "DEFAULT_AI_PROVIDER"

// Factory builds a backend over a resolved configuration. client may be nil.
type Factory func(cfg flowgate.ProviderConfig, client *http.Client) flowgate.Provider

// Entry describes one backend known to the registry.
type Entry struct {
	ID          string
	Aliases     []string
	DisplayName string

	// Models is the advertised catalogue; the configured model is listed first.
	Models []string
	// DefaultModel applies when the environment names no model.
	DefaultModel string

	// Config reads the backend-specific keys from env.
	Config func(env flowgate.Env) flowgate.ProviderConfig
	New    Factory
}

func (e Entry) matches(id string) bool {
	if id == e.ID {
		return true
	}
	for _, a := range e.Aliases {
		if id == a {
			return true
		}
	}
	return false
}

// Registry resolves backends in a fixed declaration order.
type Registry struct {
	entries         []Entry
	env             flowgate.Env
	client          *http.Client
	defaultOverride string
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the client handed to every backend.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.client = c }
}

// WithEntries replaces the built-in backends.
func WithEntries(entries ...Entry) Option {
	return func(r *Registry) { r.entries = entries }
}

// WithDefaultProvider overrides DEFAULT_AI_PROVIDER.
func WithDefaultProvider(id string) Option {
	return func(r *Registry) { r.defaultOverride = id }
}

// New creates a registry over an environment snapshot.
func New(env flowgate.Env, opts ...Option) *Registry {
	if env == nil {
		env = flowgate.Env{}
	}
	r := &Registry{
		entries:         Builtin(),
		env:             env,
		defaultOverride: env.Get(EnvDefaultProvider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IDs returns the canonical identifiers in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// Lookup resolves an identifier or alias, case-insensitively.
func (r *Registry) Lookup(id string) (Entry, error) {
	norm := strings.ToLower(strings.TrimSpace(id))
	for _, e := range r.entries {
		if e.matches(norm) {
			return e, nil
		}
	}
	return Entry{}, &flowgate.UnknownProviderError{Input: id, Supported: r.IDs()}
}

// Create builds the backend named by id over cfg.
func (r *Registry) Create(id string, cfg flowgate.ProviderConfig) (flowgate.Provider, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = e.DisplayName
	}
	return e.New(cfg, r.client), nil
}

// ConfigFor reads the backend's configuration from the environment snapshot,
// falling back to the backend's default model.
func (r *Registry) ConfigFor(id string) (flowgate.ProviderConfig, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return flowgate.ProviderConfig{}, err
	}
	return r.configFor(e), nil
}

func (r *Registry) configFor(e Entry) flowgate.ProviderConfig {
	var cfg flowgate.ProviderConfig
	if e.Config != nil {
		cfg = e.Config(r.env)
	}
	if cfg.Model == "" {
		cfg.Model = e.DefaultModel
	}
	cfg.ProviderName = e.DisplayName
	return cfg
}

func (r *Registry) configured(e Entry) bool {
	return e.New(r.configFor(e), r.client).IsConfigured()
}

// Descriptors describes every backend in declaration order.
func (r *Registry) Descriptors() []flowgate.ProviderDescriptor {
	out := make([]flowgate.ProviderDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, r.describe(e))
	}
	return out
}

// ListAvailable describes the configured backends in declaration order.
func (r *Registry) ListAvailable() []flowgate.ProviderDescriptor {
	var out []flowgate.ProviderDescriptor
	for _, e := range r.entries {
		if d := r.describe(e); d.Configured {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) describe(e Entry) flowgate.ProviderDescriptor {
	cfg := r.configFor(e)

	seen := make(map[string]bool)
	var models []string
	for _, m := range append([]string{cfg.Model, cfg.VisionModel}, e.Models...) {
		if m != "" && !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}

	def := cfg.Model
	if def == "" {
		def = cfg.VisionModel
	}

	return flowgate.ProviderDescriptor{
		ID:           e.ID,
		DisplayName:  e.DisplayName,
		Models:       models,
		DefaultModel: def,
		Configured:   r.configured(e),
	}
}

// ResolveDefault returns the override when it names a known, configured
// backend, otherwise the first available backend. ok is false when nothing
// is configured.
func (r *Registry) ResolveDefault() (id string, ok bool) {
	if r.defaultOverride != "" {
		if e, err := r.Lookup(r.defaultOverride); err == nil && r.configured(e) {
			return e.ID, true
		}
	}
	if avail := r.ListAvailable(); len(avail) > 0 {
		return avail[0].ID, true
	}
	return "", false
}

// Resolve creates a configured backend for id, or for the default when id
// is empty. Failures are resolution errors: nothing has been sent upstream.
func (r *Registry) Resolve(id string) (flowgate.Provider, Entry, error) {
	if strings.TrimSpace(id) == "" {
		def, ok := r.ResolveDefault()
		if !ok {
			return nil, Entry{}, fmt.Errorf("%w: no provider configured", flowgate.ErrUnconfigured)
		}
		id = def
	}

	e, err := r.Lookup(id)
	if err != nil {
		return nil, Entry{}, err
	}

	p := e.New(r.configFor(e), r.client)
	if !p.IsConfigured() {
		return nil, Entry{}, fmt.Errorf("%w: %s", flowgate.ErrUnconfigured, e.ID)
	}
	return p, e, nil
}
