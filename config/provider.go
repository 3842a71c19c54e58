package config

import (
	"encoding/json"
	"io"
	"net"
	"slices"
	"strings"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/trees"
)

// Provider serves the host's read-only settings to the HTTP layer, resolved
// from a [Config].
type Provider struct {
	cfg         *Config
	factory     mimic.Factory
	validateKey func(key string) bool
}

// ProviderOption configures a [Provider]
type ProviderOption func(*Provider)

// WithAccessKeyValidator sets the function deciding whether an access key
// grants access. The default accepts every key.
func WithAccessKeyValidator(fn func(key string) bool) ProviderOption {
	return func(p *Provider) { p.validateKey = fn }
}

// WithTreeFactory replaces the registry-backed tree factory
func WithTreeFactory(f mimic.Factory) ProviderOption {
	return func(p *Provider) { p.factory = f }
}

func NewProvider(cfg *Config, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg: cfg,
		factory: trees.Factory(cfg.TreeType, trees.Options{
			Root:    cfg.TreeRoot,
			URL:     cfg.TreeURL,
			Headers: cfg.TreeHeaders,
			Bucket:  cfg.TreeBucket,
			Region:  cfg.TreeRegion,
		}),
		validateKey: func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Namespace returns the namespace reserved for mimic's own data
func (p *Provider) Namespace() string {
	return p.cfg.Namespace
}

func (p *Provider) ValidateAccessKey(key string) bool {
	return p.validateKey(key)
}

// NewTree creates the tree for a project namespace
func (p *Provider) NewTree(namespace, accessKey string) (mimic.Tree, error) {
	return p.factory(namespace, accessKey)
}

// AllowedHost reports whether host (optionally with a port) may serve user
// content. Any host is allowed when no list is configured.
func (p *Provider) AllowedHost(host string) bool {
	if p.cfg.AllowedUserContentHosts == nil {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	// appspot style "-dot-" hostnames address the same app
	host = strings.ToLower(strings.ReplaceAll(host, "-dot-", "."))
	return slices.ContainsFunc(p.cfg.AllowedUserContentHosts, func(allowed string) bool {
		return strings.EqualFold(allowed, host)
	})
}

// JSONEncoder returns an encoder writing to w, indented when PrettyJSON is set
func (p *Provider) JSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	if p.cfg.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc
}
