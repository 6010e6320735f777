// Package registry discovers tools on remote hosts and binds to those hosts lazily.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/cache"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
)

var (
	// ErrUnknownService is wrapped when no host is registered under a service name
	ErrUnknownService = errors.New("unknown service")
	// ErrToolNotFound is wrapped when a service has no tool of the requested name
	ErrToolNotFound = errors.New("tool not found")
)

// NotFoundError carries the names a caller could have asked for instead
type NotFoundError struct {
	Service string
	Tool    string
	// Known lists tool names for a missing tool, or service names for a missing service
	Known []string
	err   error
}

func (e *NotFoundError) Error() string {
	if errors.Is(e.err, ErrUnknownService) {
		return fmt.Sprintf(config.ErrUnknownService, e.Service, strings.Join(e.Known, ", "))
	}
	return fmt.Sprintf(config.ErrToolNotFound, e.Tool, e.Service, strings.Join(e.Known, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return e.err
}

// ToolError is a failure reported by the tool itself rather than the transport
type ToolError struct {
	Service string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

// Descriptor identifies one tool on one service. It is unique by (Service, Name).
type Descriptor struct {
	Service     string
	Name        string
	Description string
	InputSchema json.RawMessage

	binding *Binding
}

// Bound reports whether the descriptor carries an invocation handle
func (d Descriptor) Bound() bool {
	return d.binding != nil
}

// InProcessHost is a tool host running inside this process
type InProcessHost interface {
	Catalog
	MCPServer() *server.MCPServer
}

type host struct {
	name    string
	catalog Catalog
	binding *Binding
}

// Registry maps services to tool hosts. The host table is fixed at
// construction; per-host state lives in each Binding.
type Registry struct {
	hosts    map[string]*host
	order    []string
	cache    cache.Interface[[]Descriptor]
	logger   *slog.Logger
	observer Observer
	info     mcp.Implementation
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithCache caches discovery results
func WithCache(c cache.Interface[[]Descriptor]) Option {
	return func(r *Registry) { r.cache = c }
}

// WithBindingObserver reports binding state changes
func WithBindingObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithClientInfo sets the implementation info sent in the initialize handshake
func WithClientInfo(name, version string) Option {
	return func(r *Registry) { r.info = mcp.Implementation{Name: name, Version: version} }
}

// New creates an empty registry; hosts are added with Add before use
func New(opts ...Option) *Registry {
	r := &Registry{
		hosts:  make(map[string]*host),
		logger: slog.Default(),
		info:   mcp.Implementation{Name: "discovery-agent", Version: "0.1.0"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a host under name. A nil catalog means tools are discovered
// over the host's own MCP connection. Add is not safe to call concurrently
// with lookups; register all hosts before serving.
func (r *Registry) Add(name string, connect Connector, catalog Catalog) error {
	if name == "" {
		return errors.New("service name cannot be empty")
	}
	if _, exists := r.hosts[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}

	b := newBinding(name, connect, r.info, r.observer, r.logger)
	if catalog == nil {
		catalog = &ClientCatalog{Binding: b}
	}
	r.hosts[name] = &host{name: name, catalog: catalog, binding: b}
	r.order = append(r.order, name)
	return nil
}

// FromConfig builds a registry from server configuration. In-process hosts
// are looked up by server name in inproc.
func FromConfig(servers []config.ServerConfig, inproc map[string]InProcessHost, opts ...Option) (*Registry, error) {
	r := New(opts...)
	for _, s := range servers {
		var (
			connect Connector
			catalog Catalog
		)
		switch s.Transport {
		case config.TransportHTTP:
			connect = HTTPConnector(s.URL)
			if s.CatalogURL != "" {
				catalog = NewHTTPCatalog(s.CatalogURL, config.DefaultToolTimeout)
			}
		case config.TransportStdio:
			connect = StdioConnector(s.Command, s.Env, s.Args...)
		case config.TransportInProcess:
			h, ok := inproc[s.Name]
			if !ok {
				return nil, fmt.Errorf("no in-process host for server %q", s.Name)
			}
			connect = InProcessConnector(h.MCPServer())
			catalog = h
		default:
			return nil, fmt.Errorf("server %q: unknown transport %q", s.Name, s.Transport)
		}
		if catalog == nil && len(s.Tools) > 0 {
			catalog = &StaticCatalog{Tools: s.Tools}
		}
		if err := r.Add(s.Name, connect, catalog); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Services returns the registered service names in registration order
func (r *Registry) Services() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// BindingState returns the lifecycle state of a service's binding
func (r *Registry) BindingState(service string) (State, bool) {
	h, ok := r.hosts[service]
	if !ok {
		return StateConstructed, false
	}
	return h.binding.State(), true
}

// Handshakes returns how many initialize handshakes a service's binding has done
func (r *Registry) Handshakes(service string) int64 {
	h, ok := r.hosts[service]
	if !ok {
		return 0
	}
	return h.binding.Handshakes()
}

// Discover lists the tools of service. With a filter only tools whose names
// appear in filter are returned. Discovery does not bind to the host unless
// the host publishes no catalog.
func (r *Registry) Discover(ctx context.Context, service string, filter ...string) ([]Descriptor, error) {
	h, ok := r.hosts[service]
	if !ok {
		return nil, &NotFoundError{Service: service, Known: r.Services(), err: ErrUnknownService}
	}

	load := func(ctx context.Context) ([]Descriptor, error) {
		descs, err := h.catalog.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", service, err)
		}
		return descs, nil
	}

	var (
		descs []Descriptor
		err   error
	)
	if r.cache != nil {
		descs, err = r.cache.GetOrLoad(ctx, cacheKey(service, filter), load)
	} else {
		descs, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	// Enforce the filter locally too; a remote catalog may ignore it
	want := nameSet(filter)
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if len(filter) > 0 && !want[d.Name] {
			continue
		}
		d.Service = service
		d.binding = h.binding
		out = append(out, d)
	}

	r.logger.DebugContext(ctx, "Discovered tools",
		"service", service,
		"filter", filter,
		"count", len(out),
	)
	return out, nil
}

// Resolve finds one tool. When it is missing the returned *NotFoundError
// lists the service's tools, or the known services if the service is unknown.
func (r *Registry) Resolve(ctx context.Context, service, tool string) (Descriptor, error) {
	descs, err := r.Discover(ctx, service, tool)
	if err != nil {
		return Descriptor{}, err
	}
	for _, d := range descs {
		if d.Name == tool {
			return d, nil
		}
	}

	all, err := r.Discover(ctx, service)
	if err != nil {
		return Descriptor{}, err
	}
	known := make([]string, 0, len(all))
	for _, d := range all {
		known = append(known, d.Name)
	}
	sort.Strings(known)
	return Descriptor{}, &NotFoundError{Service: service, Tool: tool, Known: known, err: ErrToolNotFound}
}

// Call invokes the tool a descriptor points at. No registry lock is held
// while the host works.
func (r *Registry) Call(ctx context.Context, d Descriptor, args map[string]any) (string, error) {
	if d.binding == nil {
		return "", fmt.Errorf("descriptor %s/%s is not bound to a host", d.Service, d.Name)
	}
	return d.binding.Call(ctx, d.Name, args)
}

// Close shuts down every binding
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.order {
		if err := r.hosts[name].binding.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if r.cache != nil {
		r.cache.Close()
	}
	return errors.Join(errs...)
}

func cacheKey(service string, filter []string) string {
	if len(filter) == 0 {
		return service
	}
	sorted := make([]string, len(filter))
	copy(sorted, filter)
	sort.Strings(sorted)
	return service + "?" + strings.Join(sorted, ",")
}
