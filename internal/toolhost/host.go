// Package toolhost serves domain tools over MCP together with a JSON catalog
// that can be read without an MCP handshake.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
	"github.com/AltairaLabs/discovery-agent/internal/tools/handlers/chem"
	"github.com/AltairaLabs/discovery-agent/internal/tools/handlers/hpc"
	"github.com/AltairaLabs/discovery-agent/internal/tools/handlers/literature"
	"github.com/AltairaLabs/discovery-agent/internal/tools/handlers/web"
)

// deniedFormat mirrors the Service Usage 403 a caller without the role receives
const deniedFormat = "403 PERMISSION_DENIED: caller does not have permission serviceusage.services.use on %s/%s"

// Host is one tool host: an MCP server and its catalog
type Host struct {
	name     string
	srv      *server.MCPServer
	manifest registry.Manifest
}

var _ registry.InProcessHost = (*Host)(nil)

// New creates a host named name serving the tools in reg. Tools named in
// deny, either as "tool" or "service/tool" or the bare service name, answer
// with a permission error.
func New(name, version string, reg *tools.ToolHandlerRegistry, deny []string, logger *slog.Logger) *Host {
	denied := denySet(name, deny)
	reg.Wrap(func(tool string, h tools.ToolHandlerFunc) tools.ToolHandlerFunc {
		if !denied(tool) {
			return h
		}
		logger.Warn("Tool denied by configuration", "service", name, "tool", tool)
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError(fmt.Sprintf(deniedFormat, name, tool)), nil
		}
	})

	srv := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	reg.Apply(srv)

	m := registry.Manifest{Server: name}
	for _, e := range reg.Entries() {
		m.Tools = append(m.Tools, registry.ManifestTool{
			Name:        e.Tool.Name,
			Description: e.Tool.Description,
			InputSchema: inputSchema(e.Tool),
		})
	}

	return &Host{name: name, srv: srv, manifest: m}
}

// Name returns the host's service name
func (h *Host) Name() string {
	return h.name
}

// MCPServer implements registry.InProcessHost
func (h *Host) MCPServer() *server.MCPServer {
	return h.srv
}

// Manifest returns the full catalog
func (h *Host) Manifest() registry.Manifest {
	return h.manifest
}

// List implements registry.Catalog
func (h *Host) List(ctx context.Context, filter []string) ([]registry.Descriptor, error) {
	return h.manifest.Filter(filter).Descriptors(h.name), nil
}

// CatalogHandler serves the manifest as JSON. Each name query parameter
// restricts the result to that tool.
func (h *Host) CatalogHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.manifest.Filter(r.URL.Query()["name"]))
	})
}

// Handler serves MCP at /mcp and the catalog at /catalog
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(h.srv))
	mux.Handle("/catalog", h.CatalogHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func inputSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	b, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil
	}
	return b
}

func denySet(service string, deny []string) func(tool string) bool {
	serviceDenied := false
	names := make(map[string]bool)
	for _, d := range deny {
		d = strings.TrimSpace(d)
		svc, tool, scoped := strings.Cut(d, "/")
		switch {
		case scoped && svc == service:
			names[tool] = true
		case !scoped && d == service:
			serviceDenied = true
		case !scoped:
			names[d] = true
		}
	}
	return func(tool string) bool {
		return serviceDenied || names[tool]
	}
}

// Build creates the built-in hosts from configuration, keyed by service name
func Build(cfg config.ToolHostConfig, version string, logger *slog.Logger) map[string]*Host {
	pubchem := chem.NewPubChemClient(cfg.PubChemURL, cfg.ClientTimeout)
	pubmed := literature.NewPubMedClient(cfg.PubMedURL, cfg.ClientTimeout)
	search := web.NewSerpAPIClient(cfg.SearchURL, cfg.SearchAPIKey, cfg.ClientTimeout)

	providers := map[string][]tools.Provider{
		config.ServiceHPC:        {hpc.NewHandler(cfg.Bucket, logger), web.NewHandler(search)},
		config.ServiceChem:       {chem.NewHandler(pubchem)},
		config.ServiceLiterature: {literature.NewHandler(pubmed)},
	}

	hosts := make(map[string]*Host, len(providers))
	for name, p := range providers {
		hosts[name] = New(name, version, tools.NewToolHandlerRegistry(p...), cfg.Deny, logger)
	}
	return hosts
}

// InProcess converts hosts for registry.FromConfig
func InProcess(hosts map[string]*Host) map[string]registry.InProcessHost {
	out := make(map[string]registry.InProcessHost, len(hosts))
	for name, h := range hosts {
		out[name] = h
	}
	return out
}
