package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
)

// Catalog lists the tools a host publishes. Implementations must return only
// tools whose names appear in filter when filter is non-empty.
type Catalog interface {
	List(ctx context.Context, filter []string) ([]Descriptor, error)
}

// Manifest is the JSON document served at a tool host's catalog endpoint
type Manifest struct {
	Server string         `json:"server"`
	Tools  []ManifestTool `json:"tools"`
}

// ManifestTool is one entry of a Manifest
type ManifestTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Descriptors converts manifest entries to descriptors for service
func (m Manifest) Descriptors(service string) []Descriptor {
	out := make([]Descriptor, 0, len(m.Tools))
	for _, t := range m.Tools {
		out = append(out, Descriptor{
			Service:     service,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// Filter returns the manifest restricted to the named tools
func (m Manifest) Filter(names []string) Manifest {
	if len(names) == 0 {
		return m
	}
	want := nameSet(names)
	out := Manifest{Server: m.Server, Tools: make([]ManifestTool, 0, len(names))}
	for _, t := range m.Tools {
		if want[t.Name] {
			out.Tools = append(out.Tools, t)
		}
	}
	return out
}

// HTTPCatalog fetches a JSON manifest and asks the host to filter server-side
type HTTPCatalog struct {
	URL    string
	Client *http.Client
}

// NewHTTPCatalog creates a catalog reading from rawURL
func NewHTTPCatalog(rawURL string, timeout time.Duration) *HTTPCatalog {
	return &HTTPCatalog{URL: rawURL, Client: &http.Client{Timeout: timeout}}
}

// List fetches the manifest, passing each filter name as a name= query parameter
func (c *HTTPCatalog) List(ctx context.Context, filter []string) ([]Descriptor, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	q := u.Query()
	for _, name := range filter {
		q.Add("name", name)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog returned %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), body)
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return m.Filter(filter).Descriptors(m.Server), nil
}

// StaticCatalog serves tools declared in configuration
type StaticCatalog struct {
	Tools []config.ToolSpec
}

// List returns the declared tools matching filter
func (c *StaticCatalog) List(ctx context.Context, filter []string) ([]Descriptor, error) {
	m := Manifest{Tools: make([]ManifestTool, 0, len(c.Tools))}
	for _, t := range c.Tools {
		var schema json.RawMessage
		if t.InputSchema != "" {
			schema = json.RawMessage(t.InputSchema)
		}
		m.Tools = append(m.Tools, ManifestTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return m.Filter(filter).Descriptors(""), nil
}

// ClientCatalog discovers tools through the MCP tools/list call. Unlike the
// other catalogs it needs an initialized binding, so it is only used for hosts
// that publish no manifest.
type ClientCatalog struct {
	Binding *Binding
}

// List binds if needed and lists the host's tools
func (c *ClientCatalog) List(ctx context.Context, filter []string) ([]Descriptor, error) {
	tools, err := c.Binding.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	m := Manifest{Tools: make([]ManifestTool, 0, len(tools))}
	for _, t := range tools {
		schema := t.RawInputSchema
		if len(schema) == 0 {
			if b, err := json.Marshal(t.InputSchema); err == nil {
				schema = b
			}
		}
		m.Tools = append(m.Tools, ManifestTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return m.Filter(filter).Descriptors(""), nil
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
