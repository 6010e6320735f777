package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// State is the lifecycle state of a binding to one tool host
type State int32

const (
	// StateConstructed means the host is known but no connection exists yet
	StateConstructed State = iota
	// StateInitialized means the MCP handshake completed and the client is reusable
	StateInitialized
	// StateFailed means the last initialization attempt failed; the next call retries it
	StateFailed
	// StateClosed means the binding was shut down
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ToolClient is the subset of the mcp-go client a binding needs
type ToolClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Connector constructs a started but not yet initialized client.
// ctx lives as long as the binding.
type Connector func(ctx context.Context) (ToolClient, error)

// Observer is told about binding state changes
type Observer func(server string, state State, err error)

// Binding is the lazily established connection to one tool host
type Binding struct {
	server   string
	connect  Connector
	info     mcp.Implementation
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex // guards client and serializes initialization
	client ToolClient
	state  atomic.Int32

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	handshakes atomic.Int64
}

func newBinding(serverName string, connect Connector, info mcp.Implementation, observer Observer, logger *slog.Logger) *Binding {
	ctx, cancel := context.WithCancel(context.Background())
	return &Binding{
		server:     serverName,
		connect:    connect,
		info:       info,
		observer:   observer,
		logger:     logger,
		lifeCtx:    ctx,
		lifeCancel: cancel,
	}
}

// State returns the current lifecycle state
func (b *Binding) State() State {
	return State(b.state.Load())
}

// Handshakes returns how many initialize handshakes have completed
func (b *Binding) Handshakes() int64 {
	return b.handshakes.Load()
}

// Init connects and performs the MCP initialize handshake. It is idempotent:
// once initialized, later calls return immediately.
func (b *Binding) Init(ctx context.Context) error {
	if b.State() == StateInitialized {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.State() {
	case StateInitialized:
		return nil
	case StateClosed:
		return fmt.Errorf("binding to %s is closed", b.server)
	}

	c, err := b.connect(b.lifeCtx)
	if err != nil {
		b.setState(StateFailed, err)
		return fmt.Errorf("connect to %s: %w", b.server, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = b.info
	res, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		b.setState(StateFailed, err)
		return fmt.Errorf("initialize %s: %w", b.server, err)
	}

	b.client = c
	b.handshakes.Add(1)
	b.setState(StateInitialized, nil)
	b.logger.Info("Tool host bound",
		"server", b.server,
		"host_name", res.ServerInfo.Name,
		"host_version", res.ServerInfo.Version,
		"protocol", res.ProtocolVersion,
	)
	return nil
}

// snapshot returns the initialized client without holding the lock afterwards
func (b *Binding) snapshot(ctx context.Context) (ToolClient, error) {
	if err := b.Init(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	c := b.client
	b.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("binding to %s is closed", b.server)
	}
	return c, nil
}

// Call invokes tool on the host and returns its text payload.
// A result flagged as an error by the host is returned as *ToolError.
func (b *Binding) Call(ctx context.Context, tool string, args map[string]any) (string, error) {
	c, err := b.snapshot(ctx)
	if err != nil {
		return "", err
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", err
	}

	text := ResultText(res)
	if res.IsError {
		return "", &ToolError{Service: b.server, Tool: tool, Message: text}
	}
	return text, nil
}

// ListTools asks the host for its tool list, binding first if needed
func (b *Binding) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// Close shuts the binding down. Further calls fail.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lifeCancel()
	var err error
	if b.client != nil {
		err = b.client.Close()
		b.client = nil
	}
	b.setState(StateClosed, nil)
	return err
}

func (b *Binding) setState(s State, err error) {
	prev := State(b.state.Swap(int32(s)))
	if prev == s {
		return
	}
	if b.observer != nil {
		b.observer(b.server, s, err)
	}
}

// ResultText joins the text content blocks of a tool result
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	parts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HTTPConnector connects to a streamable HTTP MCP endpoint
func HTTPConnector(url string) Connector {
	return func(ctx context.Context) (ToolClient, error) {
		c, err := client.NewStreamableHttpClient(url)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
}

// StdioConnector spawns command and speaks MCP over its stdio
func StdioConnector(command string, env map[string]string, args ...string) Connector {
	return func(ctx context.Context) (ToolClient, error) {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		envList := make([]string, 0, len(keys))
		for _, k := range keys {
			envList = append(envList, k+"="+env[k])
		}
		// NewStdioMCPClient starts the subprocess itself
		c, err := client.NewStdioMCPClient(command, envList, args...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// InProcessConnector binds to an MCP server running in this process
func InProcessConnector(srv *server.MCPServer) Connector {
	return func(ctx context.Context) (ToolClient, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
}
