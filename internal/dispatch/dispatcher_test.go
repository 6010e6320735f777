package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/retry"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
)

type toolFunc func(ctx context.Context, args map[string]any) (string, error)

// fakeRegistry resolves against an in-memory tool table
type fakeRegistry struct {
	mu      sync.Mutex
	tools   map[string]toolFunc
	schemas map[string]json.RawMessage
	calls   int
}

func (f *fakeRegistry) Resolve(ctx context.Context, service, tool string) (registry.Descriptor, error) {
	if _, ok := f.tools[tool]; !ok {
		return registry.Descriptor{}, &registry.NotFoundError{Service: service, Tool: tool}
	}
	return registry.Descriptor{Service: service, Name: tool, InputSchema: f.schemas[tool]}, nil
}

func (f *fakeRegistry) Call(ctx context.Context, d registry.Descriptor, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.tools[d.Name](ctx, args)
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry() retry.Policy {
	return retry.Policy{
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newTestDispatcher(reg Registry, opts ...Option) *Dispatcher {
	base := []Option{
		WithRetryPolicy(fastRetry()),
		WithRemediation(config.RemediationConfig{
			ProjectID:      "test-project",
			ServiceAccount: "agent@test-project.iam.gserviceaccount.com",
			DefaultRole:    "roles/serviceusage.serviceUsageViewer",
		}),
	}
	return New(reg, append(base, opts...)...)
}

func TestInvokeOk(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"echo": func(ctx context.Context, args map[string]any) (string, error) {
			return "  payload as-is\n", nil
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "svc", "echo", nil)

	if res.Status != StatusOk {
		t.Fatalf("Expected OK, got %s", res.Status)
	}
	if res.Payload != "  payload as-is\n" {
		t.Errorf("Expected payload unchanged, got %q", res.Payload)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", res.Attempts)
	}
}

func TestInvokeNotFoundListsToolNames(t *testing.T) {
	srv := server.NewMCPServer("hpc", "1.0.0")
	reg := registry.New()
	err := reg.Add("hpc", registry.InProcessConnector(srv), &registry.StaticCatalog{Tools: []config.ToolSpec{
		{Name: "deploy_hpc_cluster"},
		{Name: "list_clusters"},
	}})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	defer reg.Close()

	res := newTestDispatcher(reg).Invoke(context.Background(), "hpc", "nonexistent_tool", map[string]any{})
	if res.Status != StatusNotFound {
		t.Fatalf("Expected NOT_FOUND, got %s (%s)", res.Status, res.Payload)
	}
	if !strings.Contains(res.Payload, "deploy_hpc_cluster") {
		t.Errorf("Expected payload to list real tool names, got %q", res.Payload)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected NotFound not to be retried, got %d attempts", res.Attempts)
	}
	if reg.Handshakes("hpc") != 0 {
		t.Error("Expected no binding for a missing tool")
	}
}

func TestInvokeUnknownServiceListsServices(t *testing.T) {
	reg := registry.New()
	_ = reg.Add("chem", nil, &registry.StaticCatalog{})

	res := newTestDispatcher(reg).Invoke(context.Background(), "nope", "x", nil)
	if res.Status != StatusNotFound {
		t.Fatalf("Expected NOT_FOUND, got %s", res.Status)
	}
	if !strings.Contains(res.Payload, "chem") {
		t.Errorf("Expected payload to list known services, got %q", res.Payload)
	}
}

func TestInvokePermissionDenied(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"search_pubchem": func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("googleapi: Error 403: Permission denied on resource project")
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "chem", "search_pubchem", nil)

	if res.Status != StatusPermissionDenied {
		t.Fatalf("Expected PERMISSION_DENIED, got %s", res.Status)
	}
	if !strings.Contains(res.Remediation, "test-project") {
		t.Errorf("Expected remediation to name the project, got %q", res.Remediation)
	}
	if !strings.Contains(res.Remediation, "agent@test-project.iam.gserviceaccount.com") {
		t.Errorf("Expected remediation to name the account, got %q", res.Remediation)
	}
	if !strings.Contains(res.Remediation, "roles/serviceusage.serviceUsageViewer") {
		t.Errorf("Expected remediation to name the role, got %q", res.Remediation)
	}
	if reg.callCount() != 1 {
		t.Errorf("Expected PermissionDenied not retried, got %d calls", reg.callCount())
	}
}

func TestInvokeRetriesNetworkErrors(t *testing.T) {
	failures := 2
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"flaky": func(ctx context.Context, args map[string]any) (string, error) {
			if failures > 0 {
				failures--
				return "", errors.New("dial tcp 10.0.0.1:443: connection refused")
			}
			return "recovered", nil
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "svc", "flaky", nil)

	if res.Status != StatusOk {
		t.Fatalf("Expected OK after retries, got %s", res.Status)
	}
	if res.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", res.Attempts)
	}
}

func TestInvokeNetworkErrorExhausted(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"down": func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("HTTP 503 Service Unavailable")
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "svc", "down", nil)

	if res.Status != StatusNetworkError {
		t.Fatalf("Expected NETWORK_ERROR, got %s", res.Status)
	}
	if res.Attempts != 3 {
		t.Errorf("Expected 1 attempt + 2 retries, got %d", res.Attempts)
	}
	if !strings.Contains(res.Payload, "after 3 attempt(s)") {
		t.Errorf("Expected payload to report attempts, got %q", res.Payload)
	}
}

func TestInvokeUnknownIsSanitized(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"odd": func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("nil pointer dereference at secret/internal/path.go:42")
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "svc", "odd", nil)

	if res.Status != StatusUnknown {
		t.Fatalf("Expected UNKNOWN, got %s", res.Status)
	}
	if strings.Contains(res.Payload, "secret/internal") {
		t.Errorf("Expected sanitized payload, got %q", res.Payload)
	}
	if res.IncidentID == "" || !strings.Contains(res.Payload, res.IncidentID) {
		t.Errorf("Expected payload to carry incident id, got %q", res.Payload)
	}
	if !strings.Contains(res.Diagnostic, "secret/internal/path.go") {
		t.Errorf("Expected diagnostic to keep the full error, got %q", res.Diagnostic)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected Unknown not retried, got %d attempts", res.Attempts)
	}
}

func TestInvokeToolReportedErrorReachesCaller(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"submit_slurm_job": func(ctx context.Context, args map[string]any) (string, error) {
			return "", &registry.ToolError{Service: "hpc", Tool: "submit_slurm_job", Message: `cluster "ghost" not found; deploy it first`}
		},
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "hpc", "submit_slurm_job", nil)

	if res.Status != StatusUnknown {
		t.Fatalf("Expected UNKNOWN, got %s", res.Status)
	}
	if !strings.Contains(res.Payload, `cluster "ghost" not found; deploy it first`) {
		t.Errorf("Expected tool message in payload, got %q", res.Payload)
	}
	if res.IncidentID != "" {
		t.Errorf("Expected no incident id for a tool-reported error, got %q", res.IncidentID)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected no retry, got %d attempts", res.Attempts)
	}
}

func TestInvokeTimeout(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"slow": func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}}
	d := newTestDispatcher(reg, WithTimeout(10*time.Millisecond), WithRetryPolicy(retry.NoRetryPolicy()))
	res := d.Invoke(context.Background(), "svc", "slow", nil)

	if res.Status != StatusNetworkError {
		t.Fatalf("Expected NETWORK_ERROR on timeout, got %s", res.Status)
	}
}

func TestInvokeSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"steady": func(ctx context.Context, args map[string]any) (string, error) {
			close(started)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(30 * time.Millisecond):
				return "finished", nil
			}
		},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res := newTestDispatcher(reg).Invoke(ctx, "svc", "steady", nil)
	if res.Status != StatusOk || res.Payload != "finished" {
		t.Errorf("Expected in-flight call to finish after caller cancel, got %s %q", res.Status, res.Payload)
	}
}

func TestInvokeNoRetryAfterCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"down": func(c context.Context, args map[string]any) (string, error) {
			cancel()
			return "", errors.New("connection reset by peer")
		},
	}}
	d := newTestDispatcher(reg, WithRetryPolicy(retry.Policy{
		MaxRetries: 2, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2,
	}))

	res := d.Invoke(ctx, "svc", "down", nil)
	if res.Attempts != 1 {
		t.Errorf("Expected no retry after cancel, got %d attempts", res.Attempts)
	}
}

func TestInvokeValidatesArguments(t *testing.T) {
	reg := &fakeRegistry{
		tools: map[string]toolFunc{
			"search": func(ctx context.Context, args map[string]any) (string, error) {
				return "found " + args["query"].(string), nil
			},
		},
		schemas: map[string]json.RawMessage{
			"search": json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		},
	}
	d := newTestDispatcher(reg)

	bad := d.Invoke(context.Background(), "lit", "search", map[string]any{})
	if bad.Status != StatusUnknown || !strings.Contains(bad.Payload, "invalid arguments") {
		t.Errorf("Expected invalid arguments result, got %s %q", bad.Status, bad.Payload)
	}
	if reg.callCount() != 0 {
		t.Errorf("Expected no call with invalid arguments, got %d", reg.callCount())
	}

	good := d.Invoke(context.Background(), "lit", "search", map[string]any{"query": "cancer"})
	if !good.OK() || good.Payload != "found cancer" {
		t.Errorf("Expected OK, got %s %q", good.Status, good.Payload)
	}
}

func TestInvokeRejectsNonJSONArguments(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"x": func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}}
	res := newTestDispatcher(reg).Invoke(context.Background(), "svc", "x", map[string]any{"ch": make(chan int)})
	if res.Status != StatusUnknown {
		t.Errorf("Expected UNKNOWN for unrepresentable arguments, got %s", res.Status)
	}
}

type recordingMetrics struct {
	statuses []string
}

func (m *recordingMetrics) ObserveToolCall(service, tool, status string, attempts int, elapsed time.Duration) {
	m.statuses = append(m.statuses, service+"/"+tool+":"+status)
}

func TestInvokeRecordsMetrics(t *testing.T) {
	reg := &fakeRegistry{tools: map[string]toolFunc{
		"ok": func(ctx context.Context, args map[string]any) (string, error) { return "y", nil },
	}}
	m := &recordingMetrics{}
	newTestDispatcher(reg, WithMetrics(m)).Invoke(context.Background(), "svc", "ok", nil)

	if len(m.statuses) != 1 || m.statuses[0] != "svc/ok:OK" {
		t.Errorf("Expected one OK observation, got %v", m.statuses)
	}
}

func TestInvokeThroughInProcessHost(t *testing.T) {
	srv := server.NewMCPServer("chem", "1.0.0", server.WithToolCapabilities(true))
	srv.AddTool(mcp.NewTool("search_pubchem",
		mcp.WithString("query", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Compound: " + q), nil
	})
	srv.AddTool(mcp.NewTool("denied"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("403 Forbidden: serviceusage.services.use denied"), nil
	})

	reg := registry.New()
	_ = reg.Add("chem", registry.InProcessConnector(srv), nil)
	defer reg.Close()
	d := newTestDispatcher(reg)

	res := d.Invoke(context.Background(), "chem", "search_pubchem", map[string]any{"query": "aspirin"})
	if !res.OK() || res.Payload != "Compound: aspirin" {
		t.Errorf("Expected compound payload, got %s %q", res.Status, res.Payload)
	}

	missing := d.Invoke(context.Background(), "chem", "search_pubchem", map[string]any{})
	if missing.Status != StatusUnknown || missing.IncidentID != "" || !strings.Contains(missing.Payload, "query") {
		t.Errorf("Expected missing query reported to the caller, got %s %q", missing.Status, missing.Payload)
	}

	denied := d.Invoke(context.Background(), "chem", "denied", nil)
	if denied.Status != StatusPermissionDenied {
		t.Errorf("Expected PERMISSION_DENIED from tool error, got %s", denied.Status)
	}
}
