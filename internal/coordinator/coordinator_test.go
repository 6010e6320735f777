package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/retry"
	"github.com/AltairaLabs/discovery-agent/internal/dispatch"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/session"
	"github.com/AltairaLabs/discovery-agent/internal/specialist"
	"github.com/AltairaLabs/discovery-agent/internal/storage/memory"
	"github.com/AltairaLabs/discovery-agent/internal/toolhost"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

const deployQuery = "deploy hpc cluster named docking-01 with 4 nodes"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCoordinator wires the built-in hosts in process. Tools named in deny
// answer with a permission error.
func newTestCoordinator(t *testing.T, deny []string, opts ...Option) *Coordinator {
	t.Helper()
	logger := testLogger()

	hostCfg := config.DefaultToolHostConfig()
	hostCfg.Deny = deny
	hosts := toolhost.Build(hostCfg, "test", logger)

	reg, err := registry.FromConfig(config.Default().Servers, toolhost.InProcess(hosts), registry.WithLogger(logger))
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	disp := dispatch.New(reg,
		dispatch.WithLogger(logger),
		dispatch.WithTimeout(5*time.Second),
		dispatch.WithRetryPolicy(retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}),
	)
	return New(memory.NewSessionStore(4), reg, disp, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestQuery_DeployCluster(t *testing.T) {
	c := newTestCoordinator(t, nil)

	resp, err := c.Query(context.Background(), QueryRequest{Input: deployQuery})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	wantPrefix := "Processing query: '" + deployQuery + "'\nRouted to: infrastructure_specialist (keyword)\n"
	if !strings.HasPrefix(resp.Answer, wantPrefix) {
		t.Errorf("Expected answer to start with %q, got %q", wantPrefix, resp.Answer)
	}
	for _, want := range []string{"SUCCESS: HPC Cluster 'docking-01' deployed", "Status: READY", "hpc/deploy_hpc_cluster", "-> OK"} {
		if !strings.Contains(resp.Answer, want) {
			t.Errorf("Expected answer to contain %q, got %q", want, resp.Answer)
		}
	}
	if !resp.Created {
		t.Error("Expected a new session to be created")
	}
	if resp.Specialist != config.SpecialistInfrastructure {
		t.Errorf("Expected specialist %s, got %s", config.SpecialistInfrastructure, resp.Specialist)
	}
	if resp.Metadata["session_id"] != resp.SessionID {
		t.Errorf("Expected metadata session_id %s, got %v", resp.SessionID, resp.Metadata["session_id"])
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Status != "OK" || resp.Steps[0].Attempts != 1 {
		t.Fatalf("Expected one OK step with one attempt, got %+v", resp.Steps)
	}
}

func TestQuery_SessionContinuity(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx := context.Background()

	first, err := c.Query(ctx, QueryRequest{Input: deployQuery, UserID: "alice"})
	if err != nil {
		t.Fatalf("first Query failed: %v", err)
	}
	second, err := c.Query(ctx, QueryRequest{Input: "list clusters", SessionID: first.SessionID, UserID: "alice"})
	if err != nil {
		t.Fatalf("second Query failed: %v", err)
	}
	if second.Created {
		t.Error("Expected the existing session to be reused")
	}
	if !strings.Contains(second.Answer, "- docking-01: 4 x c2-standard-60 (READY)") {
		t.Errorf("Expected the deployed cluster in the listing, got %q", second.Answer)
	}

	s, err := c.GetSession(ctx, first.SessionID, "alice")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(s.Turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(s.Turns))
	}
	if s.Turns[0].Query != deployQuery {
		t.Errorf("Expected first turn query %q, got %q", deployQuery, s.Turns[0].Query)
	}
	if len(s.Turns[1].Calls) != 1 || s.Turns[1].Calls[0].Tool != config.ToolListClusters {
		t.Errorf("Expected list_clusters recorded on the second turn, got %+v", s.Turns[1].Calls)
	}
}

func TestQuery_SessionIDFromMetadata(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx := context.Background()

	s, err := c.CreateSession(ctx, "bob")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	resp, err := c.Query(ctx, QueryRequest{Input: map[string]any{
		"prompt":     "list clusters",
		"session_id": s.ID,
		"user_id":    "bob",
	}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.SessionID != s.ID || resp.Created {
		t.Errorf("Expected session %s reused, got %s (created=%v)", s.ID, resp.SessionID, resp.Created)
	}
}

func TestQuery_PermissionDeniedDegradesGracefully(t *testing.T) {
	c := newTestCoordinator(t, []string{config.ServiceHPC})

	resp, err := c.Query(context.Background(), QueryRequest{Input: deployQuery})
	if err != nil {
		t.Fatalf("Expected denial to be narrated, got error: %v", err)
	}
	if len(resp.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(resp.Steps))
	}
	step := resp.Steps[0]
	if step.Status != "PERMISSION_DENIED" {
		t.Errorf("Expected PERMISSION_DENIED, got %s", step.Status)
	}
	if step.Attempts != 1 {
		t.Errorf("Expected no retries for a denial, got %d attempts", step.Attempts)
	}
	if !strings.Contains(step.Remediation, "roles/") {
		t.Errorf("Expected remediation naming a role, got %q", step.Remediation)
	}
	if !strings.Contains(resp.Answer, "Infrastructure: no tool call succeeded") {
		t.Errorf("Expected the failure summarized in the answer, got %q", resp.Answer)
	}
}

func TestQuery_ToolReportedErrorReachesAnswer(t *testing.T) {
	c := newTestCoordinator(t, nil)

	resp, err := c.Query(context.Background(), QueryRequest{Input: "submit job to cluster ghost: 'sbatch run.sh'"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(resp.Steps))
	}
	step := resp.Steps[0]
	if step.Status != "UNKNOWN" || step.IncidentID != "" {
		t.Errorf("Expected UNKNOWN without incident, got %s %q", step.Status, step.IncidentID)
	}
	if !strings.Contains(resp.Answer, `cluster "ghost" not found; deploy it first`) {
		t.Errorf("Expected the host's message in the answer, got %q", resp.Answer)
	}
}

func TestQuery_WebSearchWithoutKey(t *testing.T) {
	c := newTestCoordinator(t, nil)

	resp, err := c.Query(context.Background(), QueryRequest{Input: "search the web for slurm gpu partitions"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Specialist != config.SpecialistInfrastructure {
		t.Fatalf("Expected infrastructure specialist, got %s", resp.Specialist)
	}
	if len(resp.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(resp.Steps))
	}
	step := resp.Steps[0]
	if !strings.HasPrefix(step.Call, "hpc/search_web") {
		t.Errorf("Expected hpc/search_web call, got %s", step.Call)
	}
	if !strings.Contains(step.Payload, "SERPAPI_API_KEY") {
		t.Errorf("Expected configuration hint, got %q", step.Payload)
	}
}

func TestQuery_UnknownSession(t *testing.T) {
	c := newTestCoordinator(t, nil)

	_, err := c.Query(context.Background(), QueryRequest{Input: "hello", SessionID: "no-such-session"})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestQuery_OtherUsersSession(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx := context.Background()

	s, err := c.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	_, err = c.Query(ctx, QueryRequest{Input: "hello", SessionID: s.ID, UserID: "mallory"})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's session, got %v", err)
	}
}

func TestQuery_EmptyInput(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		wantErr bool
	}{
		{"loose mode answers with help", false, false},
		{"strict mode rejects", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t, nil, WithStrictInput(tt.strict))
			resp, err := c.Query(context.Background(), QueryRequest{Input: map[string]any{}})
			if tt.wantErr {
				if !errors.Is(err, normalize.ErrValidation) {
					t.Errorf("Expected validation error, got %v", err)
				}
				if c.store.Count() != 0 {
					t.Errorf("Expected no session created for rejected input, got %d", c.store.Count())
				}
				return
			}
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if resp.Specialist != config.SpecialistGeneral {
				t.Errorf("Expected general specialist, got %s", resp.Specialist)
			}
			if !strings.Contains(resp.Answer, config.NoInputSentinel) {
				t.Errorf("Expected sentinel echoed, got %q", resp.Answer)
			}
			if !strings.Contains(resp.Answer, "I did not receive a question") {
				t.Errorf("Expected help text, got %q", resp.Answer)
			}
			if len(resp.Steps) != 0 {
				t.Errorf("Expected no tool calls, got %d", len(resp.Steps))
			}
		})
	}
}

func TestQuery_CanceledBeforeDispatch(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := c.Query(ctx, QueryRequest{Input: deployQuery})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(resp.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(resp.Steps))
	}
	if resp.Steps[0].Status != "NETWORK_ERROR" || resp.Steps[0].Payload != config.ErrSkipped {
		t.Errorf("Expected skipped step, got %+v", resp.Steps[0])
	}

	s, err := c.GetSession(context.Background(), resp.SessionID, "")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(s.Turns) != 1 {
		t.Errorf("Expected the abandoned turn recorded, got %d turns", len(s.Turns))
	}
}

func delegated(d router.DeciderFunc) Option {
	return WithStrategy(&router.DelegatedStrategy{Decider: d})
}

func TestQuery_DelegatedRouting(t *testing.T) {
	tests := []struct {
		name           string
		decision       router.Decision
		wantSpecialist string
		wantFallback   bool
		wantCall       string
	}{
		{
			name: "valid tool call infers specialist",
			decision: router.Decision{
				ToolCall: &types.ToolCall{Service: config.ServiceHPC, Tool: config.ToolListClusters, Arguments: map[string]any{}},
			},
			wantSpecialist: config.SpecialistInfrastructure,
			wantCall:       "hpc/list_clusters",
		},
		{
			name: "invented tool falls back",
			decision: router.Decision{
				Specialist: config.SpecialistInfrastructure,
				ToolCall:   &types.ToolCall{Service: config.ServiceHPC, Tool: "launch_rockets"},
			},
			wantSpecialist: config.SpecialistGeneral,
			wantFallback:   true,
		},
		{
			name:           "unknown specialist falls back",
			decision:       router.Decision{Specialist: "astrologer"},
			wantSpecialist: config.SpecialistGeneral,
			wantFallback:   true,
		},
		{
			name:           "known specialist plans its own calls",
			decision:       router.Decision{Specialist: config.SpecialistInfrastructure},
			wantSpecialist: config.SpecialistInfrastructure,
			wantCall:       "hpc/list_clusters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t, nil, delegated(func(ctx context.Context, query string, specialists []router.Specialist) (router.Decision, error) {
				return tt.decision, nil
			}))

			resp, err := c.Query(context.Background(), QueryRequest{Input: "list clusters"})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if resp.Specialist != tt.wantSpecialist {
				t.Errorf("Expected specialist %s, got %s", tt.wantSpecialist, resp.Specialist)
			}
			if resp.Fallback != tt.wantFallback {
				t.Errorf("Expected fallback %v, got %v", tt.wantFallback, resp.Fallback)
			}
			if resp.Strategy != config.StrategyDelegated {
				t.Errorf("Expected delegated strategy, got %s", resp.Strategy)
			}
			if tt.wantCall == "" {
				if len(resp.Steps) != 0 {
					t.Errorf("Expected no tool calls, got %+v", resp.Steps)
				}
				return
			}
			if len(resp.Steps) != 1 || !strings.HasPrefix(resp.Steps[0].Call, tt.wantCall) {
				t.Errorf("Expected one call to %s, got %+v", tt.wantCall, resp.Steps)
			}
		})
	}
}

func TestQuery_DelegatedDeciderError(t *testing.T) {
	c := newTestCoordinator(t, nil, delegated(func(ctx context.Context, query string, specialists []router.Specialist) (router.Decision, error) {
		return router.Decision{}, errors.New("model unavailable")
	}))

	resp, err := c.Query(context.Background(), QueryRequest{Input: deployQuery})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Specialist != config.SpecialistGeneral || !resp.Fallback {
		t.Errorf("Expected fallback to general, got %s (fallback=%v)", resp.Specialist, resp.Fallback)
	}
}

func TestSessionOperations(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx := context.Background()

	a, err := c.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if a.UserID != config.DefaultUserID {
		t.Errorf("Expected default user %s, got %s", config.DefaultUserID, a.UserID)
	}
	b, err := c.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	list, err := c.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("Expected sessions in creation order, got %+v", list)
	}

	if err := c.DeleteSession(ctx, a.ID, ""); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := c.GetSession(ctx, a.ID, ""); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := c.DeleteSession(ctx, a.ID, ""); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRunSessionCleanup(t *testing.T) {
	c := newTestCoordinator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := c.CreateSession(ctx, "alice"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.RunSessionCleanup(ctx, time.Nanosecond, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.store.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("Expected idle session to expire")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestFormatStep(t *testing.T) {
	tests := []struct {
		name string
		step func() string
		want string
	}{
		{
			name: "payload indented",
			step: func() string {
				return formatStep(1, stepOf("hpc", "list_clusters", dispatch.Result{Status: dispatch.StatusOk, Payload: "a\nb"}))
			},
			want: "1. hpc/list_clusters() -> OK\n   a\n   b",
		},
		{
			name: "remediation follows payload",
			step: func() string {
				return formatStep(2, stepOf("hpc", "list_clusters", dispatch.Result{
					Status:      dispatch.StatusPermissionDenied,
					Payload:     "denied",
					Remediation: "grant it",
				}))
			},
			want: "2. hpc/list_clusters() -> PERMISSION_DENIED\n   denied\n   grant it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func stepOf(service, tool string, res dispatch.Result) specialist.Step {
	return specialist.Step{Call: types.ToolCall{Service: service, Tool: tool}, Result: res}
}
