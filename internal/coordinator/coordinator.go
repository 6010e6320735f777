// Package coordinator runs query turns: it normalizes input, routes it to a
// specialist, dispatches the specialist's tool calls and records the turn.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/dispatch"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/session"
	"github.com/AltairaLabs/discovery-agent/internal/specialist"
)

// Resolver checks that a tool exists on the live registry
type Resolver interface {
	Resolve(ctx context.Context, service, tool string) (registry.Descriptor, error)
}

// Invoker dispatches one tool call
type Invoker interface {
	Invoke(ctx context.Context, service, tool string, args map[string]any) dispatch.Result
}

// Metrics receives coordinator observations
type Metrics interface {
	ObserveRouting(specialist, strategy string, fallback bool)
	ObserveTurn(specialist string)
	SetActiveSessions(n int)
}

// Coordinator is the facade over sessions, routing and dispatch
type Coordinator struct {
	store       session.Store
	resolver    Resolver
	invoker     Invoker
	strategy    router.Strategy
	specialists []router.Specialist
	planners    map[string]specialist.Planner
	normalizer  *normalize.Normalizer
	defaultUser string
	seq         *sequencer
	metrics     Metrics
	logger      *slog.Logger
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithSpecialists replaces the specialist set
func WithSpecialists(s []router.Specialist) Option {
	return func(c *Coordinator) { c.specialists = s }
}

// WithStrategy sets the routing strategy
func WithStrategy(s router.Strategy) Option {
	return func(c *Coordinator) { c.strategy = s }
}

// WithPlanners sets the planners keyed by specialist name
func WithPlanners(p map[string]specialist.Planner) Option {
	return func(c *Coordinator) { c.planners = p }
}

// WithStrictInput rejects queries without a resolvable primary field
func WithStrictInput(strict bool) Option {
	return func(c *Coordinator) { c.normalizer = normalize.New(strict) }
}

// WithDefaultUser sets the user for callers that do not identify themselves
func WithDefaultUser(user string) Option {
	return func(c *Coordinator) { c.defaultUser = user }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a coordinator. Without options it routes by keyword over the
// built-in specialists.
func New(store session.Store, resolver Resolver, invoker Invoker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		resolver:    resolver,
		invoker:     invoker,
		specialists: router.FromConfig(config.DefaultSpecialists()),
		normalizer:  normalize.New(false),
		defaultUser: config.DefaultUserID,
		seq:         newSequencer(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		c.strategy = router.NewKeywordStrategy(c.specialists)
	}
	if c.planners == nil {
		c.planners = specialist.Defaults(c.specialists)
	}
	return c
}

func (c *Coordinator) user(userID string) string {
	if u := strings.TrimSpace(userID); u != "" {
		return u
	}
	return c.defaultUser
}

func (c *Coordinator) observeSessions() {
	if c.metrics != nil {
		c.metrics.SetActiveSessions(c.store.Count())
	}
}

// CreateSession starts a session for userID
func (c *Coordinator) CreateSession(ctx context.Context, userID string) (*session.Session, error) {
	s, err := c.store.Create(ctx, c.user(userID))
	if err != nil {
		return nil, err
	}
	c.observeSessions()
	c.logger.InfoContext(ctx, "Session created", "session_id", s.ID, "user_id", s.UserID)
	return s, nil
}

// ListSessions returns userID's sessions in creation order
func (c *Coordinator) ListSessions(ctx context.Context, userID string) ([]session.Summary, error) {
	return c.store.List(ctx, c.user(userID))
}

// GetSession returns one of userID's sessions
func (c *Coordinator) GetSession(ctx context.Context, sessionID, userID string) (*session.Session, error) {
	return c.store.Get(ctx, sessionID, c.user(userID))
}

// DeleteSession removes one of userID's sessions
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if err := c.store.Delete(ctx, sessionID, c.user(userID)); err != nil {
		return err
	}
	c.observeSessions()
	c.logger.InfoContext(ctx, "Session deleted", "session_id", sessionID)
	return nil
}

// RunSessionCleanup expires sessions idle longer than maxIdle every interval
// until ctx is done
func (c *Coordinator) RunSessionCleanup(ctx context.Context, maxIdle, interval time.Duration) {
	if maxIdle <= 0 {
		return
	}
	if interval <= 0 {
		interval = config.DefaultSessionCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.store.CleanupStale(maxIdle); n > 0 {
				c.logger.Info("Expired idle sessions", "count", n, "max_idle", maxIdle)
				c.observeSessions()
			}
		}
	}
}

// QueryRequest is one caller turn. Input may be any JSON-like value.
// SessionID and UserID may also be supplied as input metadata.
type QueryRequest struct {
	Input     any
	SessionID string
	UserID    string
}

// StepSummary describes one dispatched call
type StepSummary struct {
	Call        string `json:"call"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	Payload     string `json:"payload,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	IncidentID  string `json:"incident_id,omitempty"`
}

// QueryResponse is the composed answer and its metadata
type QueryResponse struct {
	Answer     string         `json:"answer"`
	SessionID  string         `json:"session_id"`
	Created    bool           `json:"created"`
	Specialist string         `json:"specialist"`
	Strategy   string         `json:"strategy"`
	Fallback   bool           `json:"fallback"`
	Steps      []StepSummary  `json:"steps,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// Query runs one turn to completion and returns the composed answer.
// Errors are reserved for invalid input and unknown sessions; tool failures
// are narrated in the answer.
func (c *Coordinator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	t, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := t.run(ctx, nil); err != nil {
		return nil, err
	}
	return t.response(), nil
}

// StreamQuery validates the request and resolves its session, then returns
// a stream whose fragments are produced as the turn runs.
func (c *Coordinator) StreamQuery(ctx context.Context, req QueryRequest) (*Stream, error) {
	t, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Stream{ctx: ctx, turn: t}, nil
}

// prepare normalizes the input and resolves or creates the session
func (c *Coordinator) prepare(ctx context.Context, req QueryRequest) (*turn, error) {
	state := newTurnState(c.logger)

	q, err := c.normalizer.Normalize(req.Input)
	if err != nil {
		return nil, err
	}
	if err := state.advance(TurnNormalized); err != nil {
		return nil, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = metadataString(q.Metadata, "session_id")
	}
	userID := req.UserID
	if strings.TrimSpace(userID) == "" {
		userID = metadataString(q.Metadata, "user_id")
	}
	userID = c.user(userID)

	created := false
	if sessionID == "" {
		s, err := c.CreateSession(ctx, userID)
		if err != nil {
			return nil, err
		}
		sessionID = s.ID
		created = true
	} else if _, err := c.store.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	return &turn{
		c:         c,
		state:     state,
		query:     q,
		sessionID: sessionID,
		userID:    userID,
		created:   created,
	}, nil
}

func metadataString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// route asks the strategy and validates what it returns against the
// specialist set and the live registry
func (c *Coordinator) route(ctx context.Context, q normalize.Query) router.Decision {
	def, _ := router.DefaultOf(c.specialists)
	fallback := func(strategy, reason string) router.Decision {
		return router.Decision{Specialist: def.Name, Strategy: strategy, Fallback: true, Reason: reason}
	}

	d, err := c.strategy.Route(ctx, q, c.specialists)
	if err != nil {
		c.logger.WarnContext(ctx, "Routing failed, using default specialist", "error", err)
		return fallback(c.strategy.Name(), err.Error())
	}

	if d.ToolCall != nil {
		tc := d.ToolCall
		if _, err := c.resolver.Resolve(ctx, tc.Service, tc.Tool); err != nil {
			c.logger.WarnContext(ctx, "Rejected tool call from router",
				"service", tc.Service,
				"tool", tc.Tool,
				"error", err,
			)
			return fallback(d.Strategy, "unknown tool "+tc.Service+"/"+tc.Tool)
		}
		if d.Specialist == "" {
			d.Specialist = def.Name
			for _, sp := range c.specialists {
				if sp.Service == tc.Service {
					d.Specialist = sp.Name
					break
				}
			}
		}
	}

	if _, ok := router.Lookup(c.specialists, d.Specialist); !ok {
		c.logger.WarnContext(ctx, "Rejected unknown specialist from router", "specialist", d.Specialist)
		return fallback(d.Strategy, fmt.Sprintf("unknown specialist %q", d.Specialist))
	}
	return d
}

func (c *Coordinator) planner(name string) specialist.Planner {
	if p, ok := c.planners[name]; ok {
		return p
	}
	def, _ := router.DefaultOf(c.specialists)
	if p, ok := c.planners[def.Name]; ok {
		return p
	}
	return &specialist.General{Specialists: c.specialists}
}
