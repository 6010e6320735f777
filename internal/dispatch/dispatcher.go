package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/coordinator/retry"
	"github.com/AltairaLabs/discovery-agent/internal/registry"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// Registry resolves and calls tools
type Registry interface {
	Resolve(ctx context.Context, service, tool string) (registry.Descriptor, error)
	Call(ctx context.Context, d registry.Descriptor, args map[string]any) (string, error)
}

// Metrics receives one observation per Invoke
type Metrics interface {
	ObserveToolCall(service, tool, status string, attempts int, elapsed time.Duration)
}

// Dispatcher invokes tools through a Registry
type Dispatcher struct {
	registry   Registry
	timeout    time.Duration
	policy     retry.Policy
	classifier *Classifier
	remediator *Remediator
	validator  *ArgValidator
	audit      types.AuditLogger
	metrics    Metrics
	logger     *slog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTimeout bounds each invocation attempt
func WithTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) { ds.timeout = d }
}

// WithRetryPolicy sets the policy for NetworkError retries
func WithRetryPolicy(p retry.Policy) Option {
	return func(ds *Dispatcher) { ds.policy = p }
}

// WithClassifier replaces the failure classifier
func WithClassifier(c *Classifier) Option {
	return func(ds *Dispatcher) { ds.classifier = c }
}

// WithRemediation sets the remediation parameters for PermissionDenied results
func WithRemediation(cfg config.RemediationConfig) Option {
	return func(ds *Dispatcher) { ds.remediator = NewRemediator(cfg) }
}

// WithAuditLogger sets the audit sink
func WithAuditLogger(a types.AuditLogger) Option {
	return func(ds *Dispatcher) { ds.audit = a }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(ds *Dispatcher) { ds.metrics = m }
}

// WithLogger sets the operator logger
func WithLogger(l *slog.Logger) Option {
	return func(ds *Dispatcher) { ds.logger = l }
}

// New creates a dispatcher with the default timeout, retry policy and remediation
func New(reg Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:   reg,
		timeout:    config.DefaultToolTimeout,
		policy:     retry.DefaultPolicy(),
		classifier: DefaultClassifier(),
		remediator: NewRemediator(config.DefaultRemediationConfig()),
		validator:  &ArgValidator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.audit == nil {
		d.audit = NewAuditLogger(d.logger)
	}
	return d
}

// Invoke calls service/tool with args and never returns an error: every
// failure is folded into the Result. Only NetworkError results are retried.
// Each attempt is bounded by the dispatcher timeout and is not aborted when
// ctx is canceled, though no retry starts after ctx is done.
func (d *Dispatcher) Invoke(ctx context.Context, service, tool string, args map[string]any) Result {
	start := time.Now()
	scope := types.AuditScopeFrom(ctx)
	d.audit.LogToolCall(ctx, &types.AuditEntry{
		SessionID: scope.SessionID,
		UserID:    scope.UserID,
		Service:   service,
		ToolName:  tool,
		Arguments: args,
	})

	var res Result
	attempts := retry.Run(ctx, d.policy, func(attempt int) bool {
		res = d.attempt(ctx, service, tool, args)
		if res.Status.Retryable() {
			d.logger.WarnContext(ctx, "Tool call failed, may retry",
				"service", service,
				"tool", tool,
				"attempt", attempt+1,
				"error", res.Diagnostic,
			)
			return true
		}
		return false
	})
	res.Attempts = attempts
	res.Duration = time.Since(start)
	if res.Status == StatusNetworkError {
		res.Payload = fmt.Sprintf(config.ErrNetworkFailure, service, tool, attempts, res.Payload)
	}

	entry := &types.AuditEntry{
		SessionID:  scope.SessionID,
		UserID:     scope.UserID,
		Service:    service,
		ToolName:   tool,
		Status:     res.Status.String(),
		Attempts:   res.Attempts,
		Duration:   res.Duration,
		IncidentID: res.IncidentID,
	}
	if !res.OK() {
		entry.ErrorMsg = res.Diagnostic
		if entry.ErrorMsg == "" {
			entry.ErrorMsg = res.Payload
		}
	}
	d.audit.LogToolResult(ctx, entry)
	if d.metrics != nil {
		d.metrics.ObserveToolCall(service, tool, res.Status.String(), res.Attempts, res.Duration)
	}
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, service, tool string, args map[string]any) Result {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	desc, err := d.registry.Resolve(callCtx, service, tool)
	if err != nil {
		var nf *registry.NotFoundError
		if errors.As(err, &nf) {
			return Result{Status: StatusNotFound, Payload: nf.Error()}
		}
		return d.failure(ctx, service, tool, err)
	}

	canonical, err := d.validator.Validate(desc, args)
	if err != nil {
		return Result{
			Status:     StatusUnknown,
			Payload:    fmt.Sprintf(config.ErrInvalidArguments, service, tool, err),
			Diagnostic: err.Error(),
		}
	}

	out, err := d.registry.Call(callCtx, desc, canonical)
	if err != nil {
		return d.failure(ctx, service, tool, err)
	}
	return Result{Status: StatusOk, Payload: out}
}

func (d *Dispatcher) failure(ctx context.Context, service, tool string, err error) Result {
	st, signal := d.classifier.Classify(err)
	switch st {
	case StatusPermissionDenied:
		return Result{
			Status:      StatusPermissionDenied,
			Payload:     fmt.Sprintf(config.ErrPermissionDenied, service, tool),
			Remediation: d.remediator.For(service),
			Diagnostic:  err.Error(),
		}
	case StatusNetworkError:
		return Result{
			Status:     StatusNetworkError,
			Payload:    signal,
			Diagnostic: err.Error(),
		}
	}

	// The host's own message is meant for the caller; transport and internal
	// failures stay behind an incident id
	var te *registry.ToolError
	if errors.As(err, &te) {
		d.logger.WarnContext(ctx, "Tool reported failure",
			"service", service,
			"tool", tool,
			"error", te.Message,
		)
		return Result{
			Status:     StatusUnknown,
			Payload:    fmt.Sprintf(config.ErrToolReported, service, tool, te.Message),
			Diagnostic: err.Error(),
		}
	}

	incident := uuid.NewString()
	d.logger.ErrorContext(ctx, "Unclassified tool failure",
		"service", service,
		"tool", tool,
		"incident_id", incident,
		"error", err,
	)
	return Result{
		Status:     StatusUnknown,
		Payload:    fmt.Sprintf(config.ErrToolFailed, service, tool, incident),
		Diagnostic: err.Error(),
		IncidentID: incident,
	}
}
