package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/dispatch"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/session"
	"github.com/AltairaLabs/discovery-agent/internal/specialist"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// turn is one query in flight
type turn struct {
	c         *Coordinator
	state     *turnState
	query     normalize.Query
	sessionID string
	userID    string
	created   bool

	decision  router.Decision
	steps     []specialist.Step
	fragments []string
	answer    string
}

// run routes, dispatches, composes and records the turn. emit receives each
// answer fragment as it is produced; once it returns false the turn still
// completes but nothing more is emitted.
func (t *turn) run(ctx context.Context, emit func(string) bool) error {
	c := t.c
	release, err := c.seq.Acquire(ctx, t.sessionID)
	if err != nil {
		return err
	}
	defer release()

	emitting := emit != nil
	out := func(fragment string) {
		t.fragments = append(t.fragments, fragment)
		if emitting {
			emitting = emit(fragment)
		}
	}

	out(fmt.Sprintf(config.MsgProcessing, t.query.Text))

	t.decision = c.route(ctx, t.query)
	if err := t.state.advance(TurnRouted); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.ObserveRouting(t.decision.Specialist, t.decision.Strategy, t.decision.Fallback)
	}
	c.logger.DebugContext(ctx, "Routed query",
		"session_id", t.sessionID,
		"specialist", t.decision.Specialist,
		"strategy", t.decision.Strategy,
		"fallback", t.decision.Fallback,
		"reason", t.decision.Reason,
	)
	out(fmt.Sprintf(config.MsgRouted, t.decision.Specialist, t.decision.Strategy))

	planner := c.planner(t.decision.Specialist)
	var calls []types.ToolCall
	if t.decision.ToolCall != nil {
		calls = []types.ToolCall{*t.decision.ToolCall}
	} else {
		calls = planner.Plan(t.query)
	}
	if err := t.state.advance(TurnDispatching); err != nil {
		return err
	}

	callCtx := types.WithAuditScope(ctx, types.AuditScope{SessionID: t.sessionID, UserID: t.userID})
	for i, call := range calls {
		var res dispatch.Result
		if ctx.Err() != nil {
			res = dispatch.Result{Status: dispatch.StatusNetworkError, Payload: config.ErrSkipped}
		} else {
			res = c.invoker.Invoke(callCtx, call.Service, call.Tool, call.Arguments)
		}
		step := specialist.Step{Call: call, Result: res}
		t.steps = append(t.steps, step)
		out(formatStep(i+1, step))
	}

	t.answer = planner.Synthesize(t.query, t.steps)
	out(fmt.Sprintf(config.MsgAnswer, t.answer))
	if err := t.state.advance(TurnComposed); err != nil {
		return err
	}

	// The turn is recorded even when the caller has gone away
	record := session.Turn{
		Query:      t.query.Text,
		Answer:     t.Answer(),
		Specialist: t.decision.Specialist,
		Strategy:   t.decision.Strategy,
	}
	for _, s := range t.steps {
		record.Calls = append(record.Calls, session.CallRecord{
			Service:  s.Call.Service,
			Tool:     s.Call.Tool,
			Status:   s.Result.Status.String(),
			Attempts: s.Result.Attempts,
		})
	}
	if err := c.store.AppendTurn(context.WithoutCancel(ctx), t.sessionID, t.userID, record); err != nil {
		return err
	}
	if err := t.state.advance(TurnReturned); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.ObserveTurn(t.decision.Specialist)
	}
	c.logger.InfoContext(ctx, "Turn completed",
		"session_id", t.sessionID,
		"specialist", t.decision.Specialist,
		"calls", len(t.steps),
	)
	return nil
}

// Answer is the full composed text
func (t *turn) Answer() string {
	return strings.Join(t.fragments, "\n")
}

func (t *turn) response() *QueryResponse {
	resp := &QueryResponse{
		Answer:     t.Answer(),
		SessionID:  t.sessionID,
		Created:    t.created,
		Specialist: t.decision.Specialist,
		Strategy:   t.decision.Strategy,
		Fallback:   t.decision.Fallback,
		Metadata: map[string]any{
			"session_id": t.sessionID,
			"created":    t.created,
			"specialist": t.decision.Specialist,
			"strategy":   t.decision.Strategy,
		},
	}
	for _, s := range t.steps {
		resp.Steps = append(resp.Steps, StepSummary{
			Call:        s.Call.String(),
			Status:      s.Result.Status.String(),
			Attempts:    s.Result.Attempts,
			Payload:     s.Result.Payload,
			Remediation: s.Result.Remediation,
			IncidentID:  s.Result.IncidentID,
		})
	}
	return resp
}

// formatStep renders "N. service/tool(args) -> STATUS" followed by the
// indented payload and remediation
func formatStep(n int, s specialist.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s -> %s", n, s.Call.String(), s.Result.Status)
	for _, block := range []string{s.Result.Payload, s.Result.Remediation} {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		for _, line := range strings.Split(block, "\n") {
			b.WriteString("\n   ")
			b.WriteString(line)
		}
	}
	return b.String()
}
