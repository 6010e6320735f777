package coordinator

import (
	"fmt"
	"log/slog"
)

// TurnState is the lifecycle position of one query turn
type TurnState int

// Turn states, in the only order a turn may move through them
const (
	TurnReceived TurnState = iota
	TurnNormalized
	TurnRouted
	TurnDispatching
	TurnComposed
	TurnReturned
)

func (s TurnState) String() string {
	switch s {
	case TurnReceived:
		return "received"
	case TurnNormalized:
		return "normalized"
	case TurnRouted:
		return "routed"
	case TurnDispatching:
		return "dispatching"
	case TurnComposed:
		return "composed"
	case TurnReturned:
		return "returned"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

// turnState tracks a turn and rejects backward transitions
type turnState struct {
	state  TurnState
	logger *slog.Logger
}

func newTurnState(logger *slog.Logger) *turnState {
	return &turnState{state: TurnReceived, logger: logger}
}

func (t *turnState) advance(next TurnState) error {
	if next <= t.state {
		return fmt.Errorf("invalid turn transition %s -> %s", t.state, next)
	}
	t.logger.Debug("Turn state", "from", t.state.String(), "to", next.String())
	t.state = next
	return nil
}
