package rtnn

import (
	"time"

	"github.com/google/uuid"
)

// PhaseEvent describes one finished phase.
type PhaseEvent struct {
	Run      uuid.UUID
	Phase    Phase
	Batch    int
	Queries  int
	Duration time.Duration
	Err      error
}

// TraceSink receives pipeline events. Implementations must be safe for
// concurrent use; batches report from their own streams.
type TraceSink interface {
	// OnPhase is called after every phase.
	OnPhase(ev PhaseEvent)

	// OnReorder is called with the launch order of a batch after the reorder
	// phase. order must not be retained.
	OnReorder(run uuid.UUID, batch int, order []uint32)
}

// NoopTraceSink discards all events.
type NoopTraceSink struct{}

func (NoopTraceSink) OnPhase(PhaseEvent)                 {}
func (NoopTraceSink) OnReorder(uuid.UUID, int, []uint32) {}
