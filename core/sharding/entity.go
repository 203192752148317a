package sharding

// Entity is the view a behavior gets of the entity a message was addressed
// to. It is only valid for the duration of the behavior call.
type Entity[S any] interface {
	// ID returns the entity id the message was routed by.
	ID() string

	// State returns the current state, or ok=false when the entity has
	// no state yet (first message, or after Clear).
	State() (S, bool)

	// SetState replaces the entity state.
	SetState(s S)

	// Clear discards the entity state without stopping the entity.
	Clear()

	// Passivate stops the entity after the current message. State is
	// discarded; the next message starts it fresh.
	Passivate()
}

// cell holds the live state of one entity. It is only ever touched by the
// per-key scheduler task for its id, so it needs no locking.
type cell[S any] struct {
	id        string
	state     S
	hasState  bool
	passivate bool
}

func newCell[S any](id string) *cell[S] {
	return &cell[S]{id: id}
}

func (c *cell[S]) ID() string { return c.id }

func (c *cell[S]) State() (S, bool) { return c.state, c.hasState }

func (c *cell[S]) SetState(s S) {
	c.state = s
	c.hasState = true
}

func (c *cell[S]) Clear() {
	var zero S
	c.state = zero
	c.hasState = false
}

func (c *cell[S]) Passivate() { c.passivate = true }

var _ Entity[int] = (*cell[int])(nil)
