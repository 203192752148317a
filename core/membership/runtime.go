package membership

import (
	"context"
	"errors"
)

var (
	// ErrNotJoined is returned when an operation requires cluster
	// membership before Join succeeded.
	ErrNotJoined = errors.New("membership: not joined")
)

// Subscription is a registered membership event listener.
type Subscription interface {
	Unsubscribe() error
}

// Runtime is the membership capability of the underlying substrate. The
// bridge calls into it; it does not implement membership resolution itself.
//
// Listeners passed to Subscribe are invoked from the runtime's own delivery
// goroutine, one event at a time, in emission order. A listener that blocks
// stalls that delivery path.
type Runtime interface {
	// Join instructs the local node to join the cluster via the given
	// seeds. It completes once the join request was issued, not once
	// membership is confirmed.
	Join(ctx context.Context, seeds []Address) error

	// Leave requests graceful removal of the local node.
	Leave(ctx context.Context) error

	// State returns the current membership snapshot. Fails with
	// ErrNotJoined before Join.
	State(ctx context.Context) (ClusterState, error)

	// Subscribe registers a membership event listener.
	Subscribe(listener func(Event)) (Subscription, error)
}
