package event

import "context"

// Store persists the journal.
type Store interface {
	// Append commits events atomically: either every event is stored or
	// none is. Sequence numbers must not already exist.
	Append(ctx context.Context, events []*Event) error

	// List returns events in ascending sequence order.
	List(ctx context.Context, opts ListOpts) ([]*Event, error)

	// LastSeq returns the highest stored sequence number, or 0 when empty.
	LastSeq(ctx context.Context) (uint64, error)
}

// ListOpts filters a journal query. Zero values mean "no filter".
type ListOpts struct {
	Kinds   []Kind
	ClaimID uint64
	Actor   string
	// AfterSeq returns only events with Seq > AfterSeq.
	AfterSeq uint64
	Limit    int
}

// Matches reports whether e passes every filter except Limit.
func (o ListOpts) Matches(e *Event) bool {
	if e.Seq <= o.AfterSeq {
		return false
	}
	if o.ClaimID != 0 && e.ClaimID != o.ClaimID {
		return false
	}
	if o.Actor != "" && string(e.Actor) != o.Actor {
		return false
	}
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}
