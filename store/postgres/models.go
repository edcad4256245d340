package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/id"
	"github.com/xraph/lien/types"
)

// eventModel is one journal row. Unsigned quantities are stored in BIGINT
// columns by reinterpreting their bits, which round-trips every uint64 and
// keeps equality filters exact.
type eventModel struct {
	grove.BaseModel `grove:"table:lien_events"`

	Seq       int64     `grove:"seq,pk"`
	ID        string    `grove:"id"`
	OpID      string    `grove:"op_id"`
	Kind      string    `grove:"kind"`
	ClaimID   int64     `grove:"claim_id"`
	Actor     string    `grove:"actor"`
	FromAddr  string    `grove:"from_addr"`
	ToAddr    string    `grove:"to_addr"`
	Amount    int64     `grove:"amount"`
	FaceValue int64     `grove:"face_value"`
	Maturity  int64     `grove:"maturity"`
	CreatedAt time.Time `grove:"created_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		Seq:       int64(e.Seq),
		ID:        e.ID.String(),
		OpID:      e.OpID.String(),
		Kind:      string(e.Kind),
		ClaimID:   int64(e.ClaimID),
		Actor:     string(e.Actor),
		FromAddr:  string(e.From),
		ToAddr:    string(e.To),
		Amount:    int64(e.Amount),
		FaceValue: int64(e.FaceValue),
		Maturity:  int64(e.Maturity),
		CreatedAt: e.CreatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	opID, err := id.ParseOperationID(m.OpID)
	if err != nil {
		return nil, err
	}

	return &event.Event{
		Seq:       uint64(m.Seq),
		ID:        evtID,
		OpID:      opID,
		Kind:      event.Kind(m.Kind),
		ClaimID:   uint64(m.ClaimID),
		Actor:     types.Address(m.Actor),
		From:      types.Address(m.FromAddr),
		To:        types.Address(m.ToAddr),
		Amount:    uint64(m.Amount),
		FaceValue: uint64(m.FaceValue),
		Maturity:  uint64(m.Maturity),
		CreatedAt: m.CreatedAt,
	}, nil
}
