package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/lien/event"
	"github.com/xraph/lien/id"
	"github.com/xraph/lien/types"
)

// ==================== Operation models ====================

// operationModel holds every event of one controller operation. A single
// document insert is atomic, which makes the whole batch atomic. Kinds,
// ClaimIDs and Actor duplicate event fields so queries can be narrowed by
// index before events are filtered one by one.
type operationModel struct {
	grove.BaseModel `grove:"table:lien_operations"`

	ID        string       `grove:"id,pk"      bson:"_id"`
	FirstSeq  int64        `grove:"first_seq"  bson:"first_seq"`
	LastSeq   int64        `grove:"last_seq"   bson:"last_seq"`
	Actor     string       `grove:"actor"      bson:"actor"`
	Kinds     []string     `grove:"kinds"      bson:"kinds"`
	ClaimIDs  []int64      `grove:"claim_ids"  bson:"claim_ids"`
	Events    []eventModel `grove:"events"     bson:"events"`
	CreatedAt time.Time    `grove:"created_at" bson:"created_at"`
}

// eventModel stores unsigned quantities bit-for-bit as int64; BSON has no
// unsigned 64-bit integer.
type eventModel struct {
	Seq       int64     `bson:"seq"`
	ID        string    `bson:"id"`
	Kind      string    `bson:"kind"`
	ClaimID   int64     `bson:"claim_id,omitempty"`
	Actor     string    `bson:"actor"`
	From      string    `bson:"from,omitempty"`
	To        string    `bson:"to,omitempty"`
	Amount    int64     `bson:"amount,omitempty"`
	FaceValue int64     `bson:"face_value,omitempty"`
	Maturity  int64     `bson:"maturity,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func toOperationModel(events []*event.Event) *operationModel {
	first, last := events[0], events[len(events)-1]
	m := &operationModel{
		ID:        first.OpID.String(),
		FirstSeq:  int64(first.Seq),
		LastSeq:   int64(last.Seq),
		Actor:     string(first.Actor),
		Events:    make([]eventModel, len(events)),
		CreatedAt: first.CreatedAt,
	}

	kinds := map[event.Kind]bool{}
	claims := map[uint64]bool{}
	for i, e := range events {
		m.Events[i] = eventModel{
			Seq:       int64(e.Seq),
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			ClaimID:   int64(e.ClaimID),
			Actor:     string(e.Actor),
			From:      string(e.From),
			To:        string(e.To),
			Amount:    int64(e.Amount),
			FaceValue: int64(e.FaceValue),
			Maturity:  int64(e.Maturity),
			CreatedAt: e.CreatedAt,
		}
		if !kinds[e.Kind] {
			kinds[e.Kind] = true
			m.Kinds = append(m.Kinds, string(e.Kind))
		}
		if e.ClaimID != 0 && !claims[e.ClaimID] {
			claims[e.ClaimID] = true
			m.ClaimIDs = append(m.ClaimIDs, int64(e.ClaimID))
		}
	}
	return m
}

func fromOperationModel(m *operationModel) ([]*event.Event, error) {
	opID, err := id.ParseOperationID(m.ID)
	if err != nil {
		return nil, err
	}

	out := make([]*event.Event, len(m.Events))
	for i := range m.Events {
		em := &m.Events[i]
		evtID, err := id.ParseEventID(em.ID)
		if err != nil {
			return nil, err
		}
		out[i] = &event.Event{
			Seq:       uint64(em.Seq),
			ID:        evtID,
			OpID:      opID,
			Kind:      event.Kind(em.Kind),
			ClaimID:   uint64(em.ClaimID),
			Actor:     types.Address(em.Actor),
			From:      types.Address(em.From),
			To:        types.Address(em.To),
			Amount:    uint64(em.Amount),
			FaceValue: uint64(em.FaceValue),
			Maturity:  uint64(em.Maturity),
			CreatedAt: em.CreatedAt.UTC(),
		}
	}
	return out, nil
}
