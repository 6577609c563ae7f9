package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/model"
)

// Batch is a group of consumed records flushed together.
//
// Records holds every polled record, including undecodable ones, so their
// offsets are committed. Events holds only the decoded ones.
type Batch struct {
	ID       uuid.UUID
	Events   []model.TickerEvent
	Records  []broker.Record
	OpenedAt time.Time
}

func newBatch(capacity int) Batch {
	return Batch{
		ID:      uuid.New(),
		Events:  make([]model.TickerEvent, 0, capacity),
		Records: make([]broker.Record, 0, capacity),
	}
}

// Empty reports whether the batch holds no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}

// Skipped is the number of records that could not be decoded.
func (b *Batch) Skipped() int {
	return len(b.Records) - len(b.Events)
}
