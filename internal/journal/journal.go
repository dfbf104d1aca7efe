// Package journal collects the economy's emitted events and delivers them to
// configured sinks for off-chain reconciliation.
package journal

import (
	"sync"

	"liquidityForge/internal/model"
)

// Sink is a destination for emitted events.
type Sink interface {
	PutEventBatch(events []model.EconomyEvent) error
}

// Journal assigns sequence numbers and buffers events until flushed.
type Journal struct {
	mu      sync.Mutex
	nextSeq uint64
	pending []model.EconomyEvent
	sinks   []Sink
}

// New creates a journal over the given sinks. Sinks may be empty; events are
// still sequenced and readable from the buffer.
func New(sinks ...Sink) *Journal {
	return &Journal{nextSeq: 1, sinks: sinks}
}

// Emit sequences an event and appends it to the pending buffer.
func (j *Journal) Emit(timestamp int64, name, emitter string, decoded interface{}, meta *model.PoolMeta) model.EconomyEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	evt := model.EconomyEvent{
		Seq:       j.nextSeq,
		Timestamp: timestamp,
		EventName: name,
		Emitter:   emitter,
		Decoded:   decoded,
		PoolMeta:  meta,
	}
	j.nextSeq++
	j.pending = append(j.pending, evt)
	return evt
}

// Flush delivers the pending buffer to every sink and clears it. On sink
// failure the buffer is kept so a retry does not drop events.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.pending) == 0 {
		return nil
	}
	for _, sink := range j.sinks {
		if err := sink.PutEventBatch(j.pending); err != nil {
			return err
		}
	}
	j.pending = nil
	return nil
}

// Pending returns a copy of the undelivered events.
func (j *Journal) Pending() []model.EconomyEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.EconomyEvent, len(j.pending))
	copy(out, j.pending)
	return out
}
