package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/leonletto/figlink/internal/protocol"
)

type outcome struct {
	result json.RawMessage
	err    error
}

// record is one in-flight request. It is settled by whichever caller removes
// it from the table, so it settles exactly once.
type record struct {
	id      string
	command protocol.Command
	gen     uint64
	after   time.Duration
	timer   *time.Timer
	armed   uint64 // bumped on every re-arm; stale timer callbacks are ignored
	done    chan outcome
}

// pendingTable maps request IDs to in-flight records.
type pendingTable struct {
	mu      sync.Mutex
	records map[string]*record
}

func newPendingTable() *pendingTable {
	return &pendingTable{records: make(map[string]*record)}
}

// add registers id and arms its timeout.
func (p *pendingTable) add(id string, cmd protocol.Command, gen uint64, after time.Duration) *record {
	rec := &record{
		id:      id,
		command: cmd,
		gen:     gen,
		done:    make(chan outcome, 1),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[id] = rec
	p.armLocked(rec, after)
	return rec
}

func (p *pendingTable) armLocked(rec *record, after time.Duration) {
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.armed++
	rec.after = after
	token := rec.armed
	rec.timer = time.AfterFunc(after, func() { p.expire(rec.id, token) })
}

func (p *pendingTable) expire(id string, token uint64) {
	p.mu.Lock()
	rec, ok := p.records[id]
	if !ok || rec.armed != token {
		p.mu.Unlock()
		return
	}
	delete(p.records, id)
	p.mu.Unlock()

	rec.done <- outcome{err: &TimeoutError{Command: rec.command, ID: id, After: rec.after}}
}

// take removes id and stops its timer. It returns nil if id is not pending.
func (p *pendingTable) take(id string) *record {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[id]
	if !ok {
		return nil
	}
	delete(p.records, id)
	rec.timer.Stop()
	return rec
}

// resolve settles id with a raw result. A missing id is a no-op.
func (p *pendingTable) resolve(id string, result json.RawMessage) bool {
	rec := p.take(id)
	if rec == nil {
		return false
	}
	rec.done <- outcome{result: result}
	return true
}

// reject settles id with an error built from the record. A missing id is a no-op.
func (p *pendingTable) reject(id string, build func(*record) error) bool {
	rec := p.take(id)
	if rec == nil {
		return false
	}
	rec.done <- outcome{err: build(rec)}
	return true
}

// drop removes id without settling it; used when the caller stops waiting.
func (p *pendingTable) drop(id string) {
	p.take(id)
}

// extend re-arms the timeout of id. It reports whether id was pending.
func (p *pendingTable) extend(id string, after time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[id]
	if !ok {
		return false
	}
	p.armLocked(rec, after)
	return true
}

// rejectUpTo rejects every record sent on connection generation gen or
// earlier and returns how many were rejected.
func (p *pendingTable) rejectUpTo(gen uint64, err error) int {
	p.mu.Lock()
	var settled []*record
	for id, rec := range p.records {
		if rec.gen <= gen {
			delete(p.records, id)
			rec.timer.Stop()
			settled = append(settled, rec)
		}
	}
	p.mu.Unlock()

	for _, rec := range settled {
		rec.done <- outcome{err: err}
	}
	return len(settled)
}

func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
