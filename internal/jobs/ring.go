package jobs

import "github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"

// eventRing is a fixed-capacity buffer of lifecycle events. Once full, the
// oldest events are overwritten. Not safe for concurrent use; the engine
// serializes access under its lock.
type eventRing struct {
	buf   []entity.JobEvent
	start int
	n     int
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]entity.JobEvent, capacity)}
}

func (r *eventRing) push(ev entity.JobEvent) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *eventRing) snapshot() []entity.JobEvent {
	out := make([]entity.JobEvent, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
