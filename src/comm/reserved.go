package comm

import (
	"sync"
	"sync/atomic"
)

// RequestKey identifies a request across connections and retries: ClientID is
// the compact id of the sending worker, and RequestID is the sender-assigned
// sequence number of the request.
type RequestKey struct {
	ClientID  uint32
	RequestID uint64
}

type requestRecord struct {
	done chan struct{}
	err  error
}

// ReservedRequests guarantees that each request, identified by its
// RequestKey, is executed at most once on this worker, no matter how many
// times the sender retries it over new connections.
//
// The first caller to Execute a key reserves it and runs the handler; callers
// that arrive with the same key while the handler runs block until it
// completes, and every caller receives the recorded outcome. A failed handler
// is not retried under the same key: the error is the key's outcome, and a
// sender that wants another attempt must allocate a new request id.
//
// Records are retained for the lifetime of the worker, which is what makes
// retries over reconnections safe.
type ReservedRequests struct {
	l       sync.Mutex
	records map[RequestKey]*requestRecord

	dedupHits uint64
}

// NewReservedRequests ...
func NewReservedRequests() *ReservedRequests {
	return &ReservedRequests{
		records: make(map[RequestKey]*requestRecord),
	}
}

// Execute runs the handler if key has never been executed, and returns the
// key's outcome. The second return value reports whether this call was the
// one that ran the handler.
func (r *ReservedRequests) Execute(key RequestKey, handler func() error) (error, bool) {
	r.l.Lock()

	if rec, ok := r.records[key]; ok {
		r.l.Unlock()

		atomic.AddUint64(&r.dedupHits, 1)

		// wait for the reserving caller to finish, then share its outcome
		<-rec.done

		return rec.err, false
	}

	rec := &requestRecord{done: make(chan struct{})}
	r.records[key] = rec

	r.l.Unlock()

	rec.err = handler()
	close(rec.done)

	return rec.err, true
}

// Len returns the number of recorded request keys.
func (r *ReservedRequests) Len() int {
	r.l.Lock()
	defer r.l.Unlock()

	return len(r.records)
}

// DedupHits returns how many Execute calls were deduplicated against an
// existing record.
func (r *ReservedRequests) DedupHits() uint64 {
	return atomic.LoadUint64(&r.dedupHits)
}
