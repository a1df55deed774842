package upstream

import "sync"

// startRegistry single-flights start/resume calls. It is owned by the
// client instance, not a process-wide map, so tests can scope it.
type startRegistry struct {
	mu    sync.Mutex
	calls map[string]*startCall
}

type startCall struct {
	done chan struct{}
	res  *StartResult
	err  error
}

func newStartRegistry() *startRegistry {
	return &startRegistry{calls: make(map[string]*startCall)}
}

// do runs fn for the key unless a call is already pending, in which case the
// caller blocks on the pending result instead of issuing a duplicate
// request. The entry is removed once the call resolves, so a later retry
// issues a fresh request.
func (r *startRegistry) do(key string, fn func() (*StartResult, error)) (*StartResult, error) {
	r.mu.Lock()
	if existing, ok := r.calls[key]; ok {
		r.mu.Unlock()
		<-existing.done
		return existing.res, existing.err
	}
	call := &startCall{done: make(chan struct{})}
	r.calls[key] = call
	r.mu.Unlock()

	call.res, call.err = fn()

	r.mu.Lock()
	delete(r.calls, key)
	r.mu.Unlock()
	close(call.done)

	return call.res, call.err
}
