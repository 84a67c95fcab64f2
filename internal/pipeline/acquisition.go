package pipeline

import (
	"sync"

	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/manifest"
)

// HandleState tracks one link of a selection through acquisition and
// download. Exactly one HandleState exists per link descriptor.
type HandleState struct {
	Link     manifest.Link
	Handle   download.Handle
	Resolved bool
	Artifact *download.Artifact
	Err      error
}

func (h *HandleState) linkTerminal() bool     { return h.Resolved || h.Err != nil }
func (h *HandleState) downloadTerminal() bool { return h.Artifact != nil || h.Err != nil }

// WorkingAcquisition pairs a chosen version with the handles obtained for
// its links. It lives only for the duration of one run.
type WorkingAcquisition struct {
	Version manifest.Version

	mu      sync.Mutex
	handles []*HandleState
}

func newWorkingAcquisition(v manifest.Version) *WorkingAcquisition {
	w := &WorkingAcquisition{Version: v, handles: make([]*HandleState, len(v.Links))}
	for i, l := range v.Links {
		w.handles[i] = &HandleState{Link: l}
	}
	return w
}

// Len returns the number of handles, always the version's link count.
func (w *WorkingAcquisition) Len() int { return len(w.handles) }

func (w *WorkingAcquisition) resolved(i int, h download.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handles[i].Handle = h
	w.handles[i].Resolved = true
}

func (w *WorkingAcquisition) downloaded(i int, a *download.Artifact) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handles[i].Artifact = a
}

func (w *WorkingAcquisition) fail(i int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handles[i].Err == nil {
		w.handles[i].Err = err
	}
}

// Handles returns a copy of the current handle states.
func (w *WorkingAcquisition) Handles() []HandleState {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]HandleState, len(w.handles))
	for i, h := range w.handles {
		out[i] = *h
	}
	return out
}

// LinksPending counts links with neither a handle nor a failure.
func (w *WorkingAcquisition) LinksPending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, h := range w.handles {
		if !h.linkTerminal() {
			n++
		}
	}
	return n
}

// DownloadsPending counts handles that are neither downloaded nor failed.
func (w *WorkingAcquisition) DownloadsPending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, h := range w.handles {
		if !h.downloadTerminal() {
			n++
		}
	}
	return n
}

// Err returns the first handle failure, or nil.
func (w *WorkingAcquisition) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range w.handles {
		if h.Err != nil {
			return h.Err
		}
	}
	return nil
}

// Artifacts returns the downloaded artifacts in link order.
func (w *WorkingAcquisition) Artifacts() []*download.Artifact {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*download.Artifact
	for _, h := range w.handles {
		if h.Artifact != nil {
			out = append(out, h.Artifact)
		}
	}
	return out
}

// discard removes every staged artifact.
func (w *WorkingAcquisition) discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range w.handles {
		if h.Artifact != nil {
			_ = h.Artifact.Remove()
			h.Artifact = nil
		}
	}
}

// RequestID identifies one in-flight network operation.
type RequestID uint64

type request struct {
	sel  *selection
	link int
	sink Sink
}

// requestTable maps in-flight requests to the selection and sink they
// report to.
type requestTable struct {
	mu      sync.Mutex
	next    RequestID
	entries map[RequestID]request
}

func newRequestTable() *requestTable {
	return &requestTable{entries: map[RequestID]request{}}
}

func (t *requestTable) open(sel *selection, link int, sink Sink) RequestID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.entries[t.next] = request{sel: sel, link: link, sink: sink}
	return t.next
}

func (t *requestTable) lookup(id RequestID) (request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[id]
	return r, ok
}

func (t *requestTable) close(id RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of in-flight requests.
func (t *requestTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
