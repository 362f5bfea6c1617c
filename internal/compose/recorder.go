package compose

import (
	"fmt"
	"sync"
)

// RecordingAssembler keeps pages in memory. Image bytes are not retained.
type RecordingAssembler struct {
	mu     sync.Mutex
	pages  []Page
	closed bool

	// FailOn makes AddPage fail for the given page index.
	FailOn int
}

// NewRecordingAssembler creates an empty recorder.
func NewRecordingAssembler() *RecordingAssembler {
	return &RecordingAssembler{}
}

// AddPage records p.
func (r *RecordingAssembler) AddPage(p Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("assembler closed")
	}
	if r.FailOn != 0 && p.Index == r.FailOn {
		return fmt.Errorf("page %d: add failed", p.Index)
	}
	if p.Image != nil {
		p.Image = []byte{}
	}
	r.pages = append(r.pages, p)
	return nil
}

// Close marks the recorder closed.
func (r *RecordingAssembler) Close() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return len(r.pages), nil
}

// Pages returns recorded pages in order.
func (r *RecordingAssembler) Pages() []Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Page(nil), r.pages...)
}

// Closed reports whether Close was called.
func (r *RecordingAssembler) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var _ Assembler = (*RecordingAssembler)(nil)
