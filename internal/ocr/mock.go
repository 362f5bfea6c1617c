package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// MockEngineName is the registry name of MockEngine.
const MockEngineName = "mock"

// MockEngine is an Engine for testing.
type MockEngine struct {
	// Configurable behavior
	Latency    func(page int) time.Duration
	Tokens     func(page int) []WordToken
	FailPages  map[int]bool
	ProbeError error

	// State
	calls   atomic.Int64
	mu      sync.Mutex
	perPage map[int]int
}

// NewMockEngine creates a mock that returns a single confident word per page.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Tokens: func(page int) []WordToken {
			return []WordToken{{
				Text:       fmt.Sprintf("page%d", page),
				BBox:       image.Rect(100, 100, 300, 140),
				Confidence: 95,
				Block:      1, Paragraph: 1, Line: 1, Word: 1,
			}}
		},
		FailPages: make(map[int]bool),
		perPage:   make(map[int]int),
	}
}

// Name returns the engine identifier.
func (m *MockEngine) Name() string {
	return MockEngineName
}

// Probe returns ProbeError.
func (m *MockEngine) Probe(ctx context.Context) error {
	return m.ProbeError
}

// Recognize returns the configured tokens after the configured latency.
func (m *MockEngine) Recognize(ctx context.Context, img Image) ([]WordToken, error) {
	m.calls.Add(1)
	m.mu.Lock()
	if m.perPage == nil {
		m.perPage = make(map[int]int)
	}
	m.perPage[img.Page]++
	m.mu.Unlock()

	if m.Latency != nil {
		select {
		case <-time.After(m.Latency(img.Page)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.FailPages[img.Page] {
		return nil, fmt.Errorf("%w: page %d: mock engine configured to fail", ErrRecognize, img.Page)
	}
	if m.Tokens == nil {
		return nil, nil
	}
	return m.Tokens(img.Page), nil
}

// Calls returns the total number of Recognize calls.
func (m *MockEngine) Calls() int {
	return int(m.calls.Load())
}

// CallsFor returns how many times page was recognized.
func (m *MockEngine) CallsFor(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perPage[page]
}

var _ Engine = (*MockEngine)(nil)
