package sensor

import "sync"

// mockReadings is the fixed sample table used when no sensor hardware is
// attached. Values cover a plausible indoor range.
var mockReadings = []Reading{
	{25.55, 60.01, 300},
	{26.22, 58.55, 450},
	{24.82, 62.50, 280},
	{27.07, 55.30, 600},
	{23.50, 65.20, 200},
	{25.08, 60.50, 350},
	{26.50, 57.05, 500},
	{24.07, 63.50, 250},
	{28.04, 52.04, 700},
	{22.01, 68.04, 150},
	{25.80, 59.01, 400},
	{26.80, 56.50, 520},
	{24.50, 64.08, 230},
	{27.50, 54.01, 650},
	{23.04, 66.50, 180},
	{25.20, 60.80, 370},
	{26.08, 58.05, 480},
	{24.20, 62.50, 260},
	{27.20, 53.50, 620},
	{22.50, 67.02, 160},
}

// MockSource cycles through a fixed table of readings. Used in the
// no-hardware configuration and in tests.
type MockSource struct {
	mu  sync.Mutex
	idx int
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Read() (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := mockReadings[m.idx]
	m.idx = (m.idx + 1) % len(mockReadings)
	return r, nil
}

func (m *MockSource) Close() error { return nil }
