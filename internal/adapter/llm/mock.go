package llm

import (
	"context"
	"sync"

	"labelscan/internal/port"
)

// MockModel returns canned answers keyed by request purpose. It records
// every request it receives.
type MockModel struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	requests  []port.GenerateRequest
}

func NewMockModel(responses map[string]string) *MockModel {
	if responses == nil {
		responses = make(map[string]string)
	}
	return &MockModel{
		responses: responses,
		errs:      make(map[string]error),
	}
}

// NewOfflineModel answers with a fixed ingredient list and a neutral
// report, for running the scanner without network access.
func NewOfflineModel() *MockModel {
	return NewMockModel(map[string]string{
		"extract": `["Water", "Sugar", "Citric Acid", "Natural Flavors"]`,
		"analyze": `{"score": 5, "verdict": "Moderate Risk", "report": "Offline mode: this report was not produced by a model.", "ingredients_detail": []}`,
	})
}

// FailWith makes requests with the given purpose return err.
func (m *MockModel) FailWith(purpose string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[purpose] = err
}

func (m *MockModel) Generate(_ context.Context, req port.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if err := m.errs[req.Purpose]; err != nil {
		return "", err
	}
	return m.responses[req.Purpose], nil
}

func (m *MockModel) ModelName() string {
	return "mock"
}

// Requests returns a copy of the requests received so far.
func (m *MockModel) Requests() []port.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]port.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
