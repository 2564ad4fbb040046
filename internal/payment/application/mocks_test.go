package application

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProvider struct {
	mu       sync.Mutex
	resp     ProviderResponse
	err      error
	requests []Request
	// cardSeen captures the card number as it was at submission time.
	cardSeen string
}

func (m *mockProvider) Submit(_ context.Context, req Request) (ProviderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ci, ok := req.Intent.(domain.CardIntent); ok && ci.Card != nil {
		m.cardSeen = ci.Card.Number
	}
	m.requests = append(m.requests, req)
	return m.resp, m.err
}

func (m *mockProvider) Status(context.Context, string) (string, error) {
	return "", nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockAttempts struct {
	mu       sync.Mutex
	attempts []domain.Attempt
}

func (m *mockAttempts) Record(_ context.Context, a domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockAttempts) all() []domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Attempt(nil), m.attempts...)
}

// scriptedStatus returns statuses in order, repeating the last one.
type scriptedStatus struct {
	mu       sync.Mutex
	statuses []string
	calls    int
	err      error
}

func (s *scriptedStatus) Status(ctx context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.statuses) == 0 {
		return domain.StatusPending, nil
	}
	i := s.calls - 1
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

func (s *scriptedStatus) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
