package community

import (
	"context"
	"sync"
	"testing"
	"time"
)

// sinkTransport counts frames written to it.
type sinkTransport struct {
	mu     sync.Mutex
	frames [][]byte
}

func newSinkTransport() *sinkTransport { return &sinkTransport{} }

func (s *sinkTransport) Write(_ context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, p)
	return nil
}

func (s *sinkTransport) Ping(context.Context) error { return nil }
func (s *sinkTransport) Close(string) error         { return nil }

func (s *sinkTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// waitCount polls until at least want frames arrived or a deadline passes.
func (s *sinkTransport) waitCount(t *testing.T, want int) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n := s.count(); n >= want {
			return n
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.count()
}
