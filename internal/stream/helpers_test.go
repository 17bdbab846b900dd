package stream

import (
	"context"
	"sync"

	"marketview/internal/domain"
)

// fakeStream is an in-memory domain.Stream driven by tests.
type fakeStream struct {
	events chan domain.StreamEvent

	mu     sync.Mutex
	done   chan struct{}
	err    error
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan domain.StreamEvent, 64),
		done:   make(chan struct{}),
	}
}

func (s *fakeStream) Events() <-chan domain.StreamEvent { return s.events }
func (s *fakeStream) Done() <-chan struct{}             { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// failRemotely simulates an abnormal transport close.
func (s *fakeStream) failRemotely(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.err = err
		close(s.done)
	}
}

func (s *fakeStream) push(ev domain.StreamEvent) {
	s.events <- ev
}

// fakeFactory records every open attempt and hands out fake streams.
// With hang set, OpenStream blocks until the dial context expires,
// simulating a connect that never completes.
type fakeFactory struct {
	mu       sync.Mutex
	hang     bool
	failErr  error
	opened   []*fakeStream
	attempts []openAttempt
}

type openAttempt struct {
	feed    domain.FeedType
	market  domain.Market
	symbols []string
}

func (f *fakeFactory) OpenStream(ctx context.Context, feed domain.FeedType, market domain.Market, symbols []string) (domain.Stream, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, openAttempt{feed: feed, market: market, symbols: symbols})
	hang, failErr := f.hang, f.failErr
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failErr != nil {
		return nil, failErr
	}

	s := newFakeStream()
	f.mu.Lock()
	f.opened = append(f.opened, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeFactory) lastAttempt() openAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[len(f.attempts)-1]
}

func (f *fakeFactory) liveStreams() []*fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live []*fakeStream
	for _, s := range f.opened {
		s.mu.Lock()
		if !s.closed {
			live = append(live, s)
		}
		s.mu.Unlock()
	}
	return live
}

// fakeSnapshots returns canned seeds, or an error when set. With a
// block channel set, fetches stall until the test closes it.
type fakeSnapshots struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	fetches [][]string
}

func (f *fakeSnapshots) FetchSnapshot(ctx context.Context, symbols []string) ([]domain.SymbolSnapshot, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, symbols)
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	seeds := make([]domain.SymbolSnapshot, len(symbols))
	for i, s := range symbols {
		seeds[i] = domain.SymbolSnapshot{Symbol: s}
	}
	return seeds, nil
}

func (f *fakeSnapshots) blockOn(ch chan struct{}) {
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
}

func (f *fakeSnapshots) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}
