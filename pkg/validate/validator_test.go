package validate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

// fakeClient answers each Check from its script and can hold requests open
// until released.
type fakeClient struct {
	mu      sync.Mutex
	result  *Result
	err     error
	calls   atomic.Int64
	block   chan struct{}
	pending atomic.Int64
}

func (f *fakeClient) Check(ctx context.Context, code string) (*Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		f.pending.Add(1)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeClient) respond(result *Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
	f.err = err
}

func collectOutcomes() (func(Outcome), func() []Outcome) {
	mu := sync.Mutex{}
	got := []Outcome{}
	emit := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, o)
	}
	snapshot := func() []Outcome {
		mu.Lock()
		defer mu.Unlock()
		return append([]Outcome{}, got...)
	}
	return emit, snapshot
}

func rejection(status Status, message string) *Result {
	return &Result{Status: status, Message: message}
}

func TestSubmit_DedupConsecutiveReads(t *testing.T) {
	client := &fakeClient{}
	client.respond(rejection(StatusNotFound, "no such ticket"), nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	// The same code delivered on N consecutive frames issues exactly one
	// request.
	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 10; i++ {
		v.Submit("TICKET-1")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), client.calls.Load())
	assert.Len(t, snapshot(), 1)
}

func TestSubmit_DropWhileInFlight(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.respond(&Result{Status: StatusValid, Message: "ok"}, nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	v.Submit("TICKET-42")
	require.Eventually(t, func() bool { return client.pending.Load() == 1 }, time.Second, time.Millisecond)

	// Duplicate while the first request is still open: dropped.
	v.Submit("TICKET-42")
	assert.Equal(t, int64(1), client.calls.Load())

	close(client.block)
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)
	require.NotNil(t, snapshot()[0].Result)
	assert.Equal(t, StatusValid, snapshot()[0].Result.Status)

	// A fresh session accepts the same code again.
	v.Reset()
	v.Submit("TICKET-42")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(2), client.calls.Load())
}

func TestSubmit_LatchesAfterSuccess(t *testing.T) {
	client := &fakeClient{}
	client.respond(&Result{Status: StatusValid, Message: "ok"}, nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)

	// After a terminal success nothing is accepted, not even new codes,
	// until the host explicitly resumes.
	v.Submit("TICKET-2")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), client.calls.Load())

	v.Resume()
	v.Submit("TICKET-2")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
}

func TestSubmit_RejectionAllowsNextTicketImmediately(t *testing.T) {
	client := &fakeClient{}
	client.respond(rejection(StatusAlreadyUsed, "Ticket already redeemed"), nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)
	require.NotNil(t, snapshot()[0].Result)
	assert.Equal(t, StatusAlreadyUsed, snapshot()[0].Result.Status)

	// A different ticket right behind it is accepted with no delay.
	v.Submit("TICKET-2")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
}

func TestSubmit_SameRejectedCodeWaitsForRescanDelay(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	client := &fakeClient{}
	client.respond(rejection(StatusExpired, "expired"), nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit, WithRescanDelay(2*time.Second), withClock(clock))

	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)

	// Still inside the delay: the same physical ticket held in front of
	// the lens does not refire.
	v.Submit("TICKET-1")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), client.calls.Load())

	now = now.Add(3 * time.Second)
	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
}

func TestSubmit_TransportErrorSurfacedOnce(t *testing.T) {
	client := &fakeClient{}
	client.respond(nil, errors.New("connection refused"))
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, time.Millisecond)
	outcome := snapshot()[0]
	assert.Nil(t, outcome.Result)
	assert.ErrorContains(t, outcome.Err, "connection refused")

	// Scanning resumes: a different code goes straight through.
	client.respond(rejection(StatusNotFound, "no such ticket"), nil)
	v.Submit("TICKET-2")
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
}

func TestSubmit_OutcomeCompleteness(t *testing.T) {
	client := &fakeClient{}
	client.respond(rejection(StatusBlocked, "blocked"), nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	codes := []string{"A", "B", "C", "D"}
	for _, code := range codes {
		v.Submit(code)
		require.Eventually(t, func() bool {
			outcomes := snapshot()
			return len(outcomes) > 0 && outcomes[len(outcomes)-1].Code == code
		}, time.Second, time.Millisecond)
	}

	// Exactly one outcome per accepted submission, in order.
	outcomes := snapshot()
	require.Len(t, outcomes, len(codes))
	for i, code := range codes {
		assert.Equal(t, code, outcomes[i].Code)
		assert.NotNil(t, outcomes[i].Result)
	}
}

func TestClose_DiscardsLateOutcome(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.respond(&Result{Status: StatusValid, Message: "ok"}, nil)
	emit, snapshot := collectOutcomes()
	v := NewValidator(context.Background(), client, emit)

	v.Submit("TICKET-1")
	require.Eventually(t, func() bool { return client.pending.Load() == 1 }, time.Second, time.Millisecond)

	v.Close()
	close(client.block)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, snapshot())
}
