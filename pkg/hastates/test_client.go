package hastates

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TestStatesClient is an in-memory Client for tests. Set Fail to make every
// call return an error, simulating an unreachable hub.
type TestStatesClient struct {
	mu      sync.Mutex
	states  []EntityState
	history map[string][]EntityState
	Fail    bool
	calls   int
}

func CreateTestStatesClient(states []EntityState) *TestStatesClient {
	return &TestStatesClient{
		states:  states,
		history: map[string][]EntityState{},
	}
}

func (c *TestStatesClient) SetStates(states []EntityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = states
}

func (c *TestStatesClient) SetHistory(entityId string, states []EntityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[entityId] = states
}

func (c *TestStatesClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *TestStatesClient) States(_ context.Context) ([]EntityState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Fail {
		return nil, errors.New("hub unreachable")
	}
	out := make([]EntityState, len(c.states))
	copy(out, c.states)
	return out, nil
}

func (c *TestStatesClient) History(_ context.Context, entityId string, _, _ time.Time) ([]EntityState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return nil, errors.New("hub unreachable")
	}
	return c.history[entityId], nil
}

func (c *TestStatesClient) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return errors.New("hub unreachable")
	}
	return nil
}
