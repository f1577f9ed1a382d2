package registry

import (
	"context"
	"sync"
)

// Memory is a Persister that keeps state in process. It backs tests and
// dry runs.
type Memory struct {
	mu   sync.Mutex
	snap Snapshot
	// Fail, when non-nil, is returned by RecordMint.
	Fail error
}

// NewMemory returns an empty in-memory persister.
func NewMemory() *Memory {
	return &Memory{snap: Snapshot{Lookup: map[string]string{}}}
}

// LoadRegistry implements Persister.
func (m *Memory) LoadRegistry(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{Lookup: make(map[string]string, len(m.snap.Lookup)), Counter: m.snap.Counter}
	for k, v := range m.snap.Lookup {
		out.Lookup[k] = v
	}
	return out, nil
}

// RecordMint implements Persister.
func (m *Memory) RecordMint(_ context.Context, token, remoteID string, counter int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.snap.Lookup[token] = remoteID
	if counter > m.snap.Counter {
		m.snap.Counter = counter
	}
	return nil
}
