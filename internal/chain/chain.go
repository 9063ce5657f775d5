// Package chain implements SignalChain, the mutable, append-only provenance
// token that travels with every value published on a signal's value topic.
package chain

import (
	"encoding/json"
	"fmt"
)

// UnsetCounter denotes an event counter left deliberately unspecified, as
// produced by SignalGraph.AllPaths before any signal has actually traversed
// the chain.
const UnsetCounter = -1

// Entry is one (signalId, eventCounter) pair recorded in a SignalChain.
type Entry struct {
	ID      string `json:"id"`
	Counter int    `json:"counter"`
}

// SignalChain is a mutable, append-only sequence of Entry values. The zero
// value is an empty chain ready to use.
type SignalChain struct {
	entries []Entry
}

// New returns an empty SignalChain.
func New() *SignalChain {
	return &SignalChain{}
}

// Chain appends an entry for id with the given counter (UnsetCounter is
// valid) and returns the receiver for chaining calls.
func (c *SignalChain) Chain(id string, counter int) *SignalChain {
	c.entries = append(c.entries, Entry{ID: id, Counter: counter})
	return c
}

// Contains reports whether id appears anywhere in the chain.
func (c *SignalChain) Contains(id string) bool {
	for _, e := range c.entries {
		if e.ID == id {
			return true
		}
	}

	return false
}

// Len returns the number of entries in the chain.
func (c *SignalChain) Len() int {
	return len(c.entries)
}

// GetLast returns the id of the last entry, or "" if the chain is empty.
func (c *SignalChain) GetLast() string {
	if len(c.entries) == 0 {
		return ""
	}

	return c.entries[len(c.entries)-1].ID
}

// GetEventCounterFor scans from the head of the chain and returns the
// counter of the first entry matching id, or UnsetCounter if id does not
// appear.
func (c *SignalChain) GetEventCounterFor(id string) int {
	for _, e := range c.entries {
		if e.ID == id {
			return e.Counter
		}
	}

	return UnsetCounter
}

// NextSignal returns the id of the entry immediately following the first
// occurrence of id, and true if such an entry exists. It returns ("", false)
// when id is absent or is the chain's last entry.
func (c *SignalChain) NextSignal(id string) (string, bool) {
	for i, e := range c.entries {
		if e.ID == id {
			if i+1 < len(c.entries) {
				return c.entries[i+1].ID, true
			}

			return "", false
		}
	}

	return "", false
}

// GetConflicts returns every id present in both chains whose NextSignal
// differs between the two chains. Either side may have no successor;
// divergence counts as a conflict only when at least one side has a
// successor. Ids whose successors agree (including both absent) are not
// conflicts. The result is symmetric: a.GetConflicts(b) and b.GetConflicts(a)
// contain the same set of ids.
func (c *SignalChain) GetConflicts(other *SignalChain) []string {
	conflicts := make([]string, 0)
	seen := make(map[string]bool)

	for _, e := range c.entries {
		if seen[e.ID] || !other.Contains(e.ID) {
			continue
		}

		seen[e.ID] = true

		nextA, okA := c.NextSignal(e.ID)
		nextB, okB := other.NextSignal(e.ID)

		if !okA && !okB {
			continue
		}

		if okA != okB || nextA != nextB {
			conflicts = append(conflicts, e.ID)
		}
	}

	return conflicts
}

// Clone returns an independent copy of the chain; mutating the clone never
// affects the receiver, and vice versa.
func (c *SignalChain) Clone() *SignalChain {
	clone := &SignalChain{entries: make([]Entry, len(c.entries))}
	copy(clone.entries, c.entries)

	return clone
}

// Equal reports whether two chains hold the same sequence of entries.
func (c *SignalChain) Equal(other *SignalChain) bool {
	if other == nil {
		return false
	}

	if len(c.entries) != len(other.entries) {
		return false
	}

	for i, e := range c.entries {
		if e != other.entries[i] {
			return false
		}
	}

	return true
}

// wireChain is the JSON wire shape: {"entries":[{"id":…,"counter":…}, …]}.
type wireChain struct {
	Entries []Entry `json:"entries"`
}

// ToJSON serializes the chain to its wire representation.
func (c *SignalChain) ToJSON() ([]byte, error) {
	entries := c.entries
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.Marshal(wireChain{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("chain: marshal: %w", err)
	}

	return data, nil
}

// FromJSON restores a SignalChain from its wire representation.
func FromJSON(data []byte) (*SignalChain, error) {
	var w wireChain
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("chain: unmarshal: %w", err)
	}

	return &SignalChain{entries: w.Entries}, nil
}

// MarshalJSON implements json.Marshaler using the wire representation.
func (c *SignalChain) MarshalJSON() ([]byte, error) {
	return c.ToJSON()
}

// UnmarshalJSON implements json.Unmarshaler using the wire representation.
func (c *SignalChain) UnmarshalJSON(data []byte) error {
	restored, err := FromJSON(data)
	if err != nil {
		return err
	}

	c.entries = restored.entries

	return nil
}
