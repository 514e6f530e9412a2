// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package comm

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/bureau-foundation/mapview/lib/version"
)

// Store holds the synchronized fields of one comm and publishes changes
// to a [Sink]. Local mutation and publication are separate steps: Set
// stages a change, Commit publishes every staged change as one update.
// Channel fields bypass staging; Emit publishes immediately so two
// commands can never collapse into one update.
//
// Store is safe for concurrent use. Commit and Emit hold the store lock
// while calling the sink, so the sink observes updates in sequence
// order.
type Store struct {
	commID   string
	sink     Sink
	channels map[string]bool

	mu       sync.Mutex
	values   map[string]any
	pending  []string
	sequence uint64
}

// NewStore creates a store for commID with the given initial values.
// Fields named in channels always re-deliver on Emit. A nil sink
// discards.
func NewStore(commID string, sink Sink, initial map[string]any, channels ...string) *Store {
	if sink == nil {
		sink = Discard
	}
	store := &Store{
		commID:   commID,
		sink:     sink,
		channels: make(map[string]bool, len(channels)),
		values:   maps.Clone(initial),
	}
	if store.values == nil {
		store.values = make(map[string]any)
	}
	for _, name := range channels {
		store.channels[name] = true
	}
	return store
}

// CommID returns the comm identifier the store publishes under.
func (s *Store) CommID() string { return s.commID }

// IsChannel reports whether name is a channel field.
func (s *Store) IsChannel(name string) bool { return s.channels[name] }

// Get returns the current value of name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[name]
	return value, ok
}

// String returns the current value of name if it is a string, or "".
func (s *Store) String(name string) string {
	value, _ := s.Get(name)
	text, _ := value.(string)
	return text
}

// Sequence returns the sequence number of the last published update.
func (s *Store) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Set stages a change to a state field. Setting a field to a value equal
// to its current one stages nothing and returns false. Staged changes
// are invisible to views until Commit.
func (s *Store) Set(name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(name, value)
}

func (s *Store) setLocked(name string, value any) bool {
	if current, ok := s.values[name]; ok && reflect.DeepEqual(current, value) {
		return false
	}
	s.values[name] = value
	if !slices.Contains(s.pending, name) {
		s.pending = append(s.pending, name)
	}
	return true
}

// Commit publishes every staged change as a single update. Fields
// staged together are delivered together. Commit with nothing staged
// publishes nothing.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	state := make(map[string]any, len(s.pending))
	for _, name := range s.pending {
		state[name] = s.values[name]
	}
	s.pending = s.pending[:0]
	return s.publishLocked(state)
}

// Emit writes value to a channel field and publishes it at once as its
// own update, after first committing anything already staged so the
// view sees changes in the order they were made. Emit always publishes,
// even when value equals the field's current value.
func (s *Store) Emit(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked(); err != nil {
		return err
	}
	s.values[name] = value
	return s.publishLocked(map[string]any{name: value})
}

func (s *Store) publishLocked(state map[string]any) error {
	s.sequence++
	message := Message{
		Method:   MethodUpdate,
		CommID:   s.commID,
		Sequence: s.sequence,
		State:    state,
	}
	if err := s.sink.Send(message); err != nil {
		return fmt.Errorf("comm: publishing update %d for %s: %w", s.sequence, s.commID, err)
	}
	return nil
}

// Apply records values reported by a view. Nothing is published back.
// A view value overrides any staged local change to the same field.
// Apply returns the names whose values changed, sorted.
func (s *Store) Apply(state map[string]any) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for name, value := range state {
		if current, ok := s.values[name]; ok && reflect.DeepEqual(current, value) {
			continue
		}
		s.values[name] = value
		s.pending = slices.DeleteFunc(s.pending, func(pending string) bool { return pending == name })
		changed = append(changed, name)
	}
	slices.Sort(changed)
	return changed
}

// Snapshot returns the full committed field set as a snapshot message.
// Staged but uncommitted values are reported at their staged value; the
// next Commit republishes them, which a view applies idempotently.
func (s *Store) Snapshot() (Message, error) {
	s.mu.Lock()
	state := maps.Clone(s.values)
	sequence := s.sequence
	s.mu.Unlock()

	digest, err := Digest(state)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Method:   MethodSnapshot,
		CommID:   s.commID,
		Sequence: sequence,
		State:    state,
		Digest:   digest,
		Protocol: version.Protocol,
	}, nil
}
