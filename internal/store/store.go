/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package store holds the last published snapshot in memory and mirrors it
// to disk for cold starts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuonguno98/unoperf/pkg/metrics"
)

// ErrNoSnapshot reports that neither memory nor disk holds a snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot published")

// Persister writes and reads the snapshot file.
type Persister interface {
	Write(snapshot *metrics.Snapshot) error
	ReadRaw() ([]byte, error)
}

// Store is the handoff between the sampling loop (single writer) and any
// number of readers. The current snapshot is swapped atomically, never mutated.
type Store struct {
	current atomic.Pointer[metrics.Snapshot]
	file    Persister
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan *metrics.Snapshot
	nextID int

	publishes atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an empty store persisting through file.
func New(file Persister, logger *slog.Logger) *Store {
	return &Store{
		file:   file,
		logger: logger,
		subs:   make(map[int]chan *metrics.Snapshot),
	}
}

// Publish makes snapshot the current one, rewrites the persisted file and
// notifies subscribers. Readers see the new snapshot even when the file
// write fails; the returned error reports only the persistence fault.
func (s *Store) Publish(snapshot *metrics.Snapshot) error {
	s.current.Store(snapshot)
	s.publishes.Add(1)

	err := s.file.Write(snapshot)
	s.notify(snapshot)

	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

// Latest returns the snapshot published in this process, or nil.
func (s *Store) Latest() *metrics.Snapshot {
	return s.current.Load()
}

// Resolve returns the current snapshot as JSON. Resolution order: the
// in-memory snapshot, the persisted file verbatim, the all-zero default
// stamped with now. A persisted file that cannot be parsed is an error.
func (s *Store) Resolve(now time.Time) ([]byte, error) {
	if snapshot := s.Latest(); snapshot != nil {
		return json.Marshal(snapshot)
	}

	data, _, err := s.LoadPersisted()
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrNoSnapshot):
		return json.Marshal(metrics.Default(now))
	default:
		return nil, err
	}
}

// LoadPersisted reads and validates the persisted file. It returns the raw
// document together with its decoded form, or ErrNoSnapshot when no file exists.
func (s *Store) LoadPersisted() ([]byte, *metrics.Snapshot, error) {
	data, err := s.file.ReadRaw()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read persisted snapshot: %w", err)
	}

	var snapshot metrics.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, nil, fmt.Errorf("failed to parse persisted snapshot: %w", err)
	}
	return data, &snapshot, nil
}

// Subscribe registers a listener for published snapshots. A slow subscriber
// loses its oldest pending snapshot rather than blocking the publisher.
// cancel must be called to release the subscription.
func (s *Store) Subscribe(buffer int) (<-chan *metrics.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *metrics.Snapshot, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Publishes returns how many snapshots were published.
func (s *Store) Publishes() uint64 {
	return s.publishes.Load()
}

// Dropped returns how many pending snapshots were discarded for slow subscribers.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Store) notify(snapshot *metrics.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		for {
			select {
			case ch <- snapshot:
			default:
				// Full: discard the oldest pending snapshot and retry
				select {
				case <-ch:
					s.dropped.Add(1)
					s.logger.Debug("Dropped pending snapshot for slow subscriber")
				default:
				}
				continue
			}
			break
		}
	}
}
