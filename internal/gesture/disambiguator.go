// Package gesture turns raw click signals into single- or double-click intents.
package gesture

import (
	"sync"
	"time"
)

// DefaultWindow is the interval in which a second click turns a gesture into a double click.
const DefaultWindow = 300 * time.Millisecond

type state int

const (
	stateIdle state = iota
	stateWaiting
)

// Disambiguator counts click signals for one displayed event.
//
// The first click arms a timer. If the timer fires with one pending click the
// single intent runs; a second click inside the window cancels the timer and
// runs the double intent at once. Native double-click signals are never
// consulted. Intents run outside the internal lock.
type Disambiguator struct {
	window   time.Duration
	onSingle func()
	onDouble func()

	mu      sync.Mutex
	state   state
	pending int
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a Disambiguator. A non-positive window selects DefaultWindow.
func New(window time.Duration, onSingle, onDouble func()) *Disambiguator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Disambiguator{window: window, onSingle: onSingle, onDouble: onDouble}
}

// Click records one raw click signal.
func (d *Disambiguator) Click() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.state == stateWaiting && d.pending == 1 {
		d.resetLocked()
		d.mu.Unlock()
		if d.onDouble != nil {
			d.onDouble()
		}
		return
	}

	// Idle, or anything unexpected: start a fresh gesture.
	d.resetLocked()
	d.state = stateWaiting
	d.pending = 1
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.expire(gen) })
	d.mu.Unlock()
}

func (d *Disambiguator) expire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.state != stateWaiting || d.pending != 1 {
		d.mu.Unlock()
		return
	}
	d.resetLocked()
	d.mu.Unlock()
	if d.onSingle != nil {
		d.onSingle()
	}
}

// resetLocked returns to idle and invalidates any armed timer.
func (d *Disambiguator) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.state = stateIdle
	d.pending = 0
}

// Pending reports whether a gesture is waiting for its window to close.
func (d *Disambiguator) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateWaiting
}

// Stop discards any pending gesture; later clicks and timer firings are no-ops.
func (d *Disambiguator) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	d.stopped = true
}

// Set holds one Disambiguator per event key.
type Set struct {
	window time.Duration

	mu    sync.Mutex
	items map[string]*Disambiguator
}

// NewSet creates an empty Set whose members use window.
func NewSet(window time.Duration) *Set {
	return &Set{window: window, items: map[string]*Disambiguator{}}
}

// Bind registers the intents for key, replacing (and stopping) any previous binding.
func (s *Set) Bind(key string, onSingle, onDouble func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[key]; ok {
		old.Stop()
	}
	s.items[key] = New(s.window, onSingle, onDouble)
}

// Click forwards a click to the Disambiguator bound to key.
// It reports false when nothing is bound.
func (s *Set) Click(key string) bool {
	s.mu.Lock()
	d, ok := s.items[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	d.Click()
	return true
}

// Reset stops and removes every binding.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, d := range s.items {
		d.Stop()
		delete(s.items, k)
	}
}

// Len returns the number of bound keys.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
