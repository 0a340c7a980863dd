// Package adminview is the client half of the admin panel: local row state
// that is updated optimistically and reconciled against the admin API.
package adminview

import (
	"context"
	"slices"
	"sync"
)

type Level int

const (
	Info Level = iota
	Success
	Failure
)

// Flash is a one-line status message shown above a table.
type Flash struct {
	Level Level
	Text  string
}

func (f Flash) String() string {
	switch f.Level {
	case Success:
		return "✓ " + f.Text
	case Failure:
		return "Error: " + f.Text
	default:
		return f.Text
	}
}

func Ok(text string) Flash { return Flash{Level: Success, Text: text} }
func Failed(err error) Flash { return Flash{Level: Failure, Text: err.Error()} }
func Notice(text string) Flash { return Flash{Level: Info, Text: text} }

// View holds the rows of one admin table. Rows are identified by key, so a
// reply that arrives after a reload or a removal lands on the right row or
// nowhere at all.
type View[T any] struct {
	key func(T) string

	mu      sync.Mutex
	rows    []T
	gen     int // bumped by every successful Load
	loading bool
	flash   Flash
}

func NewView[T any](key func(T) string) *View[T] { return &View[T]{key: key} }

// find returns the index of the first row whose key is one of keys, or -1.
func (v *View[T]) find(keys ...string) int {
	return slices.IndexFunc(v.rows, func(r T) bool { return slices.Contains(keys, v.key(r)) })
}

// Load replaces the rows with what fetch returns. On error the previous rows are kept.
func (v *View[T]) Load(ctx context.Context, fetch func(context.Context) ([]T, error)) error {
	v.mu.Lock()
	v.loading = true
	v.mu.Unlock()

	rows, err := fetch(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	if err != nil {
		v.flash = Failed(err)
		return err
	}
	v.rows = rows
	v.gen++
	return nil
}

// Mutate applies local to the row at index i, then sends it with remote.
// A success replaces the row with what the server returned. A failure sets
// an error flash and restores the row, unless a reload already replaced it
// with server state. A row removed in the meantime is left alone.
func (v *View[T]) Mutate(ctx context.Context, i int, local func(T) T, remote func(context.Context, T) (T, error), done string) error {
	v.mu.Lock()
	if i < 0 || i >= len(v.rows) {
		v.mu.Unlock()
		return errIndex
	}
	prev := v.rows[i]
	next := local(prev)
	v.rows[i] = next
	kPrev, kNext, gen := v.key(prev), v.key(next), v.gen
	v.mu.Unlock()

	saved, err := remote(ctx, next)

	v.mu.Lock()
	defer v.mu.Unlock()
	j := v.find(kPrev, kNext)
	if err != nil {
		if j >= 0 && v.gen == gen {
			v.rows[j] = prev
		}
		v.flash = Failed(err)
		return err
	}
	if j >= 0 {
		v.rows[j] = saved
	}
	if done != "" {
		v.flash = Ok(done)
	}
	return nil
}

// Remove drops row i locally, then calls remote. A remote failure puts the
// row back near its old position unless a reload happened meanwhile.
func (v *View[T]) Remove(ctx context.Context, i int, remote func(context.Context, T) error, done string) error {
	v.mu.Lock()
	if i < 0 || i >= len(v.rows) {
		v.mu.Unlock()
		return errIndex
	}
	row, gen := v.rows[i], v.gen
	v.rows = slices.Delete(v.rows, i, i+1)
	v.mu.Unlock()

	err := remote(ctx, row)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		if v.gen == gen && v.find(v.key(row)) < 0 {
			v.rows = slices.Insert(v.rows, min(i, len(v.rows)), row)
		}
		v.flash = Failed(err)
		return err
	}
	if done != "" {
		v.flash = Ok(done)
	}
	return nil
}

// Index returns the position of the row with key, or -1.
func (v *View[T]) Index(key string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.find(key)
}

func (v *View[T]) Rows() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.rows)
}

func (v *View[T]) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *View[T]) Flash() Flash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flash
}

func (v *View[T]) SetFlash(f Flash) {
	v.mu.Lock()
	v.flash = f
	v.mu.Unlock()
}
