package table

import (
	"sync"
	"sync/atomic"
)

// source memoizes a scan so that plans derived from it read the file once.
type source struct {
	once sync.Once
	scan func() (Table, error)
	t    Table
	err  error
}

func (s *source) get() (Table, error) {
	s.once.Do(func() { s.t, s.err = s.scan() })
	return s.t, s.err
}

// Lazy is a deferred plan: a scan plus pending column selections. Nothing is
// read until Collect is called; the result, or the error, is then cached.
type Lazy struct {
	src     *source
	selects [][]string

	once sync.Once
	t    Table
	err  error
	done atomic.Bool
}

var _ Frame = (*Lazy)(nil)

// Scan defers fn until the plan is collected.
func Scan(fn func() (Table, error)) *Lazy {
	return &Lazy{src: &source{scan: fn}}
}

// Select appends a projection to the plan without materializing it.
func (l *Lazy) Select(cols ...string) *Lazy {
	sel := make([][]string, len(l.selects), len(l.selects)+1)
	copy(sel, l.selects)
	return &Lazy{src: l.src, selects: append(sel, append([]string(nil), cols...))}
}

// Collect materializes the plan.
func (l *Lazy) Collect() (Table, error) {
	l.once.Do(func() {
		t, err := l.src.get()
		for _, cols := range l.selects {
			if err != nil {
				break
			}
			t, err = t.Select(cols...)
		}
		l.t, l.err = t, err
		l.done.Store(true)
	})
	return l.t, l.err
}

// Materialized reports whether Collect has run.
func (l *Lazy) Materialized() bool {
	return l.done.Load()
}
