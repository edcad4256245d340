// Package undo implements the savepoint log the passive ledger resources use
// to revert a partially applied operation.
package undo

// Log records inverse actions while a savepoint is open.
// The zero value is ready to use and records nothing until Begin.
type Log struct {
	active bool
	fns    []func()
}

// Begin opens a savepoint. Opening a savepoint while one is active discards
// the earlier one's inverse actions; savepoints do not nest.
func (l *Log) Begin() {
	l.active = true
	l.fns = l.fns[:0]
}

// Active reports whether a savepoint is open.
func (l *Log) Active() bool { return l.active }

// Push records fn as the inverse of a mutation just applied.
// It is a no-op when no savepoint is open.
func (l *Log) Push(fn func()) {
	if l.active {
		l.fns = append(l.fns, fn)
	}
}

// Commit closes the savepoint and keeps every mutation.
func (l *Log) Commit() {
	l.active = false
	l.fns = l.fns[:0]
}

// Rollback runs the recorded inverse actions newest first and closes the
// savepoint.
func (l *Log) Rollback() {
	for i := len(l.fns) - 1; i >= 0; i-- {
		l.fns[i]()
	}
	l.active = false
	l.fns = l.fns[:0]
}
