// Package xerrors attaches call-site positions to errors.
//
// Wrap/Wrapf record the single PC of the wrapping call so the logger can emit
// one error_links entry per hop. New/Newf/WithStack/EnsureTrace capture a full
// stack which the logger renders on error level records.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stackErr carries a captured call stack
type stackErr struct {
	err error
	pcs []uintptr
}

func (e *stackErr) Error() string       { return e.err.Error() }
func (e *stackErr) Unwrap() error       { return e.err }
func (e *stackErr) StackPCs() []uintptr { return e.pcs }

// wrapErr adds a message and the PC of the Wrap call
type wrapErr struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapErr) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrapErr) Unwrap() error { return e.err }
func (e *wrapErr) PC() uintptr   { return e.pc }

// skip counts frames above runtime.Callers
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+1, pcs)
	return pcs[:n]
}

func pcAt(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+1, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and the caller's stack.
func New(msg string) error {
	return &stackErr{err: errors.New(msg), pcs: stack(2)}
}

// Newf is New with formatting. %w verbs are honored.
func Newf(format string, args ...any) error {
	return &stackErr{err: fmt.Errorf(format, args...), pcs: stack(2)}
}

// WithStack captures the caller's stack onto err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stackErr{err: err, pcs: stack(2)}
}

// EnsureTrace is WithStack unless err already carries a stack somewhere in its chain.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stackErr{err: err, pcs: stack(2)}
}

// Wrap annotates err with msg. nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapErr{err: err, msg: msg, pc: pcAt(2)}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapErr{err: err, msg: fmt.Sprintf(format, args...), pc: pcAt(2)}
}
