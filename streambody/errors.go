// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorKind classifies where in the pipeline a stream failed.
type ErrorKind int

const (
	// KindSource marks an error reported by the caller's source sequence.
	KindSource ErrorKind = iota
	// KindEncode marks a codec failure while serializing one item.
	KindEncode
	// KindConfig marks an invalid format or option setup, detected before
	// any item is pulled.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindEncode:
		return "encode"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrStream is a sentinel for use with errors.Is to check whether any error
// in a chain is a *StreamError.
var ErrStream = &StreamError{}

// ErrClosed is reported to hooks when a Body is closed before its sequence
// was drained, typically because the client went away.
var ErrClosed = errors.New("streambody: body closed before end of stream")

// StreamError is the terminal error of a streaming body.
type StreamError struct {
	Kind   ErrorKind
	Format FormatKind
	// Position is the zero-based item index the error relates to, or -1 when
	// it is not tied to an item.
	Position int
	Cause    error
}

func (e *StreamError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("%s %s error at item %d: %v", e.Format, e.Kind, e.Position, e.Cause)
	}
	return fmt.Sprintf("%s %s error: %v", e.Format, e.Kind, e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is by matching any *StreamError target.
func (e *StreamError) Is(target error) bool {
	_, ok := target.(*StreamError)
	return ok
}

func sourceError(format FormatKind, pos int, err error) error {
	// A source that already yields *StreamError (e.g. a nested Body) keeps it.
	var se *StreamError
	if errors.As(err, &se) {
		return err
	}
	return &StreamError{Kind: KindSource, Format: format, Position: pos, Cause: err}
}

func encodeError(format FormatKind, pos int, err error) error {
	return &StreamError{Kind: KindEncode, Format: format, Position: pos, Cause: err}
}

func configError(format FormatKind, err error) error {
	return &StreamError{Kind: KindConfig, Format: format, Position: -1, Cause: err}
}

// IsKind reports whether err is a *StreamError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StreamError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}
