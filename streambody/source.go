// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"context"
	"io"
	"iter"
	"slices"
)

// Values lifts an infallible sequence into a source sequence.
func Values[T any](seq iter.Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v := range seq {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FromSlice streams the elements of items in order.
func FromSlice[T any](items []T) iter.Seq2[T, error] {
	return Values(slices.Values(items))
}

// FromChan streams values received from ch until it is closed. Cancelling
// ctx ends the stream with ctx.Err().
func FromChan[T any](ctx context.Context, ch <-chan T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for {
			select {
			case <-ctx.Done():
				yield(zero, ctx.Err())
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// SQLRows is the subset of *sql.Rows used by FromSQLRows.
type SQLRows interface {
	io.Closer
	Next() bool
	Err() error
	Scan(dest ...any) error
}

// SQLRowScanner scans the current row into dest.
type SQLRowScanner interface {
	Scan(dest ...any) error
}

// FromSQLRows maps every row of rows through scan. rows is closed when the
// sequence ends, including when the consumer stops early.
func FromSQLRows[T any](rows SQLRows, scan func(SQLRowScanner) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer rows.Close()
		var zero T
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}
