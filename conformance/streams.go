// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrIntentional is the source error injected by the error routes.
var ErrIntentional = errors.New("intentional error")

// NewRecord returns the record at index idx.
func NewRecord(idx int64) Record {
	r := Record{
		Index:  idx,
		Value:  idx * 10,
		Label:  fmt.Sprintf("record %d", idx),
		Status: statuses[idx%int64(len(statuses))],
	}
	if idx%2 == 0 {
		r.Point = &Point{X: float64(idx), Y: float64(-idx)}
	}
	return r
}

// Counter produces count records. It stops with ctx.Err() once ctx is done.
func Counter(ctx context.Context, count int) iter.Seq2[Record, error] {
	return ErrorAfterN(ctx, count, -1)
}

// ErrorAfterN produces records until failAt, where it reports
// ErrIntentional instead. A negative failAt never fails.
func ErrorAfterN(ctx context.Context, count, failAt int) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for i := range count {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			if i == failAt {
				yield(Record{}, errors.Wrapf(ErrIntentional, "after %d records", failAt))
				return
			}
			if !yield(NewRecord(int64(i)), nil) {
				return
			}
		}
	}
}

// CounterProto is Counter mapped to protobuf messages.
func CounterProto(ctx context.Context, count int) iter.Seq2[*structpb.Struct, error] {
	return func(yield func(*structpb.Struct, error) bool) {
		for r, err := range Counter(ctx, count) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r.Proto(), nil) {
				return
			}
		}
	}
}

// CounterLines produces count newline terminated text lines.
func CounterLines(ctx context.Context, count int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for r, err := range Counter(ctx, count) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(r.Label+"\n", nil) {
				return
			}
		}
	}
}

// CounterBatches produces batchCount batches of CounterSchema with
// rowsPerBatch rows each. A batch is released once the consumer moves on.
func CounterBatches(ctx context.Context, batchCount, rowsPerBatch int) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		mem := memory.NewGoAllocator()
		bldr := array.NewRecordBuilder(mem, CounterSchema)
		defer bldr.Release()

		for b := range batchCount {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			offset := int64(b * rowsPerBatch)
			for i := range int64(rowsPerBatch) {
				r := NewRecord(offset + i)
				bldr.Field(0).(*array.Int64Builder).Append(r.Index)
				bldr.Field(1).(*array.Int64Builder).Append(r.Value)
				bldr.Field(2).(*array.StringBuilder).Append(r.Label)
				if err := bldr.Field(3).(*array.BinaryDictionaryBuilder).AppendString(string(r.Status)); err != nil {
					yield(nil, err)
					return
				}
			}
			rec := bldr.NewRecord()
			ok := yield(rec, nil)
			rec.Release()
			if !ok {
				return
			}
		}
	}
}
