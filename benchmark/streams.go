// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"context"
	"iter"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/protobuf/types/known/structpb"
)

// Generate produces count rows. It stops with ctx.Err() once ctx is done.
func Generate(ctx context.Context, count int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for i := range int64(count) {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}
			row := Row{I: i, Value: i * 10, Label: "row-" + strconv.FormatInt(i, 10)}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// GenerateProto is Generate mapped to protobuf messages.
func GenerateProto(ctx context.Context, count int) iter.Seq2[*structpb.Struct, error] {
	return func(yield func(*structpb.Struct, error) bool) {
		for row, err := range Generate(ctx, count) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row.Proto(), nil) {
				return
			}
		}
	}
}

// GenerateBatches produces count batches of GenerateSchema with rows rows
// each. Every batch is released once the consumer moves past it.
func GenerateBatches(ctx context.Context, count, rows int) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		mem := memory.NewGoAllocator()
		bldr := array.NewRecordBuilder(mem, GenerateSchema)
		defer bldr.Release()

		var next int64
		for range count {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			is := bldr.Field(0).(*array.Int64Builder)
			vs := bldr.Field(1).(*array.Int64Builder)
			for range rows {
				is.Append(next)
				vs.Append(next * 10)
				next++
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

// Transform scales the "value" column of every input batch by factor.
func Transform(src iter.Seq2[arrow.Record, error], factor float64) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		mem := memory.NewGoAllocator()
		for input, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			values := input.Column(1).(*array.Int64)
			builder := array.NewFloat64Builder(mem)
			for i := 0; i < values.Len(); i++ {
				builder.Append(float64(values.Value(i)) * factor)
			}
			arr := builder.NewArray()
			builder.Release()

			rec := array.NewRecord(TransformSchema, []arrow.Array{arr}, int64(arr.Len()))
			arr.Release()
			ok := yield(rec, nil)
			rec.Release()
			if !ok {
				return
			}
		}
	}
}
