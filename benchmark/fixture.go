// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark holds deterministic sources shared by the streambody
// benchmarks and the demo server.
package benchmark

import (
	"github.com/apache/arrow-go/v18/arrow"
	"google.golang.org/protobuf/types/known/structpb"
)

// Row is the generated record: {i, value} where value = i * 10.
type Row struct {
	I     int64  `json:"i" csv:"i"`
	Value int64  `json:"value" csv:"value"`
	Label string `json:"label" csv:"label"`
}

// Stream schemas

var GenerateSchema = arrow.NewSchema([]arrow.Field{
	{Name: "i", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Int64},
}, nil)

var TransformSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Proto converts a row into a protobuf message for the length-prefixed format.
func (r Row) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"i":     structpb.NewNumberValue(float64(r.I)),
		"value": structpb.NewNumberValue(float64(r.Value)),
		"label": structpb.NewStringValue(r.Label),
	}}
}
