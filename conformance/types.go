// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"github.com/apache/arrow-go/v18/arrow"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is a string-backed enum, dictionary encoded in Arrow output.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
)

var statuses = []Status{StatusPending, StatusActive, StatusClosed}

// Point is a simple 2D point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is the item streamed by every fixture route.
type Record struct {
	Index  int64  `json:"index" csv:"index"`
	Value  int64  `json:"value" csv:"value"`
	Label  string `json:"label" csv:"label"`
	Status Status `json:"status" csv:"status"`
	Point  *Point `json:"point,omitempty" csv:"-"`
}

// Proto converts the record for the protobuf route.
func (r Record) Proto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"index":  structpb.NewNumberValue(float64(r.Index)),
		"value":  structpb.NewNumberValue(float64(r.Value)),
		"label":  structpb.NewStringValue(r.Label),
		"status": structpb.NewStringValue(string(r.Status)),
	}
	if r.Point != nil {
		fields["point"] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"x": structpb.NewNumberValue(r.Point.X),
			"y": structpb.NewNumberValue(r.Point.Y),
		}})
	}
	return &structpb.Struct{Fields: fields}
}

// Envelope wraps the records of the envelope route.
type Envelope struct {
	TotalExpected int64    `json:"total_expected"`
	Description   string   `json:"description"`
	Records       []Record `json:"records"`
}

// CounterSchema is the Arrow schema of the arrow routes.
var CounterSchema = arrow.NewSchema([]arrow.Field{
	{Name: "index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Int64},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "status", Type: &arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Int16,
		ValueType: arrow.BinaryTypes.String,
	}},
}, nil)
