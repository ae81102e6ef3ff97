// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/Query-farm/streambody/streambody"
)

const (
	defaultCount = 10
	maxCount     = 1_000_000
	defaultRows  = 4
)

// builder creates the body for one request. A non-nil error is reported
// to the client as 400 Bad Request before any header is sent.
type builder func(r *http.Request, opts []streambody.Option) (*streambody.Body, error)

// Register mounts every fixture route on mux, plus an HTML index at "/"
// and a JSON description of the routes at "/__describe__". opts are applied
// to every body before the route's own options.
func Register(mux *http.ServeMux, opts ...streambody.Option) {
	for _, rt := range routes {
		mux.Handle("GET "+rt.Path, handle(rt.build, opts))
	}
	mux.HandleFunc("GET /{$}", handleIndex)
	mux.Handle("GET /__describe__", handle(describe, opts))
}

var (
	countParam = Param{Name: "count", Type: "int", Default: strconv.Itoa(defaultCount)}
	rowsParam  = Param{Name: "rows", Type: "int", Default: strconv.Itoa(defaultRows)}
)

var routes = []route{
	{Path: "/json-array", Format: streambody.FormatJSONArray, Summary: "records as a JSON array",
		Params: []Param{countParam}, build: jsonArray},
	{Path: "/json-array-envelope", Format: streambody.FormatJSONArray, Summary: "records spliced into the records field of an envelope object",
		Params: []Param{countParam}, build: jsonArrayEnvelope},
	{Path: "/json-lines", Format: streambody.FormatJSONLines, Summary: "one record per line",
		Params: []Param{countParam}, build: jsonLines},
	{Path: "/json-errors", Format: streambody.FormatJSONArray, Summary: "JSON array whose source fails mid-stream; the connection is aborted",
		Params: []Param{countParam, {Name: "fail_at", Type: "int", Default: "count/2"}}, build: jsonErrors},
	{Path: "/json-buffered", Format: streambody.FormatJSONArray, Summary: "JSON array rebuffered by ready items",
		Params: []Param{countParam, {Name: "items", Type: "int", Default: "4"}}, build: jsonBuffered},
	{Path: "/json-zstd", Format: streambody.FormatJSONLines, Summary: "JSON lines compressed with zstd",
		Params: []Param{countParam}, build: jsonZstd},
	{Path: "/csv", Format: streambody.FormatCSV, Summary: "records as CSV",
		Params: []Param{countParam, {Name: "headers", Type: "bool", Default: "true"}, {Name: "delimiter", Type: "byte", Default: ","}}, build: csvRecords},
	{Path: "/protobuf", Format: streambody.FormatProtobuf, Summary: "length-prefixed google.protobuf.Struct messages",
		Params: []Param{countParam}, build: protobufRecords},
	{Path: "/arrow", Format: streambody.FormatArrowIPC, Summary: "each batch as a standalone Arrow IPC stream",
		Params: []Param{countParam, rowsParam}, build: arrowBatches},
	{Path: "/arrow-stream", Format: streambody.FormatArrowIPC, Summary: "one Arrow IPC stream for the whole body",
		Params: []Param{countParam, rowsParam}, build: arrowStream},
	{Path: "/text", Format: streambody.FormatText, Summary: "one label per line",
		Params: []Param{countParam}, build: textLines},
	{Path: "/text-buffered", Format: streambody.FormatText, Summary: "text re-sliced into fixed size chunks",
		Params: []Param{countParam, {Name: "bytes", Type: "int", Default: "3"}}, build: textBuffered},
}

func handle(build builder, opts []streambody.Option) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := build(r, opts)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body.ServeHTTP(w, r)
	})
}

// query parses the raw query strictly. r.URL.Query drops malformed pairs,
// such as an unescaped ';', without reporting them.
func query(r *http.Request) (url.Values, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, errors.Wrap(err, "invalid query")
	}
	return q, nil
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	q, err := query(r)
	if err != nil {
		return 0, err
	}
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", name)
	}
	if v < 0 || v > maxCount {
		return 0, errors.Newf("%s must be between 0 and %d, got %d", name, maxCount, v)
	}
	return v, nil
}

func positiveParam(r *http.Request, name string, def int) (int, error) {
	v, err := intParam(r, name, def)
	if err == nil && v == 0 {
		err = errors.Newf("%s must be positive", name)
	}
	return v, err
}

func count(r *http.Request) (int, error) {
	return intParam(r, "count", defaultCount)
}

func with(opts []streambody.Option, extra ...streambody.Option) []streambody.Option {
	return append(append([]streambody.Option(nil), opts...), extra...)
}

func jsonArray(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	return streambody.JSONArrayWithErrors(Counter(r.Context(), n), opts...), nil
}

func jsonArrayEnvelope(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	envelope := Envelope{TotalExpected: int64(n), Description: "counter records"}
	return streambody.JSONArrayWithEnvelopeErrors(Counter(r.Context(), n), envelope, "records", opts...), nil
}

func jsonLines(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	return streambody.JSONLinesWithErrors(Counter(r.Context(), n), opts...), nil
}

func jsonErrors(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	failAt, err := intParam(r, "fail_at", n/2)
	if err != nil {
		return nil, err
	}
	return streambody.JSONArrayWithErrors(ErrorAfterN(r.Context(), n, failAt), opts...), nil
}

func jsonBuffered(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	items, err := positiveParam(r, "items", 4)
	if err != nil {
		return nil, err
	}
	return streambody.JSONArrayWithErrors(Counter(r.Context(), n), with(opts, streambody.WithBufferingReadyItems(items))...), nil
}

func jsonZstd(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	return streambody.JSONLinesWithErrors(Counter(r.Context(), n), with(opts, streambody.WithCompression(streambody.CompressionZstd, 0))...), nil
}

func csvRecords(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	q, err := query(r)
	if err != nil {
		return nil, err
	}
	headers := true
	if s := q.Get("headers"); s != "" {
		if headers, err = strconv.ParseBool(s); err != nil {
			return nil, errors.Wrap(err, "invalid headers")
		}
	}
	delimiter := byte(',')
	if s := q.Get("delimiter"); s != "" {
		if len(s) != 1 {
			return nil, errors.Newf("delimiter must be a single byte, got %q", s)
		}
		delimiter = s[0]
	}
	format := streambody.NewCSV[Record](headers, delimiter)
	return streambody.New(format, Counter(r.Context(), n), opts...), nil
}

func protobufRecords(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	return streambody.ProtobufWithErrors(CounterProto(r.Context(), n), opts...), nil
}

func batchParams(r *http.Request) (int, int, error) {
	n, err := count(r)
	if err != nil {
		return 0, 0, err
	}
	rows, err := intParam(r, "rows", defaultRows)
	if err != nil {
		return 0, 0, err
	}
	return n, rows, nil
}

func arrowBatches(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, rows, err := batchParams(r)
	if err != nil {
		return nil, err
	}
	return streambody.ArrowIPCWithErrors(CounterSchema, CounterBatches(r.Context(), n, rows), opts...), nil
}

func arrowStream(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, rows, err := batchParams(r)
	if err != nil {
		return nil, err
	}
	return streambody.ArrowIPCStreamWithErrors(CounterSchema, CounterBatches(r.Context(), n, rows), opts...), nil
}

func textLines(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	return streambody.TextWithErrors(CounterLines(r.Context(), n), opts...), nil
}

func textBuffered(r *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	size, err := positiveParam(r, "bytes", 3)
	if err != nil {
		return nil, err
	}
	return streambody.TextWithErrors(CounterLines(r.Context(), n), with(opts, streambody.WithBufferingBytes(size))...), nil
}
