// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package streambody encodes a sequence of Go values into an HTTP response
// body incrementally, so a handler can emit large or unbounded result sets
// without holding them in memory. Every item is serialized and handed to
// the transport as soon as the source produces it.
//
// # Formats
//
// A [Format] turns items into framed byte chunks:
//
//   - [NewJSONArray]: `[item,item,...]`, optionally spliced into a field of
//     an envelope object with [NewJSONArrayWithEnvelope].
//   - [NewJSONLines]: one JSON document per line, newline after every item.
//   - [NewCSV]: delimiter separated records with configurable quoting and
//     line terminator; the header row is written once.
//   - [NewProtobuf]: varint length prefix followed by the message bytes.
//   - [NewArrowIPC]: each record batch as a standalone Arrow IPC stream.
//   - [NewArrowIPCStream]: one Arrow IPC stream for the whole response,
//     schema first and the 8-byte end-of-stream marker last.
//   - [NewText]: strings or bytes written verbatim.
//
// # Pipeline
//
// Sources are iter.Seq2[T, error] values. The first error anywhere in the
// pipeline becomes the last element of the chunk sequence; nothing is pulled
// from the source after it. Bytes already handed to the transport are not
// retracted, so a client sees a well-formed prefix followed by a truncated
// tail.
//
//	source -> format framing -> compression -> rebuffering -> Body
//
// Rebuffering is optional: [WithBufferingReadyItems] concatenates up to N
// chunks, [WithBufferingBytes] re-slices the stream into chunks of exactly B
// bytes. Neither reorders or drops bytes.
//
// # Transports
//
// [Body] implements http.Handler and io.Reader, and exposes the pull
// interface [Body.Next] for other transports (see the fiberbody package).
// Headers are computed when the Body is built and never change afterwards.
//
// # Observability
//
// A [StreamHook] installed with [WithHook] is called once when streaming
// starts and once when it ends, with the body's [StreamStatistics]. The
// streamotel package provides an OpenTelemetry implementation.
package streambody
