// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides HTTP fixtures that exercise every streambody
// format: JSON arrays with and without an envelope, JSON lines, CSV,
// length-prefixed protobuf, Arrow IPC in both modes, and plain text, plus
// rebuffering, compression and mid-stream failure.
//
// The only entry point intended for external use is [Register], which
// mounts all fixture routes on an [http.ServeMux]. The domain types
// [Status], [Point], [Record] and [Envelope] are exported because clients
// decode responses into them.
package conformance
