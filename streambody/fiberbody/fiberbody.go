// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package fiberbody streams a [streambody.Body] through gofiber/fasthttp.
package fiberbody

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/Query-farm/streambody/streambody"
)

// Send sets the body's headers on c and streams its chunks. Request headers
// become the hook's transport metadata.
//
// fasthttp writes every Read as one flushed chunk and only sends the
// terminating chunk after io.EOF. A mid-stream failure surfaces as a read
// error, so the connection is dropped and the client sees a truncated body.
//
// The first chunk is pulled before any header is set; a failure there is
// returned as a 500 fiber error for the app's error handler.
func Send(c *fiber.Ctx, b *streambody.Body) error {
	// The fiber.Ctx is recycled once the handler returns; copy what the
	// body stream needs now.
	b.Attach(context.Background(), requestMetadata(c))
	if err := b.Prime(); err != nil {
		fiberlog.Errorf("[%s] %s stream failed before the first byte: %v", c.Path(), b.Info().Format, err)
		return fiber.NewError(fiber.StatusInternalServerError, "stream failed")
	}

	for k, vs := range b.Header() {
		for i, v := range vs {
			if i == 0 {
				c.Set(k, v)
			} else {
				c.Response().Header.Add(k, v)
			}
		}
	}
	c.Status(fiber.StatusOK)
	c.Context().SetBodyStream(&bodyStream{body: b, path: c.Path()}, -1)
	return nil
}

// bodyStream is the io.ReadCloser handed to fasthttp.
type bodyStream struct {
	body *streambody.Body
	path string
}

func (s *bodyStream) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		stats := s.body.Stats()
		fiberlog.Errorf("[%s] %s stream failed after %d items: %v", s.path, s.body.Info().Format, stats.Items, err)
	}
	return n, err
}

// Close is called by fasthttp once the response is written or the client
// went away.
func (s *bodyStream) Close() error {
	return s.body.Close()
}

// Handler adapts a Body constructor into a fiber handler.
func Handler(build func(c *fiber.Ctx) (*streambody.Body, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := build(c)
		if err != nil {
			return err
		}
		return Send(c, b)
	}
}

func requestMetadata(c *fiber.Ctx) map[string]string {
	md := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := strings.ToLower(string(key))
		if _, ok := md[k]; !ok {
			md[k] = string(value)
		}
	})
	if ip := c.IP(); ip != "" {
		md["remote_addr"] = ip
	}
	return md
}
