// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/streambody/internal/config"
	"github.com/Query-farm/streambody/streambody"
)

func openStore(t *testing.T) *CityStore {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	store, err := OpenCityStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCityStoreAll(t *testing.T) {
	store := openStore(t)

	var names []string
	for c, err := range store.All(context.Background(), 0) {
		require.NoError(t, err)
		names = append(names, c.Name)
	}
	require.Len(t, names, len(seedCities))
	require.Equal(t, "New York", names[0])

	var limited int
	for _, err := range store.All(context.Background(), 3) {
		require.NoError(t, err)
		limited++
	}
	require.Equal(t, 3, limited)
}

func TestCityStoreCancelled(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range store.All(ctx, 0) {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
}

func TestHTTPRoutes(t *testing.T) {
	store := openStore(t)
	cfg := config.Default()
	cfg.Server.Conformance = true
	srv := httptest.NewServer(newMux(cfg, store, cfg.Stream.Options()))
	t.Cleanup(srv.Close)

	get := func(t *testing.T, path string) (*http.Response, []byte) {
		t.Helper()
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, data
	}

	t.Run("json lines", func(t *testing.T) {
		resp, data := get(t, "/cities?limit=2")
		require.Equal(t, "application/jsonstream", resp.Header.Get("Content-Type"))
		require.Len(t, resp.Header.Get("X-Request-Id"), 36)
		sc := bufio.NewScanner(bytes.NewReader(data))
		var cities []City
		for sc.Scan() {
			var c City
			require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
			cities = append(cities, c)
		}
		require.Len(t, cities, 2)
		require.Equal(t, "London", cities[1].Name)
	})

	t.Run("json envelope", func(t *testing.T) {
		_, data := get(t, "/cities.json")
		var env cityEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		require.Equal(t, "sqlite", env.Source)
		require.Len(t, env.Cities, len(seedCities))
	})

	t.Run("csv", func(t *testing.T) {
		_, data := get(t, "/cities.csv?limit=1")
		rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		require.Equal(t, [][]string{
			{"id", "city", "country", "lat", "lng"},
			{"1", "New York", "US", "40.7128", "-74.006"},
		}, rows)
	})

	t.Run("bad limit", func(t *testing.T) {
		resp, _ := get(t, "/cities?limit=-3")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = get(t, "/cities?limit=1;2")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("conformance mounted", func(t *testing.T) {
		_, data := get(t, "/text?count=2")
		require.Equal(t, "record 0\nrecord 1\n", string(data))
	})
}

func TestFiberRoutes(t *testing.T) {
	store := openStore(t)
	app := newFiberApp(store, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/cities?limit=3", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, 3, bytes.Count(data, []byte("\n")))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/cities?limit=x", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShippedConfig(t *testing.T) {
	cfg, err := config.LoadFromFile("config.yaml")
	require.NoError(t, err)
	require.Equal(t, config.EngineNetHTTP, cfg.Server.Engine)
	require.Equal(t, 16, cfg.Stream.BufferingReadyItems)
	require.False(t, cfg.Telemetry.Enabled)
}

func TestSetupTelemetryDisabled(t *testing.T) {
	opts, shutdown, err := setupTelemetry(config.TelemetryConfig{}, io.Discard)
	require.NoError(t, err)
	require.Empty(t, opts)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTelemetryEnabled(t *testing.T) {
	var out bytes.Buffer
	opts, shutdown, err := setupTelemetry(config.TelemetryConfig{Enabled: true, ServiceName: "streamd-test"}, &out)
	require.NoError(t, err)
	require.Len(t, opts, 1)

	body := streambody.Text(slices.Values([]string{"a\n", "b\n"}), opts...)
	_, err = io.Copy(io.Discard, body)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	require.Contains(t, out.String(), "streambody/text")
	require.Contains(t, out.String(), "streambody.streams")
}
