// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"iter"
	"strconv"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Query-farm/streambody/streambody"
)

// City is one row of the cities table.
type City struct {
	ID      int64   `gorm:"primaryKey" json:"id" csv:"id"`
	Name    string  `gorm:"not null" json:"city" csv:"city"`
	Country string  `json:"country" csv:"country"`
	Lat     float64 `json:"lat" csv:"lat"`
	Lng     float64 `json:"lng" csv:"lng"`
}

var seedCities = []City{
	{Name: "New York", Country: "US", Lat: 40.7128, Lng: -74.0060},
	{Name: "London", Country: "GB", Lat: 51.5074, Lng: -0.1278},
	{Name: "Gothenburg", Country: "SE", Lat: 57.7089, Lng: 11.9746},
	{Name: "Tokyo", Country: "JP", Lat: 35.6762, Lng: 139.6503},
	{Name: "São Paulo", Country: "BR", Lat: -23.5505, Lng: -46.6333},
	{Name: "Lagos", Country: "NG", Lat: 6.5244, Lng: 3.3792},
	{Name: "Sydney", Country: "AU", Lat: -33.8688, Lng: 151.2093},
	{Name: "Reykjavík", Country: "IS", Lat: 64.1466, Lng: -21.9426},
}

// CityStore reads cities from a gorm database.
type CityStore struct {
	db *gorm.DB
}

// OpenCityStore opens dsn with the sqlite driver, migrates the cities table
// and seeds it when empty.
func OpenCityStore(dsn string) (*CityStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.AutoMigrate(&City{}); err != nil {
		return nil, errors.Wrap(err, "migrating cities")
	}
	var n int64
	if err := db.Model(&City{}).Count(&n).Error; err != nil {
		return nil, errors.Wrap(err, "counting cities")
	}
	if n == 0 {
		seed := append([]City(nil), seedCities...)
		if err := db.Create(&seed).Error; err != nil {
			return nil, errors.Wrap(err, "seeding cities")
		}
	}
	return &CityStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *CityStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// All streams cities ordered by id, at most limit when limit > 0. The query
// runs when the sequence is first iterated.
func (s *CityStore) All(ctx context.Context, limit int) iter.Seq2[City, error] {
	return func(yield func(City, error) bool) {
		q := s.db.WithContext(ctx).Model(&City{}).
			Select("id", "name", "country", "lat", "lng").
			Order("id")
		if limit > 0 {
			q = q.Limit(limit)
		}
		rows, err := q.Rows()
		if err != nil {
			yield(City{}, errors.Wrap(err, "querying cities"))
			return
		}
		for c, err := range streambody.FromSQLRows(rows, scanCity) {
			if !yield(c, err) {
				return
			}
		}
	}
}

func scanCity(row streambody.SQLRowScanner) (City, error) {
	var c City
	err := row.Scan(&c.ID, &c.Name, &c.Country, &c.Lat, &c.Lng)
	return c, errors.Wrap(err, "scanning city")
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Newf("invalid limit %q", s)
	}
	return n, nil
}

type cityEnvelope struct {
	Source string `json:"source"`
	Cities []City `json:"cities"`
}

// cityRoute builds the body for one representation of the cities table.
type cityRoute func(ctx context.Context, store *CityStore, limit int, opts []streambody.Option) *streambody.Body

var cityRoutes = map[string]cityRoute{
	"/cities": func(ctx context.Context, store *CityStore, limit int, opts []streambody.Option) *streambody.Body {
		return streambody.JSONLinesWithErrors(store.All(ctx, limit), opts...)
	},
	"/cities.json": func(ctx context.Context, store *CityStore, limit int, opts []streambody.Option) *streambody.Body {
		return streambody.JSONArrayWithEnvelopeErrors(store.All(ctx, limit), cityEnvelope{Source: "sqlite"}, "cities", opts...)
	},
	"/cities.csv": func(ctx context.Context, store *CityStore, limit int, opts []streambody.Option) *streambody.Body {
		return streambody.New(streambody.DefaultCSV[City](), store.All(ctx, limit), opts...)
	},
}
