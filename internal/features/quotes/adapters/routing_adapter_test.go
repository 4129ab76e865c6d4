package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineRouter_GetRoute(t *testing.T) {
	router := NewHaversineRouter()

	// One degree of latitude is ~111.2 km great-circle, inflated by the
	// road factor.
	route, err := router.GetRoute(context.Background(),
		domain.Coordinates{Lat: 40.0, Lng: -3.7},
		domain.Coordinates{Lat: 41.0, Lng: -3.7},
	)
	require.NoError(t, err)
	assert.InDelta(t, 144.6, route.DistanceKm, 0.5)
	assert.InDelta(t, 145, route.DurationMinutes, 1)
	assert.Equal(t, "haversine_road_estimate", route.Method)
}

func TestHaversineRouter_ZeroDistance(t *testing.T) {
	router := NewHaversineRouter()

	point := domain.Coordinates{Lat: 40.0, Lng: -3.7}
	route, err := router.GetRoute(context.Background(), point, point)
	require.NoError(t, err)
	assert.Zero(t, route.DistanceKm)
	assert.Zero(t, route.DurationMinutes)
}

func TestRestRouter_GetRoute(t *testing.T) {
	logger.Init("development", "error")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"distance_km": 512.4, "duration_minutes": 390}`))
	}))
	defer srv.Close()

	router := NewRestRouter(srv.URL, time.Second)
	route, err := router.GetRoute(context.Background(),
		domain.Coordinates{Lat: 40.4, Lng: -3.7},
		domain.Coordinates{Lat: 41.4, Lng: 2.2},
	)
	require.NoError(t, err)
	assert.Equal(t, 512.4, route.DistanceKm)
	assert.Equal(t, float64(390), route.DurationMinutes)
	assert.Equal(t, "road_service", route.Method)
}

func TestRestRouter_FallsBackOnServerError(t *testing.T) {
	logger.Init("development", "error")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	router := NewRestRouter(srv.URL, time.Second)
	route, err := router.GetRoute(context.Background(),
		domain.Coordinates{Lat: 40.0, Lng: -3.7},
		domain.Coordinates{Lat: 41.0, Lng: -3.7},
	)
	require.NoError(t, err)
	assert.Equal(t, "haversine_road_estimate", route.Method)
	assert.InDelta(t, 144.6, route.DistanceKm, 0.5)
}

func TestRestRouter_FallsBackWhenUnreachable(t *testing.T) {
	logger.Init("development", "error")

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	router := NewRestRouter(srv.URL, time.Second)
	route, err := router.GetRoute(context.Background(),
		domain.Coordinates{Lat: 40.0, Lng: -3.7},
		domain.Coordinates{Lat: 41.0, Lng: -3.7},
	)
	require.NoError(t, err)
	assert.Equal(t, "haversine_road_estimate", route.Method)
}
