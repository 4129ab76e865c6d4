package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"shipping-orchestrator/internal/core/httpclient"
	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"

	"go.uber.org/zap"
)

// roadFactor inflates great-circle distance to an approximate road
// distance.
const roadFactor = 1.3

// avgSpeedKmh is the assumed average road speed for duration estimates.
const avgSpeedKmh = 60.0

// HaversineRouter estimates road distance and duration from coordinates
// alone. It is the zero-dependency fallback when no routing service is
// configured or reachable.
type HaversineRouter struct{}

// NewHaversineRouter creates a new HaversineRouter.
func NewHaversineRouter() *HaversineRouter {
	return &HaversineRouter{}
}

// GetRoute returns a road-factor-adjusted haversine estimate.
func (r *HaversineRouter) GetRoute(_ context.Context, origin, destination domain.Coordinates) (*domain.RouteInfo, error) {
	distance := haversineKm(origin.Lat, origin.Lng, destination.Lat, destination.Lng) * roadFactor
	return &domain.RouteInfo{
		DistanceKm:      math.Round(distance*10) / 10,
		DurationMinutes: math.Round(distance / avgSpeedKmh * 60),
		Method:          "haversine_road_estimate",
	}, nil
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0

	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RestRouter resolves routes from an OSRM-style HTTP routing service,
// falling back to the haversine estimate when the service fails.
type RestRouter struct {
	baseURL  string
	client   *http.Client
	fallback *HaversineRouter
	logger   *zap.Logger
}

// NewRestRouter creates a new RestRouter with the given base URL.
func NewRestRouter(baseURL string, timeout time.Duration) *RestRouter {
	return &RestRouter{
		baseURL:  baseURL,
		client:   httpclient.NewClient(timeout),
		fallback: NewHaversineRouter(),
		logger:   logger.Named("routing"),
	}
}

// restRouteResponse is the routing service's JSON answer.
type restRouteResponse struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// GetRoute queries the routing service; on any failure it degrades to
// the haversine estimate so quoting keeps working.
func (r *RestRouter) GetRoute(ctx context.Context, origin, destination domain.Coordinates) (*domain.RouteInfo, error) {
	url := fmt.Sprintf("%s/route?from=%f,%f&to=%f,%f",
		r.baseURL, origin.Lat, origin.Lng, destination.Lat, destination.Lng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build routing request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("Routing service unreachable, using haversine fallback", zap.Error(err))
		return r.fallback.GetRoute(ctx, origin, destination)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("Routing service returned non-200, using haversine fallback",
			zap.Int("status_code", resp.StatusCode))
		return r.fallback.GetRoute(ctx, origin, destination)
	}

	var body restRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Warn("Routing response unreadable, using haversine fallback", zap.Error(err))
		return r.fallback.GetRoute(ctx, origin, destination)
	}

	return &domain.RouteInfo{
		DistanceKm:      body.DistanceKm,
		DurationMinutes: body.DurationMinutes,
		Method:          "road_service",
	}, nil
}
