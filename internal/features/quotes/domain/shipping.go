package domain

import "time"

// Coordinates is a WGS84 latitude/longitude pair with its postal code.
type Coordinates struct {
	// Lat is the latitude in decimal degrees.
	Lat float64 `json:"lat"`
	// Lng is the longitude in decimal degrees.
	Lng float64 `json:"lng"`
	// PostalCode is the postal code of the location.
	PostalCode string `json:"postal_code"`
}

// Item is a single shippable line in a request.
type Item struct {
	// WeightKg is the actual weight in kilograms.
	WeightKg float64 `json:"weight_kg"`
	// LengthCm, WidthCm, HeightCm are the package dimensions in centimeters.
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
	// Fragile marks the item as requiring careful handling.
	Fragile bool `json:"fragile"`
	// ColdChain marks the item as requiring refrigerated transport.
	ColdChain bool `json:"cold_chain"`
}

// VolumetricKg returns the dimensional weight (L×W×H / 5000).
func (i Item) VolumetricKg() float64 {
	return i.LengthCm * i.WidthCm * i.HeightCm / 5000
}

// ShippingRequest is the ephemeral input for both estimate and quote phases.
// It is never persisted on its own.
type ShippingRequest struct {
	// OrderID references the order being shipped.
	OrderID string `json:"order_id"`
	// Origin is the pickup location.
	Origin Coordinates `json:"origin"`
	// Destination is the delivery location.
	Destination Coordinates `json:"destination"`
	// Items is the list of packages in the shipment.
	Items []Item `json:"items"`
	// ServiceTier is the requested service level (e.g. standard, express).
	ServiceTier string `json:"service_tier"`
}

// TotalWeightKg returns the summed actual weight of all items.
func (r ShippingRequest) TotalWeightKg() float64 {
	var total float64
	for _, it := range r.Items {
		total += it.WeightKg
	}
	return total
}

// BillableWeightKg returns the summed billable weight: per item, the max
// of actual and volumetric weight.
func (r ShippingRequest) BillableWeightKg() float64 {
	var total float64
	for _, it := range r.Items {
		w := it.WeightKg
		if v := it.VolumetricKg(); v > w {
			w = v
		}
		total += w
	}
	return total
}

// NeedsColdChain returns true if any item requires refrigerated transport.
func (r ShippingRequest) NeedsColdChain() bool {
	for _, it := range r.Items {
		if it.ColdChain {
			return true
		}
	}
	return false
}

// RouteInfo is the road-routing collaborator's answer for a pair of points.
type RouteInfo struct {
	// DistanceKm is the road distance in kilometers.
	DistanceKm float64 `json:"distance_km"`
	// DurationMinutes is the estimated driving time.
	DurationMinutes float64 `json:"duration_minutes"`
	// Method names the source of the result (e.g. "osrm", "haversine_road_estimate").
	Method string `json:"method"`
}

// Estimate is the read-only Phase-1 output. It is not an offer and no
// carrier was contacted to produce it.
type Estimate struct {
	// Cost is the midpoint cost estimate.
	Cost float64 `json:"cost"`
	// CostMin and CostMax bound the estimate at ±15%.
	CostMin float64 `json:"cost_min"`
	CostMax float64 `json:"cost_max"`
	// Currency is the ISO 4217 currency code.
	Currency string `json:"currency"`
	// DistanceKm is the road distance used for pricing.
	DistanceKm float64 `json:"distance_km"`
	// BillableWeightKg is max(actual, volumetric) summed over items.
	BillableWeightKg float64 `json:"billable_weight_kg"`
	// DeliveryDays is the estimated delivery time in days.
	DeliveryDays int `json:"delivery_days"`
	// Confidence is the estimate confidence score in [0.50, 0.95].
	Confidence float64 `json:"confidence"`
	// Tier names the distance tier used for the rate.
	Tier string `json:"tier"`
	// RoutingMethod names the routing source behind DistanceKm.
	RoutingMethod string `json:"routing_method"`
	// GeneratedAt is when the estimate was computed.
	GeneratedAt time.Time `json:"generated_at"`
}
