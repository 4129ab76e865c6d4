package selection

import (
	"sort"

	"shipping-orchestrator/internal/features/quotes/domain"
)

// Weights controls the relative importance of each scoring dimension.
type Weights struct {
	Price       float64
	Speed       float64
	Reliability float64
}

// DefaultWeights is the documented {0.5, 0.3, 0.2} split.
var DefaultWeights = Weights{Price: 0.5, Speed: 0.3, Reliability: 0.2}

// defaultReliability applies to carriers absent from the table.
const defaultReliability = 0.80

// Engine scores and ranks accepted quotes. Deterministic: identical
// inputs always yield the same ranking and reason.
type Engine struct {
	weights     Weights
	reliability map[string]float64
}

// NewEngine creates an Engine. The reliability table maps carrier ID to
// a static score in [0,1]; unknown carriers score 0.80.
func NewEngine(weights Weights, reliability map[string]float64) *Engine {
	return &Engine{
		weights:     weights,
		reliability: reliability,
	}
}

// Rank orders quotes best-first and names the reason for the top pick.
// Price and delivery days are min-max normalized and inverted (lower is
// better); ties break by input order, first-seen wins.
func (e *Engine) Rank(quotes []domain.Quote) ([]domain.Quote, domain.SelectionReason) {
	if len(quotes) == 0 {
		return nil, ""
	}
	if len(quotes) == 1 {
		return []domain.Quote{quotes[0]}, domain.SelectionOnlyOption
	}

	minPrice, maxPrice := quotes[0].Price, quotes[0].Price
	minDays, maxDays := quotes[0].DeliveryDays, quotes[0].DeliveryDays
	for _, q := range quotes[1:] {
		if q.Price < minPrice {
			minPrice = q.Price
		}
		if q.Price > maxPrice {
			maxPrice = q.Price
		}
		if q.DeliveryDays < minDays {
			minDays = q.DeliveryDays
		}
		if q.DeliveryDays > maxDays {
			maxDays = q.DeliveryDays
		}
	}

	type scored struct {
		quote domain.Quote
		score float64
		index int
	}

	ranked := make([]scored, 0, len(quotes))
	for i, q := range quotes {
		priceScore := invertNormalize(q.Price, minPrice, maxPrice)
		speedScore := invertNormalize(float64(q.DeliveryDays), float64(minDays), float64(maxDays))

		rel, ok := e.reliability[q.CarrierID]
		if !ok {
			rel = defaultReliability
		}

		total := e.weights.Price*priceScore + e.weights.Speed*speedScore + e.weights.Reliability*rel
		ranked = append(ranked, scored{quote: q, score: total, index: i})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index < ranked[b].index
	})

	out := make([]domain.Quote, len(ranked))
	for i, s := range ranked {
		out[i] = s.quote
	}

	return out, e.reason(out[0], minPrice, minDays)
}

// reason classifies the winner against the candidate extremes.
func (e *Engine) reason(winner domain.Quote, minPrice float64, minDays int) domain.SelectionReason {
	if winner.Price == minPrice {
		return domain.SelectionBestPrice
	}
	if winner.DeliveryDays == minDays {
		return domain.SelectionBestSpeed
	}
	return domain.SelectionBestBalance
}

// invertNormalize maps value into [0,1] where the minimum of the set
// scores 1 (lower is better). A degenerate set scores 1 for everyone.
func invertNormalize(value, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (max - value) / (max - min)
}
