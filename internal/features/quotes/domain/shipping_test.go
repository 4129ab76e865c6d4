package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItem_VolumetricKg(t *testing.T) {
	item := Item{LengthCm: 50, WidthCm: 40, HeightCm: 30}
	assert.InDelta(t, 12.0, item.VolumetricKg(), 0.001)
}

func TestShippingRequest_Weights(t *testing.T) {
	req := ShippingRequest{
		Items: []Item{
			// Heavy but small: actual wins.
			{WeightKg: 20, LengthCm: 10, WidthCm: 10, HeightCm: 10},
			// Light but bulky: volumetric (12kg) wins.
			{WeightKg: 2, LengthCm: 50, WidthCm: 40, HeightCm: 30},
		},
	}

	assert.InDelta(t, 22.0, req.TotalWeightKg(), 0.001)
	assert.InDelta(t, 32.0, req.BillableWeightKg(), 0.001)
}

func TestShippingRequest_NeedsColdChain(t *testing.T) {
	req := ShippingRequest{Items: []Item{{WeightKg: 1}, {WeightKg: 2}}}
	assert.False(t, req.NeedsColdChain())

	req.Items = append(req.Items, Item{WeightKg: 1, ColdChain: true})
	assert.True(t, req.NeedsColdChain())
}
