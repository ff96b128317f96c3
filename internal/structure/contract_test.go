package structure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestDecodeNormalizesFields(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"is_it_a_real_offering": "True",
		"Name": "Reef Explorer",
		"description": null,
		"price_adult": "$149",
		"price_tiers": ["Adult: $149", "Child: $79"],
		"includes": ["<p>Buffet lunch</p>", "ok", "--", "Snorkel gear"],
		"duration": "",
		"menu": ["Prawns", "Fruit platter"]
	}`)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, got.Offering)
	assert.Equal(t, tour.Known("Reef Explorer"), got.Fields[KeyName])
	assert.False(t, got.Fields[KeyDescription].IsKnown())
	assert.Equal(t, "$149", got.Fields[KeyPriceAdult].String())
	assert.Equal(t, "Adult: $149 | Child: $79", got.Fields[KeyPriceTiers].String())
	assert.Equal(t, "Buffet lunch\nSnorkel gear", got.Fields[KeyIncludes].String())
	assert.True(t, got.Fields[KeyDuration].IsKnown())
	assert.True(t, got.Fields[KeyDuration].Empty())
	assert.Equal(t, "Prawns\nFruit platter", got.Fields[KeyMenu].String())
	assert.False(t, got.Fields[KeyItinerary].IsKnown())
}

func TestDecodeContractViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "missing flag", raw: `{"name":"x"}`, err: tour.ErrContract},
		{name: "flag not boolean", raw: `{"is_it_a_real_offering":"maybe","name":"x"}`, err: tour.ErrContract},
		{name: "missing name", raw: `{"is_it_a_real_offering":true}`, err: tour.ErrContract},
		{name: "not an object", raw: `[1,2]`, err: tour.ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(json.RawMessage(tt.raw))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeAcceptsLegacyFlag(t *testing.T) {
	t.Parallel()

	got, err := Decode(json.RawMessage(`{"is_tour":false,"name":null}`))
	require.NoError(t, err)
	require.False(t, got.Offering)
	require.False(t, got.Fields[KeyName].IsKnown())
}
