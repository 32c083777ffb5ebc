package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsReport_MarshalJSON(t *testing.T) {
	r := NewsReport{
		ID:       "n1",
		AuthorID: "u1",
		Title:    "Flood",
		Time:     "2024-04-26T15:10:00Z",
		Location: GeoCoordinate{Latitude: 10.5, Longitude: -20.25},
		Views:    42,
		Reaction: "like",
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"news_id": "n1",
		"author_id": "u1",
		"cover_image": "",
		"title": "Flood",
		"description": "",
		"time": "2024-04-26T15:10:00Z",
		"location": {"latitude": 10.5, "longitude": -20.25},
		"views": 42,
		"reaction": "like"
	}`, string(b))
}

func TestNewsReport_MarshalJSONNonFiniteViews(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		b, err := json.Marshal(NewsReport{ID: "n1", Views: v})
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Contains(t, got, "views")
		assert.Nil(t, got["views"])
	}
}
