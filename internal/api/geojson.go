package api

import (
	"math"

	"github.com/mr1hm/go-disaster-news/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON places each report at its location. GeoJSON positions are
// longitude first.
func toGeoJSON(reports []models.NewsReport) FeatureCollection {
	features := make([]Feature, 0, len(reports))

	for _, r := range reports {
		var views any
		if !math.IsNaN(r.Views) && !math.IsInf(r.Views, 0) {
			views = r.Views
		}

		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{r.Location.Longitude, r.Location.Latitude},
			},
			Properties: map[string]any{
				"news_id":   r.ID,
				"author_id": r.AuthorID,
				"title":     r.Title,
				"time":      r.Time,
				"views":     views,
				"reaction":  r.Reaction,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
