package models

import (
	"encoding/json"
	"math"
)

// NewsReport is one disaster report as listed by the news service.
type NewsReport struct {
	ID          string        `json:"news_id"`     // column 0
	AuthorID    string        `json:"author_id"`   // column 1
	CoverImage  string        `json:"cover_image"` // column 2, base64 encoded image
	Title       string        `json:"title"`       // column 3
	Description string        `json:"description"` // column 4
	Time        string        `json:"time"`        // column 5, passed through as-is
	Location    GeoCoordinate `json:"location"`    // column 6, JSON-encoded string upstream
	Views       float64       `json:"views"`       // column 7, NaN when not numeric
	Reaction    string        `json:"reaction"`    // column 8
}

// MarshalJSON writes views as null when it has no JSON number form.
func (r NewsReport) MarshalJSON() ([]byte, error) {
	type report NewsReport
	out := struct {
		report
		Views *float64 `json:"views"`
	}{report: report(r)}

	if !math.IsNaN(r.Views) && !math.IsInf(r.Views, 0) {
		v := r.Views
		out.Views = &v
	}
	return json.Marshal(out)
}

type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewsUpdate is the body accepted by the upstream PUT /news/{id}.
type NewsUpdate struct {
	CoverLink string        `json:"cover_link"`
	Title     string        `json:"title" binding:"required"`
	Subtitle  string        `json:"subtitle"`
	Location  GeoCoordinate `json:"location"`
	Views     int           `json:"views" binding:"gte=0"`
}
