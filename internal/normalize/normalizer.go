package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mr1hm/go-disaster-news/internal/models"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/observability"
)

// Positional layout of a listing row.
const (
	colID = iota
	colAuthorID
	colCoverImage
	colTitle
	colDescription
	colTime
	colLocation
	colViews
	colReaction

	rowWidth
)

// Fetcher is the transport the normalizer pulls from. *newsapi.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, endpointPath string) (json.RawMessage, error)
}

type Result struct {
	Reports          []models.NewsReport
	DroppedRows      int
	DroppedLocations int
}

// Normalizer turns the upstream news listing into typed reports.
type Normalizer struct {
	fetcher                Fetcher
	metrics                *observability.Metrics
	skipMalformedLocations bool
}

// New creates a Normalizer. With skipMalformedLocations set, a row whose
// location cannot be parsed is excluded instead of failing the whole call.
func New(fetcher Fetcher, metrics *observability.Metrics, skipMalformedLocations bool) *Normalizer {
	return &Normalizer{
		fetcher:                fetcher,
		metrics:                metrics,
		skipMalformedLocations: skipMalformedLocations,
	}
}

// FetchAndParse retrieves the news listing and returns its reports in
// upstream order. Rows that are not arrays of at least nine columns are
// dropped silently.
func (n *Normalizer) FetchAndParse(ctx context.Context) ([]models.NewsReport, error) {
	res, err := n.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return res.Reports, nil
}

// Fetch is FetchAndParse that also reports how many rows were dropped.
func (n *Normalizer) Fetch(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		n.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := n.fetcher.Get(ctx, newsapi.NewsPath)
	if err != nil {
		n.metrics.FetchRequests.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("error fetching news list: %w", err)
	}

	res, err := n.Parse(body)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedLocation):
			n.metrics.FetchRequests.WithLabelValues("malformed_location").Inc()
		default:
			n.metrics.FetchRequests.WithLabelValues("invalid_envelope").Inc()
		}
		return nil, err
	}

	n.metrics.FetchRequests.WithLabelValues("success").Inc()
	n.metrics.ReportsParsed.Add(float64(len(res.Reports)))
	n.metrics.RowsDropped.WithLabelValues("shape").Add(float64(res.DroppedRows))
	n.metrics.RowsDropped.WithLabelValues("location").Add(float64(res.DroppedLocations))

	slog.Debug("news list normalized",
		"reports", len(res.Reports),
		"dropped_rows", res.DroppedRows,
		"dropped_locations", res.DroppedLocations,
	)
	return res, nil
}

// Parse normalizes an already fetched listing body.
func (n *Normalizer) Parse(body json.RawMessage) (*Result, error) {
	rows, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Reports: make([]models.NewsReport, 0, len(rows)),
	}
	for i, raw := range rows {
		cols, ok := decodeRow(raw)
		if !ok {
			res.DroppedRows++
			continue
		}

		report, err := mapRow(i, cols)
		if err != nil {
			if n.skipMalformedLocations && errors.Is(err, ErrMalformedLocation) {
				slog.Warn("skipping report with malformed location", "row", i, "error", err)
				res.DroppedLocations++
				continue
			}
			return nil, err
		}
		res.Reports = append(res.Reports, report)
	}

	return res, nil
}

// FetchByID retrieves a single report. The upstream answers with one row in
// the listing layout, or an empty string when the id is unknown.
func (n *Normalizer) FetchByID(ctx context.Context, id string) (*models.NewsReport, error) {
	if id == "" {
		return nil, newsapi.ErrEmptyID
	}

	body, err := n.fetcher.Get(ctx, newsapi.NewsItemPath(id))
	if err != nil {
		if te, ok := newsapi.AsTransportError(err); ok && te.NotFound() {
			return nil, fmt.Errorf("%w: %w", ErrReportNotFound, err)
		}
		return nil, fmt.Errorf("error fetching news %s: %w", id, err)
	}

	switch string(bytes.TrimSpace(body)) {
	case "null", `""`:
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}

	cols, ok := decodeRow(body)
	if !ok {
		return nil, fmt.Errorf("%w: news %s", ErrMalformedRow, id)
	}

	report, err := mapRow(0, cols)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// decodeEnvelope returns the rows under "news". A missing or null field is
// an empty listing.
func decodeEnvelope(body json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidEnvelope)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	news, ok := fields["news"]
	if !ok || isNull(news) {
		return nil, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(news, &rows); err != nil {
		return nil, fmt.Errorf("%w: news is not an array", ErrInvalidEnvelope)
	}
	return rows, nil
}

func decodeRow(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	var cols []json.RawMessage
	if err := json.Unmarshal(trimmed, &cols); err != nil {
		return nil, false
	}
	if len(cols) < rowWidth {
		return nil, false
	}
	return cols, true
}

func mapRow(index int, cols []json.RawMessage) (models.NewsReport, error) {
	id := asString(cols[colID])

	loc, err := parseLocation(cols[colLocation])
	if err != nil {
		return models.NewsReport{}, &MalformedLocationError{
			Row:      index,
			ReportID: id,
			Raw:      asString(cols[colLocation]),
			Err:      err,
		}
	}

	return models.NewsReport{
		ID:          id,
		AuthorID:    asString(cols[colAuthorID]),
		CoverImage:  asString(cols[colCoverImage]),
		Title:       asString(cols[colTitle]),
		Description: asString(cols[colDescription]),
		Time:        asString(cols[colTime]),
		Location:    loc,
		Views:       asNumber(cols[colViews]),
		Reaction:    asString(cols[colReaction]),
	}, nil
}

// parseLocation decodes the JSON text held in the location column.
func parseLocation(raw json.RawMessage) (models.GeoCoordinate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(asString(raw)), &fields); err != nil {
		return models.GeoCoordinate{}, err
	}

	lat, err := coordinate(fields, "latitude")
	if err != nil {
		return models.GeoCoordinate{}, err
	}
	lon, err := coordinate(fields, "longitude")
	if err != nil {
		return models.GeoCoordinate{}, err
	}

	return models.GeoCoordinate{Latitude: lat, Longitude: lon}, nil
}

func coordinate(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	v := asNumber(raw)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%s is not numeric: %s", name, raw)
	}
	return v, nil
}
