package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mr1hm/go-disaster-news/internal/models"
)

// NewsPath is the listing endpoint. Its response is {"news": [row, ...]}.
const NewsPath = "news"

func NewsItemPath(id string) string {
	return NewsPath + "/" + url.PathEscape(id)
}

// newsUpdateBody is the upstream wire shape. The location travels as a
// JSON-encoded string, the same way the listing returns it.
type newsUpdateBody struct {
	CoverLink string `json:"cover_link"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	Location  string `json:"location"`
	Views     int    `json:"views"`
}

func (c *Client) ListNews(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, NewsPath)
}

func (c *Client) GetNewsByID(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return c.Get(ctx, NewsItemPath(id))
}

func (c *Client) UpdateNews(ctx context.Context, id string, u models.NewsUpdate) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	loc, err := json.Marshal(u.Location)
	if err != nil {
		return nil, fmt.Errorf("error encoding location: %w", err)
	}

	return c.Put(ctx, NewsItemPath(id), newsUpdateBody{
		CoverLink: u.CoverLink,
		Title:     u.Title,
		Subtitle:  u.Subtitle,
		Location:  string(loc),
		Views:     u.Views,
	})
}
