package coinbasepro

import (
	"context"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tally/errs"
)

// Pager walks a cursor-paginated endpoint. It is single use and not safe for concurrent calls.
type Pager struct {
	client   *Client
	endpoint string
	query    url.Values
	limit    int
	done     bool
}

// Paginate returns a pager over endpoint. The limit is clamped to PaginationLimit.
func (c *Client) Paginate(endpoint string, query url.Values, limit int) *Pager {
	if limit <= 0 || limit > PaginationLimit {
		limit = PaginationLimit
	}
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("limit", strconv.Itoa(limit))
	return &Pager{client: c, endpoint: endpoint, query: q, limit: limit}
}

// Next fetches the following page. It reports false once the sequence is exhausted; empty pages
// are never returned. After an error the pager is finished.
func (p *Pager) Next(ctx context.Context) ([]json.RawMessage, bool, error) {
	if p.done {
		return nil, false, nil
	}
	resp, err := p.client.Query(ctx, Request{Endpoint: p.endpoint, Query: p.query})
	if err != nil {
		p.done = true
		return nil, false, err
	}
	var page []json.RawMessage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		p.done = true
		return nil, false, errs.New(p.client.exchange, errs.CodeRemote,
			errs.WithMessage("expected a list from "+p.endpoint),
			errs.WithCause(err))
	}
	if len(page) == 0 {
		p.done = true
		return nil, false, nil
	}
	if resp.Cursor == "" || len(page) < p.limit {
		p.done = true
	} else {
		p.query.Set("after", resp.Cursor)
	}
	return page, true, nil
}

// collect drains the pager into one slice.
func collect(ctx context.Context, p *Pager) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for {
		page, ok, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, page...)
	}
}
