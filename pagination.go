package repo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// =====================================
// Pagination
// =====================================

// PaginationMethod selects the pagination style
type PaginationMethod string

const (
	// MethodPaginate counts the total and knows the last page.
	MethodPaginate PaginationMethod = "paginate"
	// MethodSimplePaginate only knows whether a next page exists.
	MethodSimplePaginate PaginationMethod = "simplePaginate"
)

// PageRequest describes the page to fetch and the request it belongs to.
// Query holds the current request's query string; every parameter except
// the page parameter is carried into the generated links.
type PageRequest struct {
	Page     int
	Limit    int
	Path     string
	Query    url.Values
	PageName string
}

// PageRequestFromHTTP reads the page number (and an optional per_page) from r.
func PageRequestFromHTTP(r *http.Request, pageName string) PageRequest {
	if pageName == "" {
		pageName = DefaultPageName
	}
	q := r.URL.Query()
	req := PageRequest{
		Path:     r.URL.Path,
		Query:    q,
		PageName: pageName,
	}
	if page, err := strconv.Atoi(q.Get(pageName)); err == nil {
		req.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil {
		req.Limit = limit
	}
	return req
}

// Normalize fills defaults: page 1, the configured limit and page name.
func (r PageRequest) Normalize(cfg Config) PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit <= 0 {
		r.Limit = cfg.PageLimit()
	}
	if r.PageName == "" {
		r.PageName = cfg.PageName()
	}
	return r
}

// Offset returns the number of rows before the requested page.
func (r PageRequest) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Limit
}

// URL returns the link to page, preserving the request's query parameters.
func (r PageRequest) URL(page int) string {
	q := url.Values{}
	for k, v := range r.Query {
		q[k] = append([]string(nil), v...)
	}
	name := r.PageName
	if name == "" {
		name = DefaultPageName
	}
	q.Set(name, strconv.Itoa(page))
	return r.Path + "?" + q.Encode()
}

// PageLinks holds navigation links; empty strings mean no such page.
type PageLinks struct {
	First string `json:"first"`
	Last  string `json:"last,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Paginator is one page of results
type Paginator[T any] struct {
	Method      PaginationMethod `json:"-"`
	Items       []*T             `json:"data"`
	CurrentPage int              `json:"current_page"`
	PerPage     int              `json:"per_page"`
	// Total and LastPage are only known for MethodPaginate.
	Total    *int64    `json:"total,omitempty"`
	LastPage int       `json:"last_page,omitempty"`
	HasMore  bool      `json:"has_more"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Links    PageLinks `json:"links"`
}

// PageQuery is what a provider supplies to run either pagination style.
type PageQuery[T any] struct {
	// Count returns the total number of matching rows.
	Count func(ctx context.Context) (int64, error)
	// Fetch returns at most limit rows after offset.
	Fetch func(ctx context.Context, limit, offset int) ([]*T, error)
}

// RunPagination runs one page of q with the given method. Simple pagination
// fetches one extra row to learn whether a next page exists and never counts.
func RunPagination[T any](ctx context.Context, method PaginationMethod, cfg Config, req PageRequest, q PageQuery[T]) (*Paginator[T], error) {
	req = req.Normalize(cfg)
	p := &Paginator[T]{
		Method:      method,
		CurrentPage: req.Page,
		PerPage:     req.Limit,
	}

	switch method {
	case MethodPaginate:
		total, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		p.Total = &total
		p.LastPage = int((total + int64(req.Limit) - 1) / int64(req.Limit))
		if p.LastPage < 1 {
			p.LastPage = 1
		}
		items, err := q.Fetch(ctx, req.Limit, req.Offset())
		if err != nil {
			return nil, err
		}
		p.Items = items
		p.HasMore = req.Page < p.LastPage
	case MethodSimplePaginate:
		items, err := q.Fetch(ctx, req.Limit+1, req.Offset())
		if err != nil {
			return nil, err
		}
		if len(items) > req.Limit {
			p.HasMore = true
			items = items[:req.Limit]
		}
		p.Items = items
	default:
		return nil, invalidf("unknown pagination method %q", method)
	}

	if p.Items == nil {
		p.Items = []*T{}
	}
	if len(p.Items) > 0 {
		p.From = req.Offset() + 1
		p.To = req.Offset() + len(p.Items)
	}

	p.Links.First = req.URL(1)
	if p.Total != nil {
		p.Links.Last = req.URL(p.LastPage)
	}
	if req.Page > 1 {
		p.Links.Prev = req.URL(req.Page - 1)
	}
	if p.HasMore {
		p.Links.Next = req.URL(req.Page + 1)
	}
	return p, nil
}
