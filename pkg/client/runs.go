package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/turtacn/kgeval/internal/domain/run"
)

// Run is a stored validation run.
type Run = run.Record

// RelationOutcome is the chosen margin of one relation of a Run.
type RelationOutcome = run.RelationOutcome

// ListRunsOptions filters RunsClient.List.  Zero fields are omitted.
type ListRunsOptions struct {
	Dataset  string
	NetName  string
	Page     int
	PageSize int
}

func (o ListRunsOptions) query() string {
	q := url.Values{}
	if o.Dataset != "" {
		q.Set("dataset", o.Dataset)
	}
	if o.NetName != "" {
		q.Set("net_name", o.NetName)
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// RunPage is one page of runs, newest first.
type RunPage struct {
	Runs     []*Run `json:"runs"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// RunsClient reads /api/v1/runs.
type RunsClient struct {
	client *Client
}

// List returns one page of runs.
func (rc *RunsClient) List(ctx context.Context, opts ListRunsOptions) (*RunPage, error) {
	var page RunPage
	if err := rc.client.get(ctx, "/api/v1/runs"+opts.query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns one run.  An unknown id is an *APIError with IsNotFound.
func (rc *RunsClient) Get(ctx context.Context, id string) (*Run, error) {
	var r Run
	if err := rc.client.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
