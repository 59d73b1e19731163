// Package run describes a completed validation run as it is persisted,
// published and served.
package run

import (
	"context"
	"time"
)

// RelationOutcome is the chosen margin of one relation.
type RelationOutcome struct {
	Relation int     `json:"relation"`
	Name     string  `json:"name"`
	Margin   int     `json:"margin"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// Record summarises one evaluated epoch.
type Record struct {
	ID         string            `json:"id"`
	Dataset    string            `json:"dataset"`
	NetName    string            `json:"net_name"`
	Epoch      int               `json:"epoch"`
	ModelID    string            `json:"model_id"`
	Backend    string            `json:"backend"`
	Start      int               `json:"margin_start"`
	End        int               `json:"margin_end"`
	Correct    int               `json:"correct"`
	Total      int               `json:"total"`
	Accuracy   float64           `json:"accuracy"`
	Relations  []RelationOutcome `json:"relations"`
	Skipped    []int             `json:"skipped_relations"`
	ReportDir  string            `json:"report_dir"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Duration is FinishedAt - StartedAt.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ListFilter narrows Repository.List.  Zero fields match everything.
type ListFilter struct {
	Dataset string
	NetName string
	Limit   int
	Offset  int
}

// Repository persists run records.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
}

// Publisher announces completed runs.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, rec *Record) error
}
