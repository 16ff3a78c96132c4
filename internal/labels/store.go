// Package labels renders barcode label sheets for printing.
package labels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/products"
)

// DefaultTTL is how long jobs and rendered sheets are kept.
const DefaultTTL = 24 * time.Hour

// ErrJobNotFound is returned for unknown or expired label jobs.
var ErrJobNotFound = fmt.Errorf("labels: job %w", httpx.ErrNotFound)

// ErrSheetTooLarge is returned for jobs above products.MaxLabelsPerJob.
var ErrSheetTooLarge = errors.New("labels: job exceeds the label limit")

// ErrRenderFailed is returned when a sheet could not be produced.
var ErrRenderFailed = errors.New("labels: render failed")

// Status tracks a job through the renderer.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Item is the product snapshot printed on a label.
type Item struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Barcode   string  `json:"barcode"`
	SalePrice float64 `json:"sale_price"`
}

// Job is a label sheet request.
type Job struct {
	ID         string    `json:"id"`
	Items      []Item    `json:"items"`
	Quantity   int       `json:"quantity"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	RenderedAt time.Time `json:"rendered_at,omitempty"`
}

// LabelCount is the number of labels on the sheet. ok is false when the
// job is above products.MaxLabelsPerJob.
func (j Job) LabelCount() (n int, ok bool) {
	return products.LabelCount(len(j.Items), j.Quantity)
}

// NewJob snapshots the products of a label request.
func NewJob(in products.LabelJob, now time.Time) Job {
	items := make([]Item, 0, len(in.Products))
	for _, p := range in.Products {
		items = append(items, Item{ProductID: p.ID, Name: p.Name, Barcode: p.Barcode, SalePrice: p.SalePrice})
	}
	return Job{ID: in.ID, Items: items, Quantity: in.Quantity, Status: StatusPending, CreatedAt: now.UTC()}
}

// Store keeps jobs and rendered PDFs in Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewStore constructs a Store. ttl <= 0 selects DefaultTTL.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, now: time.Now}
}

func jobKey(id string) string { return "labels:job:" + id }
func pdfKey(id string) string { return "labels:pdf:" + id }

// Save writes the job record.
func (s *Store) Save(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("labels: encode job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("labels: save job: %w", err)
	}
	return nil
}

// Load reads a job record.
func (s *Store) Load(ctx context.Context, id string) (Job, error) {
	if id == "" {
		return Job{}, ErrJobNotFound
	}
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("labels: load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("labels: decode job: %w", err)
	}
	return job, nil
}

// Complete stores the rendered sheet and marks the job ready.
func (s *Store) Complete(ctx context.Context, id string, pdf []byte) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	job.Status = StatusReady
	job.Error = ""
	job.RenderedAt = s.now().UTC()
	if err := s.client.Set(ctx, pdfKey(id), pdf, s.ttl).Err(); err != nil {
		return fmt.Errorf("labels: save pdf: %w", err)
	}
	return s.Save(ctx, job)
}

// Fail marks the job as failed with a short reason.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	job, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.Error = reason
	return s.Save(ctx, job)
}

// LabelPDF returns the rendered sheet. ready is false while the job is pending.
func (s *Store) LabelPDF(ctx context.Context, id string) ([]byte, bool, error) {
	job, err := s.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch job.Status {
	case StatusPending:
		return nil, false, nil
	case StatusFailed:
		return nil, false, fmt.Errorf("%w: %s", ErrRenderFailed, job.Error)
	}
	pdf, err := s.client.Get(ctx, pdfKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, ErrJobNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("labels: load pdf: %w", err)
	}
	return pdf, true, nil
}

var _ products.LabelSheets = (*Store)(nil)
