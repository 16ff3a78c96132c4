package labels

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/barcode"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/view"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Barcode image size in pixels, before the sheet's CSS scales it.
const (
	barWidth  = 360
	barHeight = 90
)

// Converter turns HTML into a PDF. report.Client satisfies it.
type Converter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer produces label sheets for queued jobs.
type Renderer struct {
	store     *Store
	converter Converter
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewRenderer constructs a Renderer.
func NewRenderer(store *Store, converter Converter, metrics *jobmetrics.Metrics, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{store: store, converter: converter, metrics: metrics, logger: logger}
}

type label struct {
	Name    string
	Barcode string
	Price   string
	Image   template.URL
}

var sheetTemplate = template.Must(template.New("sheet").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Labels {{.JobID}}</title>
<style>
@page { size: A4; margin: 8mm; }
body { font-family: sans-serif; margin: 0; }
.sheet { display: grid; grid-template-columns: repeat(3, 1fr); gap: 4mm; }
.label { border: 1px dashed #999; padding: 2mm; text-align: center; page-break-inside: avoid; }
.label img { width: 100%; height: 14mm; }
.name { font-size: 9pt; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
.code { font-family: monospace; font-size: 8pt; }
.price { font-weight: bold; font-size: 10pt; }
</style></head>
<body><div class="sheet">
{{range .Labels}}<div class="label"><div class="name">{{.Name}}</div><img src="{{.Image}}" alt="{{.Barcode}}"><div class="code">{{.Barcode}}</div><div class="price">{{.Price}}</div></div>
{{end}}</div></body></html>
`))

// SheetHTML lays out Quantity copies of every item.
func SheetHTML(job Job) (string, error) {
	total, ok := job.LabelCount()
	if !ok {
		return "", ErrSheetTooLarge
	}
	copies := max(job.Quantity, 1)
	images := make(map[string]template.URL, len(job.Items))
	labels := make([]label, 0, total)
	for _, item := range job.Items {
		img, ok := images[item.Barcode]
		if !ok {
			png, err := barcode.Code128PNG(item.Barcode, barWidth, barHeight)
			if err != nil {
				return "", fmt.Errorf("labels: barcode %q: %w", item.Barcode, err)
			}
			img = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
			images[item.Barcode] = img
		}
		for range copies {
			labels = append(labels, label{Name: item.Name, Barcode: item.Barcode, Price: view.FormatMoney(item.SalePrice), Image: img})
		}
	}
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, map[string]any{"JobID": job.ID, "Labels": labels}); err != nil {
		return "", fmt.Errorf("labels: execute sheet: %w", err)
	}
	return buf.String(), nil
}

// Render builds and stores the PDF for one job.
func (r *Renderer) Render(ctx context.Context, jobID string) error {
	job, err := r.store.Load(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == StatusReady {
		return nil
	}
	html, err := SheetHTML(job)
	if err != nil {
		return err
	}
	pdf, err := r.converter.RenderHTML(ctx, html)
	if err != nil {
		return fmt.Errorf("labels: convert: %w", err)
	}
	if err := r.store.Complete(ctx, jobID, pdf); err != nil {
		return err
	}
	total, _ := job.LabelCount()
	r.metrics.AddLabels(total)
	r.logger.Info("label sheet rendered", slog.String("job_id", jobID), slog.Int("labels", total))
	return nil
}

// HandleRenderTask processes jobs.TaskLabelRender. The job is marked failed
// once asynq gives up retrying.
func (r *Renderer) HandleRenderTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.LabelRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := r.metrics.Track("labels_render")
	err := r.Render(ctx, payload.JobID)
	switch {
	case err == nil:
	case errors.Is(err, ErrJobNotFound):
		r.logger.Warn("label job expired", slog.String("job_id", payload.JobID))
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	case errors.Is(err, ErrSheetTooLarge):
		r.logger.Error("label job over limit", slog.String("job_id", payload.JobID))
		if ferr := r.store.Fail(ctx, payload.JobID, "too many labels"); ferr != nil {
			r.logger.Warn("mark label job failed", slog.Any("error", ferr))
		}
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	default:
		r.logger.Error("render label sheet", slog.String("job_id", payload.JobID), slog.Any("error", err))
		if lastAttempt(ctx) {
			if ferr := r.store.Fail(ctx, payload.JobID, "rendering failed"); ferr != nil {
				r.logger.Warn("mark label job failed", slog.Any("error", ferr))
			}
		}
	}
	return tracker.End(err)
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= limit
}
