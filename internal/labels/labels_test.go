package labels_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/labels"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/products"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func newStore(t *testing.T) (*labels.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return labels.NewStore(client, time.Hour), mr
}

func labelJob(id string, quantity int) products.LabelJob {
	return products.LabelJob{
		ID: id,
		Products: []products.Product{
			{ID: 1, Name: "Digital Thermometer", Barcode: "8991234567890", SalePrice: 45000},
			{ID: 2, Name: "Masker N95", Barcode: "MSK-95", SalePrice: 15000},
		},
		Quantity: quantity,
	}
}

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueLabelRender(ctx context.Context, jobID string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ids = append(f.ids, jobID)
	return &asynq.TaskInfo{ID: "labels:" + jobID}, nil
}

type fakeConverter struct {
	html string
	err  error
}

func (f *fakeConverter) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 labels"), nil
}

func TestQueueStoresPendingJob(t *testing.T) {
	store, mr := newStore(t)
	enq := &fakeEnqueuer{}
	q := labels.NewQueue(store, enq)

	require.NoError(t, q.EnqueueLabels(context.Background(), labelJob("job-1", 3)))
	assert.Equal(t, []string{"job-1"}, enq.ids)
	assert.True(t, mr.Exists("labels:job:job-1"))
	assert.Equal(t, time.Hour, mr.TTL("labels:job:job-1"))

	pdf, ready, err := store.LabelPDF(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Nil(t, pdf)

	job, err := store.Load(context.Background(), "job-1")
	require.NoError(t, err)
	n, ok := job.LabelCount()
	require.True(t, ok)
	assert.Equal(t, 6, n)
}

func TestQueueMarksJobFailedWhenEnqueueFails(t *testing.T) {
	store, _ := newStore(t)
	q := labels.NewQueue(store, &fakeEnqueuer{err: errors.New("redis down")})

	require.Error(t, q.EnqueueLabels(context.Background(), labelJob("job-2", 1)))
	_, _, err := store.LabelPDF(context.Background(), "job-2")
	assert.ErrorIs(t, err, labels.ErrRenderFailed)
}

func TestUnknownJob(t *testing.T) {
	store, _ := newStore(t)
	_, _, err := store.LabelPDF(context.Background(), "nope")
	assert.ErrorIs(t, err, labels.ErrJobNotFound)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestSheetHTMLRepeatsLabels(t *testing.T) {
	job := labels.NewJob(labelJob("job-3", 3), time.Now())
	html, err := labels.SheetHTML(job)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(html, `<div class="label">`))
	assert.Contains(t, html, "data:image/png;base64,")
	assert.Contains(t, html, "45,000.00")
	assert.Contains(t, html, "Masker N95")
}

func task(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	tk, err := jobs.NewLabelRenderTask(jobID)
	require.NoError(t, err)
	return tk
}

func TestRenderTaskStoresPDF(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.Save(context.Background(), labels.NewJob(labelJob("job-4", 2), time.Now())))
	conv := &fakeConverter{}
	r := labels.NewRenderer(store, conv, nil, nil)

	require.NoError(t, r.HandleRenderTask(context.Background(), task(t, "job-4")))
	pdf, ready, err := store.LabelPDF(context.Background(), "job-4")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, "%PDF-1.7 labels", string(pdf))
	assert.Equal(t, 4, strings.Count(conv.html, `<div class="label">`))
}

func TestRenderTaskFailures(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.Save(context.Background(), labels.NewJob(labelJob("job-5", 1), time.Now())))
	r := labels.NewRenderer(store, &fakeConverter{err: errors.New("gotenberg 503")}, nil, nil)

	err := r.HandleRenderTask(context.Background(), task(t, "job-5"))
	require.Error(t, err)
	_, _, err = store.LabelPDF(context.Background(), "job-5")
	assert.ErrorIs(t, err, labels.ErrRenderFailed)

	err = r.HandleRenderTask(context.Background(), task(t, "expired"))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	raw, _ := json.Marshal("not an object")
	err = r.HandleRenderTask(context.Background(), asynq.NewTask(jobs.TaskLabelRender, raw))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSheetHTMLRejectsOversizeJobs(t *testing.T) {
	job := labels.NewJob(labelJob("huge", 1<<62), time.Now())
	_, err := labels.SheetHTML(job)
	assert.ErrorIs(t, err, labels.ErrSheetTooLarge)

	job = labels.NewJob(labelJob("edge", products.MaxLabelsPerJob/2+1), time.Now())
	_, ok := job.LabelCount()
	assert.False(t, ok)
}

func TestRenderTaskFailsOversizeJobWithoutRetry(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.Save(context.Background(), labels.NewJob(labelJob("job-6", 1<<40), time.Now())))
	conv := &fakeConverter{}
	r := labels.NewRenderer(store, conv, nil, nil)

	err := r.HandleRenderTask(context.Background(), task(t, "job-6"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, conv.html)
	_, _, err = store.LabelPDF(context.Background(), "job-6")
	assert.ErrorIs(t, err, labels.ErrRenderFailed)
}
