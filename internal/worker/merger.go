package worker

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/cache"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
)

// JobSource yields pending merge jobs
type JobSource interface {
	ReadMergeJobs(ctx context.Context, count int) ([]cache.MergeJob, error)
}

// QueueClient reads queued ID PDFs and stores the merged result
type QueueClient interface {
	GetIDQueuePDFs(ctx context.Context, batchID int64) ([]string, error)
	UpdateQueueBatchRecord(ctx context.Context, batchID int64, data map[string]interface{}) error
}

// MergeObserver records merge outcomes
type MergeObserver interface {
	ObserveMerge(status string)
}

type MergerConfig struct {
	Interval  time.Duration
	BatchSize int
	TempRoot  string
	Logger    logging.Logger
	Observer  MergeObserver
}

// Merger consumes merge jobs and uploads one merged PDF per print batch
type Merger struct {
	jobs      JobSource
	queue     QueueClient
	interval  time.Duration
	batchSize int
	tempRoot  string
	log       logging.Logger
	observer  MergeObserver
}

// NewMerger creates a new batch merger
func NewMerger(jobs JobSource, queue QueueClient, cfg MergerConfig) *Merger {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Merger{
		jobs:      jobs,
		queue:     queue,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		tempRoot:  cfg.TempRoot,
		log:       cfg.Logger,
		observer:  cfg.Observer,
	}
}

// Start polls the merge stream until ctx is cancelled
func (m *Merger) Start(ctx context.Context) {
	m.log.Info(ctx, "Merge worker started", "stream", cache.MergeStream, "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info(context.Background(), "Merge worker shutting down")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll processes one batch of jobs from the stream. Jobs returned alongside
// a read error have already left the stream and are still merged.
func (m *Merger) poll(ctx context.Context) {
	jobs, err := m.jobs.ReadMergeJobs(ctx, m.batchSize)
	if err != nil {
		m.log.Error(ctx, "Error reading merge jobs", "error", err, "pending", len(jobs))
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := m.MergeBatch(ctx, job.BatchID); err != nil {
			m.log.Error(ctx, "Error merging batch", "batch_id", job.BatchID, "job_id", job.ID, "error", err)
		}
	}
}

// MergeBatch merges every queued ID PDF of a batch, in queue order, and writes
// the result back as bare base64 on the batch's id_pdf field.
func (m *Merger) MergeBatch(ctx context.Context, batchID int64) (err error) {
	status := "success"
	defer func() {
		if err != nil {
			status = "error"
		}
		if m.observer != nil {
			m.observer.ObserveMerge(status)
		}
	}()

	pdfs, err := m.queue.GetIDQueuePDFs(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to fetch queued PDFs: %w", err)
	}
	if len(pdfs) == 0 {
		status = "empty"
		m.log.Info(ctx, "Batch has no cards available", "batch_id", batchID)
		return nil
	}

	var merged []byte
	err = render.WithWorkspace(m.tempRoot, func(ws *render.Workspace) error {
		paths := make([]string, 0, len(pdfs))
		for i, value := range pdfs {
			data, err := render.DecodeBase64Document(value)
			if err != nil {
				return fmt.Errorf("PDF %d: %w", i, err)
			}
			if err := convert.ValidatePDF(data); err != nil {
				return fmt.Errorf("PDF %d: %w", i, err)
			}
			p, err := ws.WriteFile(fmt.Sprintf("%04d.pdf", i), data)
			if err != nil {
				return err
			}
			paths = append(paths, p)
		}

		result := ws.Path("result.pdf")
		if err := convert.MergePDFs(paths, result); err != nil {
			return err
		}
		merged, err = os.ReadFile(result)
		if err != nil {
			return fmt.Errorf("failed to read merged PDF: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(merged)
	if err := m.queue.UpdateQueueBatchRecord(ctx, batchID, map[string]interface{}{"id_pdf": encoded}); err != nil {
		return err
	}

	m.log.Info(ctx, "Batch updated with merged cards", "batch_id", batchID, "cards", len(pdfs))
	return nil
}
