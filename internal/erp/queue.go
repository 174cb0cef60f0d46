package erp

import (
	"context"
	"fmt"
)

const (
	DefaultQueueBatchModel = "spp.print.queue.batch"
	DefaultIDQueueModel    = "spp.print.queue.id"
)

// QueueCardsClient reads and updates ID card print queues.
type QueueCardsClient struct {
	*Client
	batchModel string
	idModel    string
}

func NewQueueCardsClient(client *Client, batchModel, idModel string) *QueueCardsClient {
	if batchModel == "" {
		batchModel = DefaultQueueBatchModel
	}
	if idModel == "" {
		idModel = DefaultIDQueueModel
	}
	return &QueueCardsClient{Client: client, batchModel: batchModel, idModel: idModel}
}

// GetQueueBatch fetches the batch record with its queued ids.
func (q *QueueCardsClient) GetQueueBatch(ctx context.Context, batchID int64) ([]Record, error) {
	return q.FetchAll(ctx, q.batchModel, Domain{[]interface{}{"id", "=", batchID}}, []string{"queued_ids"})
}

// GetIDQueuePDFs returns the id_pdf value of every queued ID in a batch.
// Missing batches, empty queues and records without a PDF yield nothing.
func (q *QueueCardsClient) GetIDQueuePDFs(ctx context.Context, batchID int64) ([]string, error) {
	batch, err := q.GetQueueBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		q.log.Info(ctx, "Batch has an empty record", "batch_id", batchID)
		return nil, nil
	}

	queued := batch[0].IDs("queued_ids")
	if len(queued) == 0 {
		q.log.Info(ctx, "Batch has no queue IDs", "batch_id", batchID)
		return nil, nil
	}

	records, err := q.FetchAll(ctx, q.idModel, Domain{[]interface{}{"id", "in", queued}}, []string{"id_pdf"})
	if err != nil {
		return nil, err
	}

	pdfs := make([]string, 0, len(records))
	for _, rec := range records {
		pdf, ok := rec.String("id_pdf")
		if !ok || pdf == "" {
			q.log.Warn(ctx, "ID queue record has no PDF", "batch_id", batchID, "id", rec.ID())
			continue
		}
		pdfs = append(pdfs, pdf)
	}
	return pdfs, nil
}

// UpdateQueueBatchRecord writes data onto the batch record.
func (q *QueueCardsClient) UpdateQueueBatchRecord(ctx context.Context, batchID int64, data map[string]interface{}) error {
	if _, err := q.Write(ctx, q.batchModel, []int64{batchID}, data); err != nil {
		return fmt.Errorf("failed to update batch %d: %w", batchID, err)
	}
	return nil
}
