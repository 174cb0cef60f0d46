package api

import (
	"strconv"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/gofiber/fiber/v2"
)

// BatchHandler queues print batch merges for the worker
type BatchHandler struct {
	cache Cache
	log   logging.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(deps Deps) *BatchHandler {
	return &BatchHandler{cache: deps.Cache, log: deps.Logger}
}

// EnqueueMerge handles POST /v1/batches/:id/merge - schedules the merge of a batch's ID PDFs
func (h *BatchHandler) EnqueueMerge(c *fiber.Ctx) error {
	batchID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || batchID <= 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid batch ID",
		})
	}

	if h.cache == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "merge queue unavailable",
		})
	}

	jobID, err := h.cache.EnqueueMergeJob(c.UserContext(), batchID)
	if err != nil {
		h.log.Error(c.UserContext(), "Failed to enqueue merge job", "batch_id", batchID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to enqueue merge",
		})
	}

	return c.Status(202).JSON(fiber.Map{
		"batch_id": batchID,
		"job_id":   jobID,
		"status":   "queued",
	})
}
