package syncqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
)

const (
	DefaultBatchSize        = 10
	DefaultMaxRetries       = 5
	DefaultCleanupAfterDays = 7
	DefaultDeadListLimit    = 50
	maxDeadListLimit        = 500

	skippedSuperseded = "superseded"
	leaseExpiredError = "claim lease expired before the job finished"
)

// JobResult is the per-job outcome of one ProcessSyncQueue pass.
type JobResult struct {
	ID         uuid.UUID        `json:"id"`
	Action     enums.SyncAction `json:"action"`
	ChannelID  uuid.UUID        `json:"channelId"`
	Success    bool             `json:"success"`
	ExternalID string           `json:"externalId,omitempty"`
	Error      string           `json:"error,omitempty"`
	Skipped    string           `json:"skipped,omitempty"`
}

// QueueStatus counts jobs per state. Dead jobs are FAILED rows at the retry
// bound and are excluded from Failed.
type QueueStatus struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Completed  int64 `json:"completed"`
	Dead       int64 `json:"dead"`
}

type JobDTO struct {
	ID           uuid.UUID        `json:"id"`
	VariantID    *uuid.UUID       `json:"variantId,omitempty"`
	ChannelID    uuid.UUID        `json:"channelId"`
	Action       enums.SyncAction `json:"action"`
	Status       enums.SyncStatus `json:"status"`
	Payload      json.RawMessage  `json:"payload"`
	RetryCount   int              `json:"retryCount"`
	ErrorMessage *string          `json:"errorMessage,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	ProcessedAt  *time.Time       `json:"processedAt,omitempty"`
}

func ToJobDTO(job models.SyncJob) JobDTO {
	return JobDTO{
		ID:           job.ID,
		VariantID:    job.VariantID,
		ChannelID:    job.ChannelID,
		Action:       job.Action,
		Status:       job.Status,
		Payload:      job.Payload,
		RetryCount:   job.RetryCount,
		ErrorMessage: job.ErrorMessage,
		Result:       job.Result,
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
	}
}

func ToJobDTOs(jobs []models.SyncJob) []JobDTO {
	out := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, ToJobDTO(job))
	}
	return out
}

type stockPayload struct {
	ExternalID string     `json:"externalId"`
	Quantity   int        `json:"quantity"`
	ListingID  *uuid.UUID `json:"listingId,omitempty"`
}

type pricePayload struct {
	ExternalID string          `json:"externalId"`
	Price      decimal.Decimal `json:"price"`
	ListingID  *uuid.UUID      `json:"listingId,omitempty"`
}

type listingRef struct {
	ExternalID string     `json:"externalId,omitempty"`
	ListingID  *uuid.UUID `json:"listingId,omitempty"`
}
