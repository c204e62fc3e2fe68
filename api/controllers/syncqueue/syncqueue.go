package syncqueue

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	"github.com/angelmondragon/stocksync-backend/api/validators"
	internalsync "github.com/angelmondragon/stocksync-backend/internal/syncqueue"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const (
	defaultProcessLimit = 10
	maxProcessLimit     = 100
	defaultCleanupDays  = 7
	defaultDeadLimit    = 50
	maxDeadLimit        = 500
)

type processRequest struct {
	Limit *int `json:"limit,omitempty" validate:"omitempty,gt=0,lte=100"`
}

type processResponse struct {
	Processed int                     `json:"processed"`
	Results   []internalsync.JobResult `json:"results"`
}

type cleanupRequest struct {
	OlderThanDays *int `json:"olderThanDays,omitempty" validate:"omitempty,gte=1,lte=365"`
}

type resyncRequest struct {
	VariantIDs []uuid.UUID `json:"variantIds" validate:"required,min=1,max=100"`
}

type resyncResponse struct {
	Queued int      `json:"queued"`
	Failed []string `json:"failed"`
}

type retryResponse struct {
	Reset int64 `json:"reset"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// Process runs one queue pass inline. The sync worker does the same on a timer.
func Process(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body processRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit := defaultProcessLimit
		if body.Limit != nil {
			limit = min(*body.Limit, maxProcessLimit)
		}
		results, err := svc.ProcessSyncQueue(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if results == nil {
			results = []internalsync.JobResult{}
		}
		responses.WriteSuccess(w, processResponse{Processed: len(results), Results: results})
	}
}

func Status(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.GetSyncQueueStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// Resync queues the current stock of each variant to every published listing.
// Variants that fail are reported back without stopping the rest.
func Resync(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resyncRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		queued, err := svc.SyncStockForVariants(r.Context(), body.VariantIDs)
		failed := []string{}
		for _, e := range multierr.Errors(err) {
			failed = append(failed, e.Error())
		}
		if len(failed) > 0 {
			logg.Warn(logg.WithField(r.Context(), "failed", len(failed)), "stock resync partially failed")
		}
		responses.WriteSuccess(w, resyncResponse{Queued: queued, Failed: failed})
	}
}

// Retry re-queues failed jobs that are still under the retry bound.
func Retry(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RetryFailedSyncs(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, retryResponse{Reset: n})
	}
}

func Dead(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: defaultDeadLimit, Min: 1, Max: maxDeadLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		jobs, err := svc.ListDeadJobs(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalsync.ToJobDTOs(jobs))
	}
}

// Cleanup deletes completed jobs processed more than olderThanDays ago.
func Cleanup(svc internalsync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cleanupRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days := defaultCleanupDays
		if body.OlderThanDays != nil {
			days = *body.OlderThanDays
		}
		n, err := svc.ClearCompletedJobs(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cleanupResponse{Deleted: n})
	}
}
