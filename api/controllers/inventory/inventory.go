package inventory

import (
	"net/http"

	"github.com/angelmondragon/stocksync-backend/api/middleware"
	"github.com/angelmondragon/stocksync-backend/api/responses"
	"github.com/angelmondragon/stocksync-backend/api/validators"
	internalinventory "github.com/angelmondragon/stocksync-backend/internal/inventory"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const maxHistoryLimit = 500

type adjustRequest struct {
	QuantityChange int    `json:"quantityChange" validate:"ne=0"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

type thresholdRequest struct {
	Threshold *int `json:"minStockThreshold" validate:"required,gte=0"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
	Quantity  int  `json:"quantity"`
}

// List returns every inventory record, or only low-stock rows when lowStockOnly=true.
func List(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lowOnly, err := validators.QueryBool(r, "lowStockOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := svc.ListInventory(r.Context(), lowOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToRecordDTOs(records))
	}
}

func LowStock(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.GetLowStockItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToRecordDTOs(records))
	}
}

func Detail(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetInventory(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToRecordDTO(*record))
	}
}

// Adjust applies a manual correction attributed to the calling operator.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adjustRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.OperatorIDFromContext(r.Context())
		ctx := logg.WithVariantID(r.Context(), variantID.String())
		record, err := svc.AdjustStock(ctx, internalinventory.AdjustInput{
			VariantID: variantID,
			Delta:     body.QuantityChange,
			Reason:    validators.CleanText(body.Reason, 500),
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToRecordDTO(*record))
	}
}

func UpdateThreshold(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body thresholdRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.UpdateMinStockThreshold(r.Context(), variantID, *body.Threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToRecordDTO(*record))
	}
}

// Transactions returns the ledger history for a variant, newest first.
func Transactions(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: internalinventory.DefaultHistoryLimit, Min: 1, Max: maxHistoryLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.GetTransactionHistory(r.Context(), variantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinventory.ToTransactionDTOs(rows))
	}
}

func Availability(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := validators.QueryInt(r, "quantity", validators.IntRange{Default: 1, Min: 1, Max: 1_000_000})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.CheckAvailability(r.Context(), variantID, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availabilityResponse{Available: ok, Quantity: qty})
	}
}
