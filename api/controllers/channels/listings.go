package channels

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	"github.com/angelmondragon/stocksync-backend/api/validators"
	internalchannels "github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/syncqueue"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type createListingRequest struct {
	VariantID  string          `json:"variantId" validate:"required,uuid"`
	ChannelID  string          `json:"channelId" validate:"required,uuid"`
	Price      decimal.Decimal `json:"price"`
	ChannelSKU *string         `json:"channelSku,omitempty" validate:"omitempty,max=255"`
}

type updateListingRequest struct {
	Price      *decimal.Decimal `json:"price,omitempty"`
	IsActive   *bool            `json:"isActive,omitempty"`
	ChannelSKU *string          `json:"channelSku,omitempty" validate:"omitempty,max=255"`
}

// listingResponse pairs a listing with the sync job queued for it, if any.
type listingResponse struct {
	Listing internalchannels.ListingDTO `json:"listing"`
	SyncJob *syncqueue.JobDTO           `json:"syncJob,omitempty"`
}

func ListListings(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.QueryUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := validators.QueryUUID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListListings(r.Context(), internalchannels.ListingFilters{ChannelID: channelID, VariantID: variantID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchannels.ToListingDTOs(rows))
	}
}

// CreateListing publishes a variant on a channel and queues the CREATE_LISTING job.
func CreateListing(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createListingRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var channelSKU *string
		if body.ChannelSKU != nil {
			sku := validators.CleanText(*body.ChannelSKU, 255)
			channelSKU = &sku
		}
		listing, job, err := svc.CreateListing(r.Context(), internalchannels.CreateListingInput{
			VariantID:  uuid.MustParse(body.VariantID),
			ChannelID:  uuid.MustParse(body.ChannelID),
			Price:      body.Price,
			ChannelSKU: channelSKU,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := listingResponse{Listing: internalchannels.ToListingDTO(*listing)}
		if job != nil {
			dto := syncqueue.ToJobDTO(*job)
			resp.SyncJob = &dto
		}
		responses.WriteCreated(w, resp)
	}
}

func DetailListing(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := validators.PathUUID(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.GetListing(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchannels.ToListingDTO(*listing))
	}
}

// UpdateListing patches a listing; a price change queues UPDATE_PRICE.
func UpdateListing(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := validators.PathUUID(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateListingRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, job, err := svc.UpdateListing(r.Context(), listingID, internalchannels.UpdateListingInput{
			Price:      body.Price,
			IsActive:   body.IsActive,
			ChannelSKU: body.ChannelSKU,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := listingResponse{Listing: internalchannels.ToListingDTO(*listing)}
		if job != nil {
			dto := syncqueue.ToJobDTO(*job)
			resp.SyncJob = &dto
		}
		responses.WriteSuccess(w, resp)
	}
}

// DeleteListing removes a listing and returns the DELETE_LISTING job when one was queued.
func DeleteListing(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := validators.PathUUID(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job, err := svc.DeleteListing(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if job == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, syncqueue.ToJobDTO(*job))
	}
}
