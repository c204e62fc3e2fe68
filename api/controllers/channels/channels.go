package channels

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	"github.com/angelmondragon/stocksync-backend/api/validators"
	internalchannels "github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type createChannelRequest struct {
	Name           string          `json:"name" validate:"required,channel"`
	DisplayName    string          `json:"displayName" validate:"max=255"`
	IsActive       *bool           `json:"isActive,omitempty"`
	APICredentials json.RawMessage `json:"apiCredentials,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

type updateChannelRequest struct {
	DisplayName    *string         `json:"displayName,omitempty" validate:"omitempty,max=255"`
	IsActive       *bool           `json:"isActive,omitempty"`
	APICredentials json.RawMessage `json:"apiCredentials,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

type pushStockRequest struct {
	VariantID string `json:"variantId" validate:"required,uuid"`
	Quantity  *int   `json:"quantity" validate:"required,gte=0"`
}

type connectionResponse struct {
	Connected bool `json:"connected"`
}

// List returns configured channels; activeOnly=true hides deactivated ones.
func List(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly, err := validators.QueryBool(r, "activeOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListChannels(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchannels.ToChannelDTOs(rows))
	}
}

func Create(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createChannelRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		channel, err := svc.CreateChannel(r.Context(), internalchannels.CreateChannelInput{
			Name:           body.Name,
			DisplayName:    validators.CleanText(body.DisplayName, 255),
			IsActive:       body.IsActive,
			APICredentials: body.APICredentials,
			Config:         body.Config,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, internalchannels.ToChannelDTO(*channel))
	}
}

func Detail(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.PathUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		channel, err := svc.GetChannel(r.Context(), channelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchannels.ToChannelDTO(*channel))
	}
}

func Update(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.PathUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateChannelRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		channel, err := svc.UpdateChannel(r.Context(), channelID, internalchannels.UpdateChannelInput{
			DisplayName:    body.DisplayName,
			IsActive:       body.IsActive,
			APICredentials: body.APICredentials,
			Config:         body.Config,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchannels.ToChannelDTO(*channel))
	}
}

// Delete removes a channel. The service refuses while listings still reference it.
func Delete(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.PathUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteChannel(r.Context(), channelID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TestConnection asks the channel's adapter whether its credentials work.
func TestConnection(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.PathUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.TestConnection(r.Context(), channelID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, connectionResponse{Connected: ok})
	}
}

// PushStock sends a quantity to one channel right away instead of queueing it.
func PushStock(svc internalchannels.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, err := validators.PathUUID(r, "channelId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body pushStockRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID := uuid.MustParse(body.VariantID)
		if err := svc.UpdateChannelStock(r.Context(), variantID, channelID, *body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
