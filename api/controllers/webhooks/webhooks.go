package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stocksync-backend/api/responses"
	internalwebhooks "github.com/angelmondragon/stocksync-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

// SignatureHeader carries the channel's HMAC over the raw body.
const SignatureHeader = "X-Webhook-Signature"

const defaultMaxBodyBytes int64 = 1 << 20

type receiver interface {
	Receive(ctx context.Context, input internalwebhooks.ReceiveInput) (*internalwebhooks.Result, error)
}

// Receive ingests one channel delivery. Replays of an already processed
// event answer 200 with status already_processed.
func Receive(svc receiver, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		channel := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "channel")))
		if channel == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "channel is required"))
			return
		}
		ctx := logg.WithChannel(r.Context(), channel)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read payload"))
			return
		}

		result, err := svc.Receive(ctx, internalwebhooks.ReceiveInput{
			Channel:   channel,
			Payload:   body,
			Signature: r.Header.Get(SignatureHeader),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
