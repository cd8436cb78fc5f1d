package payment

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/obs"
)

// CallbackResolver settles one verified callback.
type CallbackResolver interface {
	ResolveCallback(ctx context.Context, fields CallbackFields) (Transaction, error)
}

// Webhook receives the gateway's purchase result on CallbackPath. The route
// is public: the purchase signature is the only authentication.
type Webhook struct {
	Resolver  CallbackResolver
	Replay    redis.Cmdable
	ReplayTTL time.Duration
}

type callbackResp struct {
	Reference string  `json:"reference"`
	State     TxState `json:"state,omitempty"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// Handle processes callbacks delivered as form posts, JSON bodies or query strings.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	fields, err := ParseCallbackRequest(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	log.Info().
		Str("provider", ProviderWenjoy).
		Interface("fields", fields.Raw).
		Msg("wenjoy callback received")
	obs.Annotate(ctx, "purchase_description", fields.Description)
	obs.Annotate(ctx, "purchase_state", fields.State)

	if err := fields.Validate(); err != nil {
		log.Warn().Err(err).Msg("wenjoy callback rejected")
		common.WriteError(w, err, "CALLBACK_ERROR")
		return
	}

	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = "wj:" + common.FieldsDigest(fields.Raw)
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			obs.Annotate(ctx, "callback_duplicate", "true")
			log.Info().Str("reference", fields.Description).Msg("wenjoy duplicate callback acknowledged")
			h.respond(w, r, callbackResp{Reference: fields.Description, Duplicate: true})
			return
		}
	}

	tx, err := h.Resolver.ResolveCallback(ctx, fields)
	if err != nil {
		if replayKey != "" {
			// Let the gateway's retry through.
			_ = h.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
		log.Warn().Err(err).Str("reference", fields.Description).Msg("wenjoy callback rejected")
		common.WriteError(w, err, "CALLBACK_ERROR")
		return
	}
	obs.Annotate(ctx, "tx_state", string(tx.State))
	h.respond(w, r, callbackResp{Reference: tx.Reference, State: tx.State})
}

func (h Webhook) respond(w http.ResponseWriter, r *http.Request, body callbackResp) {
	if common.WantsJSON(r) {
		common.JSON(w, http.StatusOK, body)
		return
	}
	http.Redirect(w, r, ProcessPath, http.StatusFound)
}
