package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/stocksync-backend/internal/channels"
	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/security"
)

const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"

	DefaultHandlerTimeout = 10 * time.Second

	resultRejected = "rejected"
	resultFailed   = "failed"
)

// Result is what the sender gets back for one delivery.
type Result struct {
	Status      string `json:"status"`
	WebhookID   string `json:"webhookId"`
	Synthesized bool   `json:"synthesized,omitempty"`
}

// ReceiveInput is one raw delivery. Signature is the X-Webhook-Signature header, if any.
type ReceiveInput struct {
	Channel   string
	Payload   []byte
	Signature string
}

type inflightGuard interface {
	Acquire(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type ServiceParams struct {
	Repository Repository
	Guard      inflightGuard
	Adapters   channels.AdapterProvider
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
	Timeout    time.Duration
	// RequireSignature rejects deliveries for channels without a webhookSecret.
	RequireSignature bool
	Now              func() time.Time
}

type Service struct {
	repo             Repository
	guard            inflightGuard
	adapters         channels.AdapterProvider
	metrics          *metrics.WebhookMetrics
	logg             *logger.Logger
	timeout          time.Duration
	requireSignature bool
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook repository required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook guard required")
	}
	if params.Adapters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "adapter provider required")
	}
	svc := &Service{
		repo:             params.Repository,
		guard:            params.Guard,
		adapters:         params.Adapters,
		metrics:          params.Metrics,
		logg:             params.Logger,
		timeout:          params.Timeout,
		requireSignature: params.RequireSignature,
		now:              params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.timeout <= 0 {
		svc.timeout = DefaultHandlerTimeout
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// Receive processes one inbound delivery at most once per webhook id.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (*Result, error) {
	name := strings.ToLower(strings.TrimSpace(input.Channel))
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel required")
	}
	logCtx := s.logg.WithChannel(ctx, name)

	fields, err := decodeObject(input.Payload)
	if err != nil {
		s.metrics.Inc(name, resultRejected)
		return nil, err
	}

	webhookID, synthesized := s.webhookID(name, fields)
	logCtx = s.logg.WithField(logCtx, "webhook_id", webhookID)
	if synthesized {
		s.logg.Warn(logCtx, "webhook payload carried no id; synthesized one, redeliveries will not dedupe")
	}
	result := &Result{WebhookID: webhookID, Synthesized: synthesized}

	done, err := s.repo.IsProcessed(ctx, webhookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check processed webhook")
	}
	if done {
		s.metrics.Inc(name, StatusAlreadyProcessed)
		result.Status = StatusAlreadyProcessed
		return result, nil
	}

	channel, err := s.repo.FindChannelByName(ctx, name)
	if err != nil {
		if repo.IsNotFound(err) {
			s.metrics.Inc(name, resultRejected)
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "channel %q not found", name)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}

	if err := s.verify(channel, input); err != nil {
		s.metrics.Inc(name, resultRejected)
		return nil, err
	}

	scope := "webhook:" + name
	acquired, err := s.guard.Acquire(ctx, scope, webhookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire webhook guard")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "webhook is already being processed")
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), scope, webhookID); err != nil {
			s.logg.Warn(logCtx, "release webhook guard failed")
		}
	}()

	// A concurrent delivery may have finished between the first check and Acquire.
	done, err = s.repo.IsProcessed(ctx, webhookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check processed webhook")
	}
	if done {
		s.metrics.Inc(name, StatusAlreadyProcessed)
		result.Status = StatusAlreadyProcessed
		return result, nil
	}

	if err := s.dispatch(ctx, *channel, input.Payload); err != nil {
		s.metrics.Inc(name, resultFailed)
		s.logg.Error(logCtx, "webhook handler failed", err)
		return nil, err
	}

	marker := &models.ProcessedWebhook{WebhookID: webhookID, ChannelID: channel.ID, ProcessedAt: s.now()}
	if err := s.repo.MarkProcessed(ctx, marker); err != nil {
		if db.IsUniqueViolation(err, "") {
			s.metrics.Inc(name, StatusAlreadyProcessed)
			result.Status = StatusAlreadyProcessed
			return result, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processed webhook")
	}

	s.metrics.Inc(name, StatusProcessed)
	s.logg.Info(logCtx, "webhook processed")
	result.Status = StatusProcessed
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, channel models.SalesChannel, payload []byte) error {
	adapter, err := s.adapters.ForChannel(channel)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAdapter, err, "resolve channel adapter")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := adapter.HandleWebhook(callCtx, json.RawMessage(payload)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAdapter, err, "handle webhook")
	}
	return nil
}

func (s *Service) verify(channel *models.SalesChannel, input ReceiveInput) error {
	secret := webhookSecret(channel.Config)
	if secret == "" {
		if s.requireSignature {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "channel has no webhook secret configured")
		}
		return nil
	}
	if !security.VerifySignature(secret, input.Payload, input.Signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// webhookID prefers the payload's id, then webhook_id, and otherwise makes one up.
func (s *Service) webhookID(channel string, fields map[string]any) (string, bool) {
	for _, key := range []string{"id", "webhook_id"} {
		if id := scalarString(fields[key]); id != "" {
			return id, false
		}
	}
	return fmt.Sprintf("%s_%d_%s", channel, s.now().UnixMilli(), randomSuffix()), true
}

func decodeObject(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload required")
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload must be a json object")
	}
	return fields, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func webhookSecret(config json.RawMessage) string {
	if len(config) == 0 {
		return ""
	}
	var cfg struct {
		WebhookSecret string `json:"webhookSecret"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.WebhookSecret)
}

func randomSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 9)
	for i := range buf {
		buf[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(buf)
}
