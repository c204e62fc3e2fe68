package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the order lifecycle and its ledger effects.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params, channelID *uuid.UUID, status *enums.OrderStatus) (*OrderList, error)
	GetOrderStats(ctx context.Context) (*Stats, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	ledger LedgerOperator
	logg   *logger.Logger
}

// NewService builds the order service. Channel stock updates are queued by the
// ledger inside each order transaction.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, ledger LedgerOperator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		ledger: ledger,
		logg:   logg,
	}, nil
}

// CreateOrder inserts the order as PENDING and reserves every item. Any failure,
// including a single short item, rolls the whole order back.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	order := &models.Order{
		ChannelID:       input.ChannelID,
		ExternalOrderID: strings.TrimSpace(input.ExternalOrderID),
		Status:          enums.OrderStatusPending,
		TotalAmount:     input.TotalAmount.Round(2),
		CustomerInfo:    input.CustomerInfo,
		Items:           make([]models.OrderItem, 0, len(input.Items)),
	}
	for _, item := range input.Items {
		unit := item.UnitPrice.Round(2)
		order.Items = append(order.Items, models.OrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			Subtotal:  unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		if _, err := repository.FindChannel(ctx, input.ChannelID); err != nil {
			return notFoundOr(err, "channel not found", "load channel")
		}
		if err := repository.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already exists for this channel")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		ref := order.ID.String()
		for _, item := range order.Items {
			if _, err := s.ledger.ReserveStock(ctx, tx, item.VariantID, item.Quantity, ref); err != nil {
				return err
			}
		}

		created := payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			ChannelID:       order.ChannelID,
			ExternalOrderID: order.ExternalOrderID,
			TotalAmount:     order.TotalAmount,
		}
		for _, item := range order.Items {
			created.Items = append(created.Items, payloads.OrderCreatedItem{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.OperatorRoleSystem), Source: "orders"},
			Data:          created,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "items", len(order.Items)), "order created")
	return s.GetOrder(ctx, order.ID)
}

// UpdateOrderStatus applies one state machine transition and its ledger effect
// in a single transaction. Moving to the current status is a no-op.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", status)
	}

	var (
		order   *models.Order
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		var err error
		order, err = repository.LockOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		from := order.Status
		if from == status {
			return nil
		}

		effect, allowed := transitionEffect(from, status)
		if !allowed {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, status).
				WithDetails(map[string]any{"from": from, "to": status, "allowed": AllowedTransitions(from)})
		}

		if err := s.applyEffect(ctx, tx, order, effect); err != nil {
			return err
		}
		updated, err := repository.UpdateStatus(ctx, order.ID, from, status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.OperatorRoleSystem), Source: "orders"},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				ChannelID:  order.ChannelID,
				FromStatus: from,
				ToStatus:   status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(s.logg.WithField(logCtx, "status", status.String()), "order status changed")
	}
	return s.GetOrder(ctx, orderID)
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, enums.OrderStatusCancelled)
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, params pagination.Params, channelID *uuid.UUID, status *enums.OrderStatus) (*OrderList, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", *status)
	}
	orders, next, err := s.repo.ListOrders(ctx, params, ListFilters{ChannelID: channelID, Status: status, Cursor: cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: ToOrderDTOs(orders)}
	if next != nil {
		list.NextCursor = next.Encode()
	}
	return list, nil
}

func (s *service) GetOrderStats(ctx context.Context) (*Stats, error) {
	rows, err := s.repo.StatusTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order stats")
	}
	stats := &Stats{TotalRevenue: decimal.Zero}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case enums.OrderStatusPending:
			stats.Pending = row.Count
		case enums.OrderStatusConfirmed:
			stats.Confirmed = row.Count
		case enums.OrderStatusShipped:
			stats.Shipped = row.Count
		case enums.OrderStatusDelivered:
			stats.Delivered = row.Count
		case enums.OrderStatusCancelled:
			stats.Cancelled = row.Count
		case enums.OrderStatusReturned:
			stats.Returned = row.Count
		}
		if row.Status.CountsAsRevenue() {
			stats.TotalRevenue = stats.TotalRevenue.Add(row.Amount)
		}
	}
	stats.TotalRevenue = stats.TotalRevenue.Round(2)
	return stats, nil
}

func (s *service) applyEffect(ctx context.Context, tx *gorm.DB, order *models.Order, effect ledgerEffect) error {
	ref := order.ID.String()
	for _, item := range order.Items {
		var err error
		switch effect {
		case effectConfirm:
			_, err = s.ledger.ConfirmSale(ctx, tx, item.VariantID, item.Quantity, ref)
		case effectRelease:
			_, err = s.ledger.ReleaseReservation(ctx, tx, item.VariantID, item.Quantity, ref)
		case effectReturn:
			_, err = s.ledger.ProcessReturn(ctx, tx, item.VariantID, item.Quantity, ref)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateCreate(input CreateOrderInput) error {
	if input.ChannelID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel id required")
	}
	if strings.TrimSpace(input.ExternalOrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external order id required")
	}
	if !input.TotalAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "total amount must be greater than zero")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	for i, item := range input.Items {
		if item.VariantID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: variant id required", i)
		}
		if item.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be greater than zero", i)
		}
		if !item.UnitPrice.IsPositive() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: unit price must be greater than zero", i)
		}
	}
	if len(input.CustomerInfo) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(input.CustomerInfo, &obj); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "customer info must be a json object")
		}
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
