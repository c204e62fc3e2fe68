package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/internal/repo"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockSyncer queues outbound stock updates inside the ledger transaction.
type StockSyncer interface {
	QueueStockSync(ctx context.Context, tx *gorm.DB, record models.InventoryRecord) (int, error)
}

// Service is the inventory reservation ledger. The four order-driven operations
// accept an optional transaction so the order service can compose them; a nil
// tx makes the operation open its own.
type Service interface {
	ReserveStock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ConfirmSale(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ReleaseReservation(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	ProcessReturn(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error)
	AdjustStock(ctx context.Context, input AdjustInput) (*models.InventoryRecord, error)
	CheckAvailability(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	GetLowStockItems(ctx context.Context) ([]models.InventoryRecord, error)
	GetInventory(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error)
	ListInventory(ctx context.Context, lowStockOnly bool) ([]models.InventoryRecord, error)
	UpdateMinStockThreshold(ctx context.Context, variantID uuid.UUID, threshold int) (*models.InventoryRecord, error)
	GetTransactionHistory(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryTransaction, error)
	EnsureInventory(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, initial, threshold int) (*models.InventoryRecord, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	syncer StockSyncer
	logg   *logger.Logger
	now    func() time.Time
}

// movement describes how one ledger operation moves the counters.
type movement struct {
	kind   enums.InventoryTransactionType
	delta  Delta
	change int
	ref    string
	refID  string
	notes  string
	actor  string
	stamp  bool
}

// NewService wires the ledger. syncer may be nil, in which case stock moves
// do not queue channel updates.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, syncer StockSyncer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		syncer: syncer,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ReserveStock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error) {
	if err := validateOrderMove(variantID, qty); err != nil {
		return nil, err
	}
	return s.applyIn(ctx, tx, variantID, qty, movement{
		kind:   enums.InventoryTransactionSale,
		delta:  Delta{Available: -qty, Reserved: qty},
		change: -qty,
		ref:    ReferenceOrder,
		refID:  orderRef,
		notes:  fmt.Sprintf("Reserved %d units for order %s", qty, orderRef),
		actor:  systemActor,
	})
}

func (s *service) ConfirmSale(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error) {
	if err := validateOrderMove(variantID, qty); err != nil {
		return nil, err
	}
	return s.applyIn(ctx, tx, variantID, qty, movement{
		kind:   enums.InventoryTransactionSale,
		delta:  Delta{Reserved: -qty, Sold: qty},
		change: -qty,
		ref:    ReferenceOrder,
		refID:  orderRef,
		notes:  fmt.Sprintf("Confirmed sale of %d units", qty),
		actor:  systemActor,
	})
}

func (s *service) ReleaseReservation(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error) {
	if err := validateOrderMove(variantID, qty); err != nil {
		return nil, err
	}
	return s.applyIn(ctx, tx, variantID, qty, movement{
		kind:   enums.InventoryTransactionAdjustment,
		delta:  Delta{Available: qty, Reserved: -qty},
		change: qty,
		ref:    ReferenceOrder,
		refID:  orderRef,
		notes:  fmt.Sprintf("Released %d units from cancelled order", qty),
		actor:  systemActor,
	})
}

func (s *service) ProcessReturn(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, orderRef string) (*models.InventoryRecord, error) {
	if err := validateOrderMove(variantID, qty); err != nil {
		return nil, err
	}
	return s.applyIn(ctx, tx, variantID, qty, movement{
		kind:   enums.InventoryTransactionReturn,
		delta:  Delta{Available: qty, Sold: -qty},
		change: qty,
		ref:    ReferenceOrder,
		refID:  orderRef,
		notes:  fmt.Sprintf("Returned %d units", qty),
		actor:  systemActor,
	})
}

func (s *service) AdjustStock(ctx context.Context, input AdjustInput) (*models.InventoryRecord, error) {
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity change must not be zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		actor = systemActor
	}

	kind := enums.InventoryTransactionAdjustment
	if input.Delta > 0 {
		kind = enums.InventoryTransactionRestock
	}
	requested := 0
	if input.Delta < 0 {
		requested = -input.Delta
	}

	record, err := s.applyIn(ctx, nil, input.VariantID, requested, movement{
		kind:   kind,
		delta:  Delta{Available: input.Delta},
		change: input.Delta,
		ref:    ReferenceManual,
		notes:  reason,
		actor:  actor,
		stamp:  input.Delta > 0,
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) CheckAvailability(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if err := validateOrderMove(variantID, qty); err != nil {
		return false, err
	}
	record, err := s.GetInventory(ctx, variantID)
	if err != nil {
		return false, err
	}
	return record.QuantityAvailable >= qty, nil
}

func (s *service) GetLowStockItems(ctx context.Context) ([]models.InventoryRecord, error) {
	return s.ListInventory(ctx, true)
}

func (s *service) GetInventory(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	record, err := s.repo.FindByVariant(ctx, variantID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return record, nil
}

func (s *service) ListInventory(ctx context.Context, lowStockOnly bool) ([]models.InventoryRecord, error) {
	records, err := s.repo.List(ctx, lowStockOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory")
	}
	return records, nil
}

func (s *service) UpdateMinStockThreshold(ctx context.Context, variantID uuid.UUID, threshold int) (*models.InventoryRecord, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if threshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min stock threshold must be zero or greater")
	}
	updated, err := s.repo.UpdateThreshold(ctx, variantID, threshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update min stock threshold")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return s.GetInventory(ctx, variantID)
}

func (s *service) GetTransactionHistory(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryTransaction, error) {
	if _, err := s.GetInventory(ctx, variantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := s.repo.ListTransactions(ctx, variantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory transactions")
	}
	return rows, nil
}

func (s *service) EnsureInventory(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, initial, threshold int) (*models.InventoryRecord, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if initial < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must be zero or greater")
	}
	if threshold < 0 {
		threshold = models.DefaultMinStockThreshold
	}

	var out *models.InventoryRecord
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByVariant(ctx, variantID)
		if err == nil {
			out = existing
			return nil
		}
		if !repoNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
		}

		record := &models.InventoryRecord{
			VariantID:         variantID,
			QuantityAvailable: initial,
			MinStockThreshold: threshold,
		}
		if initial > 0 {
			now := s.now()
			record.LastRestockedAt = &now
		}
		if err := repo.Create(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory")
		}
		if initial > 0 {
			if err := repo.InsertTransaction(ctx, newTransaction(variantID, movement{
				kind:   enums.InventoryTransactionRestock,
				change: initial,
				ref:    ReferenceManual,
				notes:  "Initial stock",
				actor:  systemActor,
			})); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record initial stock")
			}
		}
		out = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) applyIn(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, requested int, m movement) (*models.InventoryRecord, error) {
	var out *models.InventoryRecord
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		record, err := s.apply(ctx, tx, variantID, requested, m)
		if err != nil {
			return err
		}
		out = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply locks the row, validates, moves the counters through a guarded update
// and appends exactly one history row. A change to available stock queues the
// channel updates in the same transaction.
func (s *service) apply(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, requested int, m movement) (*models.InventoryRecord, error) {
	repo := s.repo.WithTx(tx)

	record, err := repo.LockByVariant(ctx, variantID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if err := checkMove(record, requested, m.delta); err != nil {
		return nil, err
	}

	var restockedAt *time.Time
	if m.stamp {
		now := s.now()
		restockedAt = &now
	}
	applied, err := repo.ApplyDelta(ctx, variantID, m.delta, restockedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory counters")
	}
	if !applied {
		current, lerr := repo.FindByVariant(ctx, variantID)
		if lerr != nil {
			return nil, mapLoadError(lerr)
		}
		if err := checkMove(current, requested, m.delta); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory changed concurrently")
	}

	if err := repo.InsertTransaction(ctx, newTransaction(variantID, m)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory transaction")
	}

	before := *record
	record.QuantityAvailable += m.delta.Available
	record.QuantityReserved += m.delta.Reserved
	record.QuantitySold += m.delta.Sold
	record.StockVersion++
	if restockedAt != nil {
		record.LastRestockedAt = restockedAt
	}

	if err := s.emitChanged(ctx, tx, record, m); err != nil {
		return nil, err
	}
	if !before.IsLowStock() && record.IsLowStock() {
		if err := s.emitLowStock(ctx, tx, record); err != nil {
			return nil, err
		}
	}
	if m.delta.Available != 0 && s.syncer != nil {
		if _, err := s.syncer.QueueStockSync(ctx, tx, *record); err != nil {
			return nil, err
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"variant_id":         variantID.String(),
		"transaction_type":   m.kind.String(),
		"quantity_change":    m.change,
		"quantity_available": record.QuantityAvailable,
	})
	s.logg.Debug(logCtx, "inventory moved")
	return record, nil
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, record *models.InventoryRecord, m movement) error {
	event := outbox.DomainEvent{
		EventType:   enums.EventInventoryChanged,
		AggregateID: record.VariantID,
		Actor:       actorFor(m.actor),
		Data: payloads.InventoryChangedEvent{
			VariantID:         record.VariantID,
			TransactionType:   m.kind,
			QuantityChange:    m.change,
			QuantityAvailable: record.QuantityAvailable,
			QuantityReserved:  record.QuantityReserved,
			QuantitySold:      record.QuantitySold,
			ReferenceType:     m.ref,
			ReferenceID:       m.refID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory changed")
	}
	return nil
}

func (s *service) emitLowStock(ctx context.Context, tx *gorm.DB, record *models.InventoryRecord) error {
	data := payloads.LowStockDetectedEvent{
		VariantID:         record.VariantID,
		QuantityAvailable: record.QuantityAvailable,
		MinStockThreshold: record.MinStockThreshold,
	}
	if record.Variant != nil {
		data.SKU = record.Variant.SKU
	}
	event := outbox.DomainEvent{
		EventType:   enums.EventLowStockDetected,
		AggregateID: record.VariantID,
		Actor:       actorFor(systemActor),
		Data:        data,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit low stock detected")
	}
	return nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func checkMove(record *models.InventoryRecord, requested int, d Delta) error {
	if record.QuantityAvailable+d.Available < 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(InsufficientStockDetails{
				VariantID: record.VariantID,
				Available: record.QuantityAvailable,
				Requested: requested,
			})
	}
	if record.QuantityReserved+d.Reserved < 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved quantity below requested").
			WithDetails(map[string]any{"variantId": record.VariantID, "reserved": record.QuantityReserved, "requested": requested})
	}
	if record.QuantitySold+d.Sold < 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "sold quantity below requested").
			WithDetails(map[string]any{"variantId": record.VariantID, "sold": record.QuantitySold, "requested": requested})
	}
	return nil
}

func validateOrderMove(variantID uuid.UUID, qty int) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	return nil
}

func newTransaction(variantID uuid.UUID, m movement) *models.InventoryTransaction {
	txn := &models.InventoryTransaction{
		VariantID:       variantID,
		TransactionType: m.kind,
		QuantityChange:  m.change,
	}
	if m.ref != "" {
		ref := m.ref
		txn.ReferenceType = &ref
	}
	if m.refID != "" {
		refID := m.refID
		txn.ReferenceID = &refID
	}
	if m.notes != "" {
		notes := m.notes
		txn.Notes = &notes
	}
	if m.actor != "" {
		actor := m.actor
		txn.CreatedBy = &actor
	}
	return txn
}

func actorFor(actor string) *outbox.ActorRef {
	if actor == "" || actor == systemActor {
		return &outbox.ActorRef{Role: string(enums.OperatorRoleSystem), Source: "inventory"}
	}
	return &outbox.ActorRef{OperatorID: actor, Source: "inventory"}
}

func mapLoadError(err error) error {
	if repoNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
}

func repoNotFound(err error) bool {
	return repo.IsNotFound(err)
}
