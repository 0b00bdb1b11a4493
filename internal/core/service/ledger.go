package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// StockAlerter is the reaction invoked inside the ledger's atomic unit
// whenever a bin quantity changes. Its writes commit or roll back together
// with the quantity change.
type StockAlerter interface {
	// QuantityChanged fires after a decrement has been staged.
	QuantityChanged(ctx context.Context, tx port.StoreTx, bin domain.Bin) error
	// BinReplenished fires after a replenishment has been staged.
	BinReplenished(ctx context.Context, tx port.StoreTx, bin domain.Bin, resolver string) error
}

// InventoryLedger is the only writer of bin quantities. Every mutation runs
// under the bin's exclusive lock inside one atomic unit, with the stock
// alerter invoked before the unit commits and the lock releases.
type InventoryLedger struct {
	store    port.CellStore
	alerter  StockAlerter
	binLocks *lockTable
	clock    func() time.Time
	log      *zap.Logger
}

func NewInventoryLedger(store port.CellStore, alerter StockAlerter, log *zap.Logger) *InventoryLedger {
	return &InventoryLedger{
		store:    store,
		alerter:  alerter,
		binLocks: newLockTable(),
		clock:    time.Now,
		log:      log,
	}
}

// Decrement atomically withdraws qty from a bin. If the bin holds less than
// qty it fails without mutation and returns the unchanged quantity wrapped
// in an InsufficientStockError.
func (l *InventoryLedger) Decrement(ctx context.Context, binID string, qty int) (int, error) {
	mu := l.binLocks.get(binID)
	mu.Lock()
	defer mu.Unlock()

	var newQty int
	err := l.store.Execute(ctx, func(tx port.StoreTx) error {
		bin, err := l.withdraw(ctx, tx, binID, qty)
		if err != nil {
			newQty = bin.Quantity
			return err
		}
		newQty = bin.Quantity
		return nil
	})
	return newQty, storeErr(err)
}

// Replenish tops a bin up by its part's default capacity on top of whatever
// remains (unconsumed remainder is preserved, not reset), stamps the
// replenish time and resolves any open low-stock alert for the bin.
func (l *InventoryLedger) Replenish(ctx context.Context, binID, resolver string) (int, error) {
	mu := l.binLocks.get(binID)
	mu.Lock()
	defer mu.Unlock()

	var newQty int
	err := l.store.Execute(ctx, func(tx port.StoreTx) error {
		bin, err := tx.Bin(ctx, binID)
		if err != nil {
			return notFoundErr(err, "bin", binID)
		}
		part, err := tx.Part(ctx, bin.PartID)
		if err != nil {
			return notFoundErr(err, "part", bin.PartID)
		}

		bin.Quantity += part.DefaultCapacity
		bin.ReplenishedAt = l.clock()
		if err := tx.SaveBin(ctx, bin); err != nil {
			return fmt.Errorf("save bin %s: %w", binID, err)
		}
		newQty = bin.Quantity

		return l.alerter.BinReplenished(ctx, tx, bin, resolver)
	})
	if err != nil {
		return 0, storeErr(err)
	}

	l.log.Info("bin replenished",
		zap.String("bin_id", binID),
		zap.Int("quantity", newQty),
		zap.String("resolver", resolver))
	return newQty, nil
}

// WithBinLocks runs fn while holding every bin's lock, acquired in
// ascending part ID order. The order is total and identical for every
// caller, so no lock cycle can form.
func (l *InventoryLedger) WithBinLocks(bins []domain.Bin, fn func() error) error {
	ordered := make([]domain.Bin, len(bins))
	copy(ordered, bins)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartID < ordered[j].PartID })

	for _, b := range ordered {
		l.binLocks.get(b.ID).Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.binLocks.get(ordered[i].ID).Unlock()
		}
	}()
	return fn()
}

// Reserve withdraws one unit from each bin inside the caller's atomic unit.
// The caller must hold all the bins' locks (WithBinLocks) and must abort
// the unit on error; the failing part is named in the returned error.
func (l *InventoryLedger) Reserve(ctx context.Context, tx port.StoreTx, bins []domain.Bin) error {
	ordered := make([]domain.Bin, len(bins))
	copy(ordered, bins)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartID < ordered[j].PartID })

	for _, b := range ordered {
		if _, err := l.withdraw(ctx, tx, b.ID, 1); err != nil {
			return err
		}
	}
	return nil
}

// withdraw stages a decrement on one bin and fires the alerter. The bin's
// current state is re-read inside the unit, so stale snapshots held by the
// caller do not matter.
func (l *InventoryLedger) withdraw(ctx context.Context, tx port.StoreTx, binID string, qty int) (domain.Bin, error) {
	bin, err := tx.Bin(ctx, binID)
	if err != nil {
		return domain.Bin{}, notFoundErr(err, "bin", binID)
	}
	if bin.Quantity < qty {
		part, perr := tx.Part(ctx, bin.PartID)
		if perr != nil {
			part = domain.Part{ID: bin.PartID, Name: bin.PartID}
		}
		return bin, &InsufficientStockError{
			BinID:    bin.ID,
			PartID:   part.ID,
			PartName: part.Name,
			Quantity: bin.Quantity,
		}
	}

	bin.Quantity -= qty
	if err := tx.SaveBin(ctx, bin); err != nil {
		return domain.Bin{}, fmt.Errorf("save bin %s: %w", binID, err)
	}
	if err := l.alerter.QuantityChanged(ctx, tx, bin); err != nil {
		return domain.Bin{}, err
	}
	return bin, nil
}

// notFoundErr maps the store's missing-record error onto the engine's
// NotFound kind, preserving anything else as-is.
func notFoundErr(err error, kind, id string) error {
	if errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

// storeErr classifies an atomic-unit failure: engine error kinds pass
// through untouched, anything else (driver faults, commit failures) becomes
// Unavailable so callers know a blind retry is safe.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrInsufficientStock, ErrInvalidState} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
