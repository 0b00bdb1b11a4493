package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// StockNotifier owns low-stock notifications. It is invoked only from
// inside the ledger's atomic units, so its writes inherit their isolation:
// no reader ever observes a quantity change without the matching alert
// state.
type StockNotifier struct {
	threshold int
	clock     func() time.Time
	log       *zap.Logger
}

var _ StockAlerter = (*StockNotifier)(nil)

func NewStockNotifier(threshold int, log *zap.Logger) *StockNotifier {
	return &StockNotifier{threshold: threshold, clock: time.Now, log: log}
}

// QuantityChanged raises a low-stock alert when the committed quantity is
// at or below the threshold and no unresolved alert exists for the bin.
// The (bin, unresolved) pair is the dedup key: one open alert per bin, per
// depletion episode.
func (n *StockNotifier) QuantityChanged(ctx context.Context, tx port.StoreTx, bin domain.Bin) error {
	if bin.Quantity > n.threshold {
		return nil
	}
	if _, open, err := tx.OpenNotification(ctx, bin.ID); err != nil {
		return fmt.Errorf("check open notification for bin %s: %w", bin.ID, err)
	} else if open {
		return nil
	}

	note := domain.Notification{
		ID:        uuid.NewString(),
		StationID: bin.StationID,
		BinID:     bin.ID,
		Message:   fmt.Sprintf("low stock in bin %s: %d left", bin.ID, bin.Quantity),
		CreatedAt: n.clock(),
	}
	if err := tx.SaveNotification(ctx, note); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}

	n.log.Warn("low-stock alert raised",
		zap.String("bin_id", bin.ID),
		zap.String("station_id", bin.StationID),
		zap.Int("quantity", bin.Quantity))
	return nil
}

// BinReplenished resolves the bin's open alert regardless of the resulting
// quantity. Even when the bin is still at or below the threshold the
// immediate alert clears; a fresh one needs a new downward crossing on a
// later decrement.
func (n *StockNotifier) BinReplenished(ctx context.Context, tx port.StoreTx, bin domain.Bin, resolver string) error {
	note, open, err := tx.OpenNotification(ctx, bin.ID)
	if err != nil {
		return fmt.Errorf("check open notification for bin %s: %w", bin.ID, err)
	}
	if !open {
		return nil
	}

	now := n.clock()
	note.Resolved = true
	note.ResolvedAt = &now
	note.ResolvedBy = resolver
	if err := tx.SaveNotification(ctx, note); err != nil {
		return fmt.Errorf("resolve notification %s: %w", note.ID, err)
	}

	n.log.Info("low-stock alert resolved",
		zap.String("bin_id", bin.ID),
		zap.String("notification_id", note.ID),
		zap.String("resolver", resolver))
	return nil
}
