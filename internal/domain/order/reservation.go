package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// reserve takes stock for each line in order. Results are folded left to
// right: the first failing line stops the fold and every reservation taken
// so far is released before the error is returned. Each reservation runs
// detached from the caller; cancellation is only observed between lines.
func (s *Service) reserve(ctx context.Context, lines []Line) ([]product.Reservation, error) {
	reserved := make([]product.Reservation, 0, len(lines))
	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			s.compensate(ctx, reserved)
			return nil, &PersistenceError{Op: "reserve stock", Err: err}
		}
		r, err := s.tryReserve(ctx, l)
		if err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				zctx.From(ctx).Info("Reservation rejected",
					zap.String("product_id", l.ProductID),
					zap.Int("requested", l.Quantity),
					zap.Int("available", r.Remaining),
				)
			}
			s.compensate(ctx, reserved)
			return nil, reservationError(l, r, err)
		}
		reserved = append(reserved, r)
	}
	return reserved, nil
}

func (s *Service) tryReserve(ctx context.Context, l Line) (product.Reservation, error) {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	return s.catalog.TryReserveStock(wctx, l.ProductID, l.Quantity)
}

func reservationError(l Line, r product.Reservation, err error) error {
	switch {
	case errors.Is(err, product.ErrInsufficientStock):
		return &InsufficientStockError{
			ProductID: l.ProductID,
			Available: r.Remaining,
			Requested: l.Quantity,
		}
	case errors.Is(err, product.ErrNotFound):
		// Deleted between resolution and reservation.
		return &ProductNotFoundError{ProductID: l.ProductID}
	default:
		return &PersistenceError{Op: "reserve stock for product " + l.ProductID, Err: err}
	}
}

// compensate releases reservations in reverse order. It runs on a context
// detached from the caller so a timed-out or cancelled request still
// restores stock. Every reservation is attempted even if one release fails.
func (s *Service) compensate(ctx context.Context, reserved []product.Reservation) {
	if len(reserved) == 0 {
		return
	}
	lg := zctx.From(ctx)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.catalog.ReleaseStock(cctx, r.ProductID, r.Quantity); err != nil {
			lg.Error("Release reserved stock",
				zap.String("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity),
				zap.Error(err),
			)
			continue
		}
		s.compensations.Add(cctx, 1)
		lg.Warn("Released reserved stock",
			zap.String("product_id", r.ProductID),
			zap.Int("quantity", r.Quantity),
		)
	}
}
