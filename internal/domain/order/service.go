package order

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/product"
)

// Catalog is the part of the catalog store the order engine depends on.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
	TryReserveStock(ctx context.Context, id string, qty int) (product.Reservation, error)
	ReleaseStock(ctx context.Context, id string, qty int) error
}

// Customers resolves the ordering customer.
type Customers interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

// LineRequest is a single cart line as submitted by the client.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order. Prices are never
// taken from the request.
type PlaceOrderRequest struct {
	CustomerID      string
	Lines           []LineRequest
	ShippingAddress string
	IdempotencyKey  string
}

// Config holds optional collaborators and limits for the Service.
type Config struct {
	// PlaceTimeout bounds a whole PlaceOrder call. Zero disables the bound.
	PlaceTimeout time.Duration
	// CompensationTimeout bounds stock release after a failed placement.
	CompensationTimeout time.Duration
	// WriteTimeout bounds each reservation and the order insert. Both run
	// detached from the caller so a cancelled request cannot leave their
	// outcome unknown.
	WriteTimeout time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Publisher      Publisher
	Replays        ReplayStore

	Now   func() time.Time
	NewID func() string
}

func (c *Config) setDefaults() {
	if c.CompensationTimeout <= 0 {
		c.CompensationTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.TracerProvider == nil {
		c.TracerProvider = tracenoop.NewTracerProvider()
	}
	if c.MeterProvider == nil {
		c.MeterProvider = metricnoop.NewMeterProvider()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// Service is the order engine. It is the only component that touches both
// the catalog and the order store when placing an order.
type Service struct {
	catalog   Catalog
	customers Customers
	orders    Repository
	cfg       Config

	tracer        trace.Tracer
	placed        metric.Int64Counter
	rejected      metric.Int64Counter
	compensations metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	catalog Catalog,
	customers Customers,
	orders Repository,
	cfg Config,
) (*Service, error) {
	cfg.setDefaults()

	meter := cfg.MeterProvider.Meter("storefront/order")
	placed, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders persisted by the order engine"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	rejected, err := meter.Int64Counter("storefront.orders.rejected",
		metric.WithDescription("PlaceOrder calls that failed, by reason"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.rejected counter")
	}
	compensations, err := meter.Int64Counter("storefront.stock.compensations",
		metric.WithDescription("Reservations released after a failed placement"))
	if err != nil {
		return nil, errors.Wrap(err, "stock.compensations counter")
	}

	return &Service{
		catalog:       catalog,
		customers:     customers,
		orders:        orders,
		cfg:           cfg,
		tracer:        cfg.TracerProvider.Tracer("storefront/order"),
		placed:        placed,
		rejected:      rejected,
		compensations: compensations,
	}, nil
}

// PlaceOrder validates the cart against the catalog, reserves stock line by
// line, prices the order from catalog prices and persists it. On any failure
// after the first reservation, all reservations made by this call are
// released before the error is returned.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	if s.cfg.PlaceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PlaceTimeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(rerr))))
		}
		span.End()
	}()

	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}

	var replay string
	if req.IdempotencyKey != "" && s.cfg.Replays != nil {
		key := req.CustomerID + ":" + req.IdempotencyKey
		existing, claimed, err := s.cfg.Replays.Claim(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "claim idempotency key")
		}
		if !claimed {
			if existing == "" {
				return nil, ErrRequestInFlight
			}
			return s.GetOrder(ctx, existing)
		}
		replay = key
		defer func() {
			s.finishReplay(ctx, replay, rerr)
		}()
	}

	o, err := s.place(ctx, req)
	if err != nil {
		return nil, err
	}
	if replay != "" {
		s.completeReplay(ctx, replay, o.ID)
	}

	s.placed.Add(ctx, 1)
	s.publish(ctx, Event{
		Type:       EventOrderPlaced,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.Total,
		OccurredAt: o.CreatedAt,
	})
	return o, nil
}

// Replay completion is retried a few times before the claim is left to
// expire on its own.
const (
	completeTries    = 3
	completeInterval = 20 * time.Millisecond
)

// completeReplay records the order under the claimed key.
func (s *Service) completeReplay(ctx context.Context, key, orderID string) {
	cctx, cancel := s.writeContext(ctx)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = completeInterval
	_, err := backoff.Retry(cctx, func() (struct{}, error) {
		return struct{}{}, s.cfg.Replays.Complete(cctx, key, orderID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(completeTries))
	if err != nil {
		zctx.From(ctx).Warn("Complete idempotency key",
			zap.String("key", key),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

// finishReplay releases the idempotency claim when placement failed so the
// caller can retry with the same key.
func (s *Service) finishReplay(ctx context.Context, key string, err error) {
	if err == nil {
		return
	}
	if rerr := s.cfg.Replays.Release(context.WithoutCancel(ctx), key); rerr != nil {
		zctx.From(ctx).Warn("Release idempotency key", zap.String("key", key), zap.Error(rerr))
	}
}

func (s *Service) place(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	products, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	// Capture prices before reserving so the order reflects what was
	// resolved, not what the catalog says later.
	lines := make([]Line, len(req.Lines))
	for i, l := range req.Lines {
		p := products[l.ProductID]
		lines[i] = Line{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			ProductName: p.Name,
		}
	}

	reserved, err := s.reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              s.cfg.NewID(),
		CustomerID:      req.CustomerID,
		Lines:           lines,
		Total:           Total(lines),
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       s.cfg.Now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		s.compensate(ctx, reserved)
		return nil, &PersistenceError{Op: "create order", Err: err}
	}
	if err := s.create(ctx, o); err != nil {
		if err := s.settleCreate(ctx, o, reserved, err); err != nil {
			return nil, err
		}
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Int("lines", len(o.Lines)),
		zap.Stringer("total", o.Total),
	)
	return o, nil
}

func (s *Service) create(ctx context.Context, o *Order) error {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	return s.orders.Create(wctx, o)
}

// settleCreate decides what a failed insert means for the reserved stock.
// An insert can commit and still report an error, so the order is read back
// before anything is released. It returns nil when the order turns out to be
// stored.
func (s *Service) settleCreate(ctx context.Context, o *Order, reserved []product.Reservation, createErr error) error {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	wctx, cancel := s.writeContext(ctx)
	_, err := s.orders.Get(wctx, o.ID)
	cancel()
	switch {
	case err == nil:
		lg.Warn("Order stored despite insert error", zap.NamedError("insert_error", createErr))
		return nil
	case errors.Is(err, ErrOrderNotFound):
		s.compensate(ctx, reserved)
		return &PersistenceError{Op: "create order", Err: createErr}
	default:
		// Releasing here could hand out stock a stored order still holds.
		lg.Error("Order outcome unknown, keeping reserved stock",
			zap.NamedError("insert_error", createErr),
			zap.Error(err),
		)
		return &PersistenceError{Op: "create order", Err: createErr}
	}
}

// writeContext detaches ctx from the caller's cancellation and bounds it by
// WriteTimeout.
func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
}

// resolve checks the customer and fetches every referenced product. Both
// lookups are read-only and run concurrently. The first missing product in
// line order is reported.
func (s *Service) resolve(ctx context.Context, req PlaceOrderRequest) (map[string]product.Product, error) {
	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}

	var fetched []product.Product
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.customers.Get(gctx, req.CustomerID); err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				return &CustomerNotFoundError{CustomerID: req.CustomerID}
			}
			return errors.Wrap(err, "get customer")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fetched, err = s.catalog.GetByIDs(gctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	for _, l := range req.Lines {
		if _, ok := byID[l.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
	}
	return byID, nil
}

// GetOrder returns a single order with product names joined from the catalog.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	orders := []Order{*o}
	if err := s.joinProductNames(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns a page of orders, newest first.
func (s *Service) ListOrders(ctx context.Context, page Page) ([]Order, error) {
	page = page.Normalize()
	orders, err := s.orders.List(ctx, page.Limit, page.Page*page.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := s.joinProductNames(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus overwrites the status of an order. No transition graph
// is enforced.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "code %d", int(status))
	}
	o, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:       EventOrderStatusChanged,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.Total,
		OccurredAt: s.cfg.Now().UTC(),
	})

	orders := []Order{*o}
	if err := s.joinProductNames(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// DeleteOrder removes the order record. Stock is not restored.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	return s.orders.Delete(ctx, id)
}

func (s *Service) joinProductNames(ctx context.Context, orders []Order) error {
	var ids []string
	seen := make(map[string]struct{})
	for _, o := range orders {
		for _, l := range o.Lines {
			if _, ok := seen[l.ProductID]; !ok {
				seen[l.ProductID] = struct{}{}
				ids = append(ids, l.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get products for order lines")
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	for i := range orders {
		for j := range orders[i].Lines {
			orders[i].Lines[j].ProductName = names[orders[i].Lines[j].ProductID]
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.cfg.Publisher == nil {
		return
	}
	if err := s.cfg.Publisher.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

func validateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return ErrEmptyLines
	}
	for _, l := range lines {
		if l.Quantity <= 0 || l.Quantity > product.MaxQuantity {
			return &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
	}
	return nil
}

func rejectReason(err error) string {
	var (
		cnf *CustomerNotFoundError
		pnf *ProductNotFoundError
		ise *InsufficientStockError
		iqe *InvalidQuantityError
	)
	switch {
	case errors.Is(err, ErrEmptyLines), errors.As(err, &iqe):
		return "invalid_input"
	case errors.As(err, &cnf):
		return "customer_not_found"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &ise):
		return "insufficient_stock"
	case errors.Is(err, ErrRequestInFlight):
		return "in_flight"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	default:
		return "internal"
	}
}
