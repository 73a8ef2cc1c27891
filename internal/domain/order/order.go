package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order. Codes are ordinal and any
// code may follow any other.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusShipped
	StatusDelivered
	StatusCancelled
)

var statusNames = [...]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusShipped:    "shipped",
	StatusDelivered:  "delivered",
	StatusCancelled:  "cancelled",
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusCancelled
}

func (s Status) String() string {
	if !s.Valid() {
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// ParseStatus accepts either a status name or its numeric code.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && Status(n).Valid() {
		return Status(n), nil
	}
	return 0, errors.Wrapf(ErrInvalidStatus, "parse %q", v)
}

// Order is a placed order. Lines are immutable once the order is created;
// only Status changes afterwards.
type Order struct {
	ID              string
	CustomerID      string
	Lines           []Line
	Total           decimal.Decimal
	Status          Status
	ShippingAddress string
	CreatedAt       time.Time
}

// Line is a single order line. UnitPrice is the catalog price captured when
// the order was placed.
type Line struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`

	// ProductName is joined from the catalog at read time and never stored.
	ProductName string `json:"-"`
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the line subtotals.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Page selects a window of the order listing. Page is zero-based.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Normalize applies the default and maximum limit.
func (p Page) Normalize() Page {
	if p.Page < 0 {
		p.Page = 0
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultPageLimit
	case p.Limit > maxPageLimit:
		p.Limit = maxPageLimit
	}
	return p
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	Delete(ctx context.Context, id string) error
}

// EventType names an order lifecycle event.
type EventType string

const (
	EventOrderPlaced        EventType = "order.placed"
	EventOrderStatusChanged EventType = "order.status_changed"
)

// Event is published after an order change has been persisted.
type Event struct {
	Type       EventType
	OrderID    string
	CustomerID string
	Status     Status
	Total      decimal.Decimal
	OccurredAt time.Time
}

// Publisher delivers order events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ReplayStore deduplicates PlaceOrder calls that carry an idempotency key.
//
// Claim returns claimed=true when the caller now owns the key. Otherwise
// orderID holds the order created by the earlier call, or is empty while
// that call is still running.
type ReplayStore interface {
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}
