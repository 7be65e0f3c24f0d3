package matcher

import (
	"fmt"
	"time"

	"logistics-recon/internal/carriers"
	"logistics-recon/internal/database"
)

// Match modes.
const (
	ModeExact = "exact"
	ModeAuto  = "auto"
)

// Best-effort tier tuning. The window and threshold are tuned values;
// changing them changes which events require human review.
const (
	autoWindowBefore   = 30 * 24 * time.Hour
	autoWindowAfter    = 2 * 24 * time.Hour
	ambiguityThreshold = 180 * time.Minute
)

// Result reports the outcome of reconciling one mail event.
type Result struct {
	Matched         bool   `json:"matched"`
	Mode            string `json:"mode,omitempty"`
	SupplierOrderID int    `json:"supplier_order_id,omitempty"`
	RetailOrderID   int    `json:"retail_order_id,omitempty"`
	OrdersTouched   int    `json:"orders_touched,omitempty"`
	// Ambiguous means the best-effort tier found near-tied candidates and
	// refused to guess. Reported distinctly from "unmatched" so an
	// operator can review.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Matcher reconciles extracted mail events against open supplier orders.
// All candidate and duplicate checks run against the store at match time,
// not against a cached read, so concurrent sync runs stay safe.
type Matcher struct {
	orders   *database.SupplierOrderStore
	autoLink bool
}

// New creates a new matcher. autoLink enables the best-effort tier.
func New(orders *database.SupplierOrderStore, autoLink bool) *Matcher {
	return &Matcher{orders: orders, autoLink: autoLink}
}

// Match runs the two-tier reconciliation: exact order-number match first,
// then the config-gated best-effort tier. Exact-before-best-effort keeps
// false links out of the order book.
func (m *Matcher) Match(event *database.SupplierMailEvent) (*Result, error) {
	if result, err := m.matchExact(event); err != nil || result != nil {
		return result, err
	}

	if m.autoLink {
		return m.matchBestEffort(event)
	}

	return &Result{Matched: false}, nil
}

// matchExact links the event to every open order storing exactly the
// extracted order number. Supplier order numbers are not guaranteed unique,
// so all matching rows get the shipment facts; the most recent row is
// reported as the primary match. Returns nil when the tier does not apply.
func (m *Matcher) matchExact(event *database.SupplierMailEvent) (*Result, error) {
	if event.OrderNumber == "" {
		return nil, nil
	}

	orders, err := m.orders.GetOpenByOrderNumber(event.Supplier, event.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for number %s: %w", event.OrderNumber, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	update := m.updateFromEvent(event)
	for _, order := range orders {
		if err := m.orders.ApplyShipmentFacts(order.ID, update); err != nil {
			return nil, fmt.Errorf("failed to update order %d: %w", order.ID, err)
		}
	}

	primary := orders[0]
	return &Result{
		Matched:         true,
		Mode:            ModeExact,
		SupplierOrderID: primary.ID,
		RetailOrderID:   primary.RetailOrderID,
		OrdersTouched:   len(orders),
	}, nil
}

// matchBestEffort links an event carrying a fresh order number to the
// single plausible unnumbered order placed around the event's received
// time. Near-tied candidates are reported as ambiguous instead of guessed.
func (m *Matcher) matchBestEffort(event *database.SupplierMailEvent) (*Result, error) {
	// Only events with an order number not already stored anywhere
	// qualify: the backfill below must not duplicate a number.
	if event.OrderNumber == "" {
		return &Result{Matched: false}, nil
	}

	inUse, err := m.orders.OrderNumberInUse(event.Supplier, event.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check order number usage: %w", err)
	}
	if inUse {
		return &Result{Matched: false}, nil
	}

	windowStart := event.ReceivedAt.Add(-autoWindowBefore)
	windowEnd := event.ReceivedAt.Add(autoWindowAfter)
	candidates, err := m.orders.GetAutoLinkCandidates(event.Supplier, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load auto-link candidates: %w", err)
	}

	if len(candidates) == 0 {
		return &Result{Matched: false}, nil
	}

	if len(candidates) > 1 {
		gap := candidateTime(&candidates[0]).Sub(candidateTime(&candidates[1]))
		if gap < 0 {
			gap = -gap
		}
		if gap <= ambiguityThreshold {
			// Two orders placed within the threshold of each other: the
			// temporal signal cannot tell them apart.
			return &Result{Matched: false, Ambiguous: true}, nil
		}
	}

	chosen := candidates[0]
	update := m.updateFromEvent(event)
	update.BackfillOrderNumber = event.OrderNumber
	if err := m.orders.ApplyShipmentFacts(chosen.ID, update); err != nil {
		return nil, fmt.Errorf("failed to update order %d: %w", chosen.ID, err)
	}

	return &Result{
		Matched:         true,
		Mode:            ModeAuto,
		SupplierOrderID: chosen.ID,
		RetailOrderID:   chosen.RetailOrderID,
		OrdersTouched:   1,
	}, nil
}

// updateFromEvent maps the event's extracted facts onto a store update.
func (m *Matcher) updateFromEvent(event *database.SupplierMailEvent) database.ShipmentUpdate {
	receivedAt := event.ReceivedAt
	return database.ShipmentUpdate{
		Carrier:         event.Carrier,
		TrackingNumber:  event.TrackingNumber,
		TrackingURL:     carriers.TrackingURL(event.Carrier, event.TrackingNumber),
		ShippedAt:       &receivedAt,
		EmailMessageID:  event.MessageID,
		EmailSubject:    event.Subject,
		EmailFrom:       event.FromAddress,
		EmailReceivedAt: &receivedAt,
	}
}

// candidateTime is the ordering timestamp for best-effort candidates:
// ordered_at when set, otherwise creation time.
func candidateTime(order *database.SupplierOrder) time.Time {
	if order.OrderedAt != nil {
		return *order.OrderedAt
	}
	return order.CreatedAt
}
