package database

import "time"

// Supplier order lifecycle states. Transitions only move forward:
// to_order -> ordered -> received.
const (
	StatusToOrder  = "to_order"
	StatusOrdered  = "ordered"
	StatusReceived = "received"
)

// statusRank orders lifecycle states for forward-only transitions. Unknown
// states rank highest so they are never downgraded.
func statusRank(status string) int {
	switch status {
	case StatusToOrder:
		return 0
	case StatusOrdered:
		return 1
	case StatusReceived:
		return 2
	default:
		return 3
	}
}

// SupplierOrder tracks one purchase order placed with an external parts
// supplier for a retail order. Empty strings mean "not set" for text fields.
type SupplierOrder struct {
	ID                  int        `json:"id"`
	RetailOrderID       int        `json:"retail_order_id"`
	Supplier            string     `json:"supplier"`
	SupplierOrderNumber string     `json:"supplier_order_number,omitempty"`
	Carrier             string     `json:"carrier,omitempty"`
	TrackingNumber      string     `json:"tracking_number,omitempty"`
	TrackingURL         string     `json:"tracking_url,omitempty"`
	ShipmentReference   string     `json:"shipment_reference,omitempty"`
	SupplierShippedAt   *time.Time `json:"supplier_shipped_at,omitempty"`
	EmailMessageID      string     `json:"email_message_id,omitempty"`
	EmailSubject        string     `json:"email_subject,omitempty"`
	EmailFrom           string     `json:"email_from,omitempty"`
	EmailReceivedAt     *time.Time `json:"email_received_at,omitempty"`
	Status              string     `json:"status"`
	OrderedAt           *time.Time `json:"ordered_at,omitempty"`
	ReceivedAt          *time.Time `json:"received_at,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SupplierMailEvent is an immutable record of one ingested supplier
// notification email. MessageID is the natural key: ingestion is idempotent
// on it. The match links are the only fields mutated after creation, and
// only from unset to set.
type SupplierMailEvent struct {
	ID              int       `json:"id"`
	Supplier        string    `json:"supplier"`
	MessageID       string    `json:"message_id"`
	ReceivedAt      time.Time `json:"received_at"`
	FromAddress     string    `json:"from_address"`
	Subject         string    `json:"subject"`
	OrderNumber     string    `json:"order_number,omitempty"`
	Carrier         string    `json:"carrier,omitempty"`
	TrackingNumber  string    `json:"tracking_number,omitempty"`
	Preview         string    `json:"preview,omitempty"`
	SupplierOrderID *int      `json:"supplier_order_id,omitempty"`
	RetailOrderID   *int      `json:"retail_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Matched reports whether the event has been reconciled to a supplier order.
func (e *SupplierMailEvent) Matched() bool {
	return e.SupplierOrderID != nil
}
