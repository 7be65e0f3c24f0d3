package database

import (
	"database/sql"
	"fmt"
	"time"
)

const supplierOrderColumns = `id, retail_order_id, supplier, supplier_order_number, carrier,
		  tracking_number, tracking_url, shipment_reference, supplier_shipped_at,
		  email_message_id, email_subject, email_from, email_received_at, status,
		  ordered_at, received_at, notes, created_at, updated_at`

// SupplierOrderStore handles database operations for supplier orders
type SupplierOrderStore struct {
	db *sql.DB
}

func NewSupplierOrderStore(db *sql.DB) *SupplierOrderStore {
	return &SupplierOrderStore{db: db}
}

func scanSupplierOrder(row interface{ Scan(...interface{}) error }) (*SupplierOrder, error) {
	var order SupplierOrder
	err := row.Scan(&order.ID, &order.RetailOrderID, &order.Supplier,
		&order.SupplierOrderNumber, &order.Carrier, &order.TrackingNumber,
		&order.TrackingURL, &order.ShipmentReference, &order.SupplierShippedAt,
		&order.EmailMessageID, &order.EmailSubject, &order.EmailFrom,
		&order.EmailReceivedAt, &order.Status, &order.OrderedAt,
		&order.ReceivedAt, &order.Notes, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *SupplierOrderStore) queryOrders(query string, args ...interface{}) ([]SupplierOrder, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []SupplierOrder
	for rows.Next() {
		order, err := scanSupplierOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	return orders, rows.Err()
}

// GetByID returns a supplier order by ID
func (s *SupplierOrderStore) GetByID(id int) (*SupplierOrder, error) {
	query := `SELECT ` + supplierOrderColumns + ` FROM supplier_orders WHERE id = ?`
	return scanSupplierOrder(s.db.QueryRow(query, id))
}

// Create creates a new supplier order
func (s *SupplierOrderStore) Create(order *SupplierOrder) error {
	if order.Status == "" {
		order.Status = StatusToOrder
	}

	query := `INSERT INTO supplier_orders (retail_order_id, supplier, supplier_order_number,
			  carrier, tracking_number, tracking_url, shipment_reference, supplier_shipped_at,
			  email_message_id, email_subject, email_from, email_received_at, status,
			  ordered_at, received_at, notes)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query, order.RetailOrderID, order.Supplier,
		order.SupplierOrderNumber, order.Carrier, order.TrackingNumber,
		order.TrackingURL, order.ShipmentReference, order.SupplierShippedAt,
		order.EmailMessageID, order.EmailSubject, order.EmailFrom,
		order.EmailReceivedAt, order.Status, order.OrderedAt,
		order.ReceivedAt, order.Notes)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = int(id)

	created, err := s.GetByID(order.ID)
	if err != nil {
		return err
	}
	*order = *created

	return nil
}

// GetOpenByOrderNumber returns all open (not yet received) orders for a
// supplier whose stored order number equals the given one exactly, most
// recent first. Multiple rows are possible: supplier order numbers are not
// guaranteed unique in pathological data.
func (s *SupplierOrderStore) GetOpenByOrderNumber(supplier, orderNumber string) ([]SupplierOrder, error) {
	if orderNumber == "" {
		return nil, nil
	}

	query := `SELECT ` + supplierOrderColumns + `
			  FROM supplier_orders
			  WHERE supplier = ? AND supplier_order_number = ?
			  AND status IN (?, ?)
			  ORDER BY id DESC`

	return s.queryOrders(query, supplier, orderNumber, StatusToOrder, StatusOrdered)
}

// OrderNumberInUse reports whether any stored order for the supplier already
// carries the given supplier order number.
func (s *SupplierOrderStore) OrderNumberInUse(supplier, orderNumber string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM supplier_orders WHERE supplier = ? AND supplier_order_number = ?",
		supplier, orderNumber,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAutoLinkCandidates returns orders eligible for best-effort matching:
// same supplier, no stored order number, no stored tracking number, still
// open, and ordered (or created) inside the given window. Most recent first.
func (s *SupplierOrderStore) GetAutoLinkCandidates(supplier string, windowStart, windowEnd time.Time) ([]SupplierOrder, error) {
	query := `SELECT ` + supplierOrderColumns + `
			  FROM supplier_orders
			  WHERE supplier = ?
			  AND supplier_order_number = ''
			  AND tracking_number = ''
			  AND status IN (?, ?)
			  AND COALESCE(ordered_at, created_at) BETWEEN ? AND ?
			  ORDER BY COALESCE(ordered_at, created_at) DESC`

	return s.queryOrders(query, supplier, StatusToOrder, StatusOrdered, windowStart, windowEnd)
}

// ShipmentUpdate carries the fields a reconciliation or label purchase
// applies to a supplier order. Empty fields leave the stored value in place:
// tracking data is only ever replaced, never cleared.
type ShipmentUpdate struct {
	Carrier           string
	TrackingNumber    string
	TrackingURL       string
	ShipmentReference string
	ShippedAt         *time.Time
	EmailMessageID    string
	EmailSubject      string
	EmailFrom         string
	EmailReceivedAt   *time.Time

	// BackfillOrderNumber is only set by the best-effort matching tier,
	// which links unnumbered orders.
	BackfillOrderNumber string
}

// ApplyShipmentFacts applies carrier/tracking/email fields to an order and
// bumps its status one step forward (to_order -> ordered) when applicable,
// setting ordered_at at most once. The read-compute-write runs in a single
// transaction so concurrent reconciliation paths cannot move status
// backward or lose the ordered_at stamp.
func (s *SupplierOrderStore) ApplyShipmentFacts(id int, update ShipmentUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	current, err := scanSupplierOrder(tx.QueryRow(
		`SELECT `+supplierOrderColumns+` FROM supplier_orders WHERE id = ?`, id))
	if err != nil {
		return err
	}

	if update.Carrier != "" {
		current.Carrier = update.Carrier
	}
	if update.TrackingNumber != "" {
		current.TrackingNumber = update.TrackingNumber
	}
	if update.TrackingURL != "" {
		current.TrackingURL = update.TrackingURL
	}
	if update.ShipmentReference != "" {
		current.ShipmentReference = update.ShipmentReference
	}
	if update.ShippedAt != nil {
		current.SupplierShippedAt = update.ShippedAt
	}
	if update.EmailMessageID != "" {
		current.EmailMessageID = update.EmailMessageID
	}
	if update.EmailSubject != "" {
		current.EmailSubject = update.EmailSubject
	}
	if update.EmailFrom != "" {
		current.EmailFrom = update.EmailFrom
	}
	if update.EmailReceivedAt != nil {
		current.EmailReceivedAt = update.EmailReceivedAt
	}
	if update.BackfillOrderNumber != "" && current.SupplierOrderNumber == "" {
		current.SupplierOrderNumber = update.BackfillOrderNumber
	}

	// One-way status bump: shipment evidence means the order was placed.
	if statusRank(current.Status) < statusRank(StatusOrdered) {
		current.Status = StatusOrdered
	}
	if current.OrderedAt == nil {
		orderedAt := time.Now()
		if update.EmailReceivedAt != nil {
			orderedAt = *update.EmailReceivedAt
		}
		current.OrderedAt = &orderedAt
	}

	result, err := tx.Exec(`UPDATE supplier_orders SET supplier_order_number = ?, carrier = ?,
			tracking_number = ?, tracking_url = ?, shipment_reference = ?,
			supplier_shipped_at = ?, email_message_id = ?, email_subject = ?,
			email_from = ?, email_received_at = ?, status = ?, ordered_at = ?,
			updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
		current.SupplierOrderNumber, current.Carrier, current.TrackingNumber,
		current.TrackingURL, current.ShipmentReference, current.SupplierShippedAt,
		current.EmailMessageID, current.EmailSubject, current.EmailFrom,
		current.EmailReceivedAt, current.Status, current.OrderedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update supplier order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}
