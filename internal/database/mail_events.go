package database

import (
	"database/sql"
	"time"
)

const mailEventColumns = `id, supplier, message_id, received_at, from_address, subject,
		  order_number, carrier, tracking_number, preview, supplier_order_id,
		  retail_order_id, created_at`

// MailEventStore handles database operations for supplier mail events
type MailEventStore struct {
	db *sql.DB
}

func NewMailEventStore(db *sql.DB) *MailEventStore {
	return &MailEventStore{db: db}
}

func scanMailEvent(row interface{ Scan(...interface{}) error }) (*SupplierMailEvent, error) {
	var event SupplierMailEvent
	err := row.Scan(&event.ID, &event.Supplier, &event.MessageID, &event.ReceivedAt,
		&event.FromAddress, &event.Subject, &event.OrderNumber, &event.Carrier,
		&event.TrackingNumber, &event.Preview, &event.SupplierOrderID,
		&event.RetailOrderID, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByMessageID retrieves an event by mail message identifier.
// Returns sql.ErrNoRows when the message has not been seen.
func (s *MailEventStore) GetByMessageID(messageID string) (*SupplierMailEvent, error) {
	query := `SELECT ` + mailEventColumns + ` FROM supplier_mail_events WHERE message_id = ?`
	return scanMailEvent(s.db.QueryRow(query, messageID))
}

// Create persists a new event. Ingestion is idempotent on message_id:
// if a concurrent run already inserted the same message, the existing row
// is loaded instead and created=false is returned.
func (s *MailEventStore) Create(event *SupplierMailEvent) (bool, error) {
	query := `INSERT INTO supplier_mail_events (supplier, message_id, received_at,
			  from_address, subject, order_number, carrier, tracking_number, preview,
			  supplier_order_id, retail_order_id)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(message_id) DO NOTHING`

	result, err := s.db.Exec(query, event.Supplier, event.MessageID, event.ReceivedAt,
		event.FromAddress, event.Subject, event.OrderNumber, event.Carrier,
		event.TrackingNumber, event.Preview, event.SupplierOrderID, event.RetailOrderID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	existing, err := s.GetByMessageID(event.MessageID)
	if err != nil {
		return false, err
	}
	*event = *existing

	return rowsAffected > 0, nil
}

// AttachMatch records the reconciliation result on an event. Links are only
// ever set, never unset.
func (s *MailEventStore) AttachMatch(id, supplierOrderID, retailOrderID int) error {
	result, err := s.db.Exec(
		`UPDATE supplier_mail_events SET supplier_order_id = ?, retail_order_id = ? WHERE id = ?`,
		supplierOrderID, retailOrderID, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GetRecent returns the most recently received events, optionally only the
// ones still without a resolved supplier order.
func (s *MailEventStore) GetRecent(limit int, unmatchedOnly bool) ([]SupplierMailEvent, error) {
	query := `SELECT ` + mailEventColumns + ` FROM supplier_mail_events`
	if unmatchedOnly {
		query += ` WHERE supplier_order_id IS NULL`
	}
	query += ` ORDER BY received_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SupplierMailEvent
	for rows.Next() {
		event, err := scanMailEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// GetUnmatchedSince returns unmatched events received after the cutoff,
// newest first. The sync engine retries reconciliation for these on every
// pass.
func (s *MailEventStore) GetUnmatchedSince(supplier string, cutoff time.Time) ([]SupplierMailEvent, error) {
	query := `SELECT ` + mailEventColumns + `
			  FROM supplier_mail_events
			  WHERE supplier = ? AND supplier_order_id IS NULL AND received_at >= ?
			  ORDER BY received_at DESC`

	rows, err := s.db.Query(query, supplier, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SupplierMailEvent
	for rows.Next() {
		event, err := scanMailEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}
