package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"logistics-recon/internal/database"

	"github.com/go-chi/chi/v5"
)

// OrderHandler handles HTTP requests for supplier orders
type OrderHandler struct {
	db *database.DB
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(db *database.DB) *OrderHandler {
	return &OrderHandler{db: db}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var order database.SupplierOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		log.Printf("ERROR: Invalid JSON in CreateOrder: %v", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := validateOrder(&order); err != nil {
		log.Printf("ERROR: Validation failed for supplier order: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.SupplierOrders.Create(&order); err != nil {
		log.Printf("ERROR: Failed to create supplier order: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create supplier order: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// GetOrderByID handles GET /api/orders/{id}
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	order, err := h.db.SupplierOrders.GetByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Supplier order not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to get supplier order %d: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to get supplier order: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(order)
}

// validateOrder checks the fields a new supplier order must carry.
func validateOrder(order *database.SupplierOrder) error {
	if order.RetailOrderID <= 0 {
		return fmt.Errorf("retail_order_id is required")
	}
	if order.Supplier == "" {
		return fmt.Errorf("supplier is required")
	}
	switch order.Status {
	case "", database.StatusToOrder, database.StatusOrdered, database.StatusReceived:
	default:
		return fmt.Errorf("invalid status: %s", order.Status)
	}
	return nil
}

// orderID extracts the {id} route parameter.
func orderID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}
