package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"logistics-recon/internal/carriers"
	"logistics-recon/internal/config"
	"logistics-recon/internal/database"
)

// ShippingHandler exposes the carrier gateway over HTTP: rate quotes, label
// purchase, status polling and label document download.
type ShippingHandler struct {
	db      *database.DB
	gateway *carriers.Gateway
	cfg     *config.Config
}

// NewShippingHandler creates a new shipping handler
func NewShippingHandler(db *database.DB, gateway *carriers.Gateway, cfg *config.Config) *ShippingHandler {
	return &ShippingHandler{db: db, gateway: gateway, cfg: cfg}
}

// GetQuotes handles GET /api/shipping/quotes. Destination comes from query
// parameters; parcel dimensions fall back to the configured defaults.
// Quoting is advisory, so the response is always a list, possibly empty.
func (h *ShippingHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	destination := carriers.Address{
		Zipcode: query.Get("zipcode"),
		City:    query.Get("city"),
		Country: query.Get("country"),
	}
	if destination.Country == "" {
		destination.Country = h.cfg.OriginCountry
	}
	if destination.Zipcode == "" {
		http.Error(w, "zipcode is required", http.StatusBadRequest)
		return
	}

	pkg := h.defaultPackage()
	if weight := queryFloat(r, "weight_kg"); weight > 0 {
		pkg.WeightKg = weight
	}
	if value := queryFloat(r, "value"); value > 0 {
		pkg.ValueEur = value
	}

	quotes := h.gateway.Quotes(h.originAddress(), destination, []carriers.Package{pkg}, h.cfg.DefaultContentCode)
	if quotes == nil {
		quotes = []carriers.Quote{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(quotes)
}

// labelRequest is the body of a label purchase.
type labelRequest struct {
	OperatorCode   string           `json:"operator_code"`
	ServiceCode    string           `json:"service_code"`
	CollectionDate string           `json:"collection_date,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Recipient      recipientAddress `json:"recipient"`
	Packages       []packageRequest `json:"packages,omitempty"`
}

type recipientAddress struct {
	Company   string `json:"company,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Street    string `json:"street"`
	Zipcode   string `json:"zipcode"`
	City      string `json:"city"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type packageRequest struct {
	WeightKg float64 `json:"weight_kg"`
	LengthCm int     `json:"length_cm,omitempty"`
	WidthCm  int     `json:"width_cm,omitempty"`
	HeightCm int     `json:"height_cm,omitempty"`
	ValueEur float64 `json:"value,omitempty"`
}

// BuyLabel handles POST /api/orders/{id}/label. A successful purchase is
// applied to the supplier order through the same forward-only store update
// reconciliation uses, so a concurrent mail sync cannot regress it.
func (h *ShippingHandler) BuyLabel(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	if !h.gateway.Enabled() {
		http.Error(w, "Carrier gateway not configured", http.StatusServiceUnavailable)
		return
	}

	order, err := h.db.SupplierOrders.GetByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Supplier order not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: Failed to get supplier order %d: %v", id, err)
		http.Error(w, "Failed to get supplier order", http.StatusInternalServerError)
		return
	}

	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.OperatorCode == "" || req.ServiceCode == "" {
		http.Error(w, "operator_code and service_code are required", http.StatusBadRequest)
		return
	}
	if req.Recipient.Street == "" || req.Recipient.Zipcode == "" || req.Recipient.City == "" {
		http.Error(w, "recipient street, zipcode and city are required", http.StatusBadRequest)
		return
	}

	recipient := carriers.Address{
		Company:   req.Recipient.Company,
		FirstName: req.Recipient.FirstName,
		LastName:  req.Recipient.LastName,
		Street:    req.Recipient.Street,
		Zipcode:   req.Recipient.Zipcode,
		City:      req.Recipient.City,
		Country:   req.Recipient.Country,
		Email:     req.Recipient.Email,
		Phone:     req.Recipient.Phone,
	}
	if recipient.Country == "" {
		recipient.Country = h.cfg.OriginCountry
	}

	packages := h.requestPackages(req.Packages)
	params := carriers.OrderParams{
		OperatorCode:   req.OperatorCode,
		ServiceCode:    req.ServiceCode,
		CollectionDate: req.CollectionDate,
		Reason:         req.Reason,
	}
	if params.Reason == "" {
		params.Reason = fmt.Sprintf("supplier order %d", order.ID)
	}

	shipment := h.gateway.CreateOrder(h.originAddress(), recipient, packages, params, h.cfg.DefaultContentCode)
	if !shipment.OK {
		log.Printf("WARN: Label purchase failed for order %d: %v", order.ID, shipment.Errors)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(shipment)
		return
	}

	update := database.ShipmentUpdate{ShipmentReference: shipment.Reference}
	if shipment.Offer != nil {
		update.Carrier = shipment.Offer.DisplayName
	}
	if err := h.db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
		log.Printf("ERROR: Label %s purchased but order %d not updated: %v", shipment.Reference, order.ID, err)
		http.Error(w, "Label purchased but order update failed", http.StatusInternalServerError)
		return
	}

	log.Printf("Purchased label %s for supplier order %d", shipment.Reference, order.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(shipment)
}

// GetOrderStatus handles GET /api/orders/{id}/status. When the broker
// reports a carrier tracking reference it is folded back onto the order.
func (h *ShippingHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Failed to get supplier order", http.StatusInternalServerError)
		return
	}

	if order.ShipmentReference == "" {
		http.Error(w, "Order has no shipment reference", http.StatusConflict)
		return
	}

	status := h.gateway.GetOrderInformations(order.ShipmentReference)
	if status.OK && status.CarrierReference != "" && order.TrackingNumber == "" {
		update := database.ShipmentUpdate{
			TrackingNumber: status.CarrierReference,
			TrackingURL:    carriers.TrackingURL(order.Carrier, status.CarrierReference),
		}
		if err := h.db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
			log.Printf("ERROR: Failed to store carrier reference for order %d: %v", order.ID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusBadGateway)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// DownloadLabel handles GET /api/orders/{id}/label/document: it resolves
// the label URL through a status poll and streams the document bytes.
func (h *ShippingHandler) DownloadLabel(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Failed to get supplier order", http.StatusInternalServerError)
		return
	}

	if order.ShipmentReference == "" {
		http.Error(w, "Order has no shipment reference", http.StatusConflict)
		return
	}

	status := h.gateway.GetOrderInformations(order.ShipmentReference)
	labelURL := status.LabelURL
	if labelURL == "" && len(status.Labels) > 0 {
		labelURL = status.Labels[0]
	}
	if labelURL == "" {
		http.Error(w, "No label document available yet", http.StatusNotFound)
		return
	}

	doc := h.gateway.DownloadDocument(labelURL)
	if !doc.OK {
		log.Printf("WARN: Label download failed for order %d: %v", order.ID, doc.Errors)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(doc)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Body)
}

// originAddress builds the configured warehouse address.
func (h *ShippingHandler) originAddress() carriers.Address {
	return carriers.Address{
		Company: h.cfg.OriginCompany,
		Street:  h.cfg.OriginStreet,
		Zipcode: h.cfg.OriginZipcode,
		City:    h.cfg.OriginCity,
		Country: h.cfg.OriginCountry,
		Email:   h.cfg.OriginEmail,
		Phone:   h.cfg.OriginPhone,
	}
}

// defaultPackage builds a parcel from the configured defaults.
func (h *ShippingHandler) defaultPackage() carriers.Package {
	return carriers.Package{
		WeightKg: h.cfg.DefaultParcelWeightKg,
		LengthCm: h.cfg.DefaultParcelLengthCm,
		WidthCm:  h.cfg.DefaultParcelWidthCm,
		HeightCm: h.cfg.DefaultParcelHeightCm,
	}
}

// requestPackages converts the request parcels, defaulting missing
// dimensions per parcel.
func (h *ShippingHandler) requestPackages(reqs []packageRequest) []carriers.Package {
	if len(reqs) == 0 {
		return []carriers.Package{h.defaultPackage()}
	}

	packages := make([]carriers.Package, 0, len(reqs))
	for _, req := range reqs {
		pkg := h.defaultPackage()
		if req.WeightKg > 0 {
			pkg.WeightKg = req.WeightKg
		}
		if req.LengthCm > 0 {
			pkg.LengthCm = req.LengthCm
		}
		if req.WidthCm > 0 {
			pkg.WidthCm = req.WidthCm
		}
		if req.HeightCm > 0 {
			pkg.HeightCm = req.HeightCm
		}
		pkg.ValueEur = req.ValueEur
		packages = append(packages, pkg)
	}

	return packages
}

// queryFloat reads a float query parameter, 0 when absent or malformed.
func queryFloat(r *http.Request, key string) float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}
