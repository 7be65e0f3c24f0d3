package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"logistics-recon/internal/carriers"
	"logistics-recon/internal/config"
	"logistics-recon/internal/database"

	"github.com/go-chi/chi/v5"
)

func shippingTestConfig() *config.Config {
	return &config.Config{
		OriginCompany:         "Recon Warehouse",
		OriginStreet:          "12 rue des Entrepots",
		OriginZipcode:         "69001",
		OriginCity:            "Lyon",
		OriginCountry:         "FR",
		DefaultContentCode:    "10120",
		DefaultParcelWeightKg: 0.5,
		DefaultParcelLengthCm: 20,
		DefaultParcelWidthCm:  15,
		DefaultParcelHeightCm: 10,
	}
}

func newShippingRouter(db *database.DB, gateway *carriers.Gateway, cfg *config.Config) http.Handler {
	handler := NewShippingHandler(db, gateway, cfg)
	r := chi.NewRouter()
	r.Get("/api/shipping/quotes", handler.GetQuotes)
	r.Post("/api/orders/{id}/label", handler.BuyLabel)
	r.Get("/api/orders/{id}/status", handler.GetOrderStatus)
	r.Get("/api/orders/{id}/label/document", handler.DownloadLabel)
	return r
}

func brokerGateway(url string) *carriers.Gateway {
	return carriers.NewGateway(carriers.Config{BaseURL: url, Login: "login", Password: "password"})
}

func TestGetQuotes(t *testing.T) {
	t.Run("MissingZipcode", func(t *testing.T) {
		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway("http://broker.invalid"), shippingTestConfig())

		req := httptest.NewRequest("GET", "/api/shipping/quotes", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("ReturnsBrokerOffers", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/cotation" {
				t.Errorf("Unexpected broker path: %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("destinataire.code_postal"); got != "75001" {
				t.Errorf("Expected destination zipcode 75001, got %s", got)
			}
			if got := r.URL.Query().Get("colis_1.poids"); got != "1.2" {
				t.Errorf("Expected weight override 1.2, got %s", got)
			}
			w.Write([]byte(`<cotation><shipment><offer>
			  <operator><code>MONR</code><label>Mondial Relay</label></operator>
			  <service><code>CpourToi</code><label>Comptoir</label></service>
			  <price><tax-inclusive>4.90</tax-inclusive></price>
			</offer></shipment></cotation>`))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		req := httptest.NewRequest("GET", "/api/shipping/quotes?zipcode=75001&city=Paris&weight_kg=1.2", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var quotes []carriers.Quote
		if err := json.NewDecoder(w.Body).Decode(&quotes); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(quotes) != 1 {
			t.Fatalf("Expected 1 quote, got %d", len(quotes))
		}
		if quotes[0].DisplayName != "Mondial Relay" {
			t.Errorf("Expected 'Mondial Relay', got '%s'", quotes[0].DisplayName)
		}
	})

	t.Run("BrokerFailureYieldsEmptyList", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		req := httptest.NewRequest("GET", "/api/shipping/quotes?zipcode=75001", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("Expected empty JSON array, got %q", body)
		}
	})
}

func TestBuyLabel(t *testing.T) {
	validBody := `{
		"operator_code": "MONR",
		"service_code": "CpourToi",
		"recipient": {"street": "1 rue de Rivoli", "zipcode": "75001", "city": "Paris"}
	}`

	t.Run("GatewayNotConfigured", func(t *testing.T) {
		db := setupTestDB(t)
		gateway := carriers.NewGateway(carriers.Config{BaseURL: "http://broker.invalid"})
		router := newShippingRouter(db, gateway, shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		req := httptest.NewRequest("POST", fmt.Sprintf("/api/orders/%d/label", order.ID), bytes.NewBufferString(validBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})

	t.Run("OrderNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway("http://broker.invalid"), shippingTestConfig())

		req := httptest.NewRequest("POST", "/api/orders/99999/label", bytes.NewBufferString(validBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("MissingServiceCode", func(t *testing.T) {
		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway("http://broker.invalid"), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		body := `{"operator_code": "MONR", "recipient": {"street": "x", "zipcode": "75001", "city": "Paris"}}`
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/orders/%d/label", order.ID), bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("MissingRecipientAddress", func(t *testing.T) {
		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway("http://broker.invalid"), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		body := `{"operator_code": "MONR", "service_code": "CpourToi", "recipient": {"city": "Paris"}}`
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/orders/%d/label", order.ID), bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("SuccessfulPurchaseUpdatesOrder", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<order><shipment>
			  <reference>EMC-20260827-001</reference>
			  <offer>
			    <operator><code>MONR</code><label>Mondial Relay</label></operator>
			    <service><code>CpourToi</code><label>Comptoir</label></service>
			  </offer>
			</shipment></order>`))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		req := httptest.NewRequest("POST", fmt.Sprintf("/api/orders/%d/label", order.ID), bytes.NewBufferString(validBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var shipment carriers.Shipment
		if err := json.NewDecoder(w.Body).Decode(&shipment); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if shipment.Reference != "EMC-20260827-001" {
			t.Errorf("Expected reference 'EMC-20260827-001', got '%s'", shipment.Reference)
		}

		updated, err := db.SupplierOrders.GetByID(order.ID)
		if err != nil {
			t.Fatalf("Failed to reload order: %v", err)
		}
		if updated.ShipmentReference != "EMC-20260827-001" {
			t.Errorf("Expected shipment reference stored on order, got '%s'", updated.ShipmentReference)
		}
		if updated.Carrier != "Mondial Relay" {
			t.Errorf("Expected carrier 'Mondial Relay', got '%s'", updated.Carrier)
		}
		if updated.Status != database.StatusOrdered {
			t.Errorf("Expected status 'ordered', got '%s'", updated.Status)
		}
	})

	t.Run("BrokerRejection", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`<errors><error><code>E012</code><message>invalid collection date</message></error></errors>`))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		req := httptest.NewRequest("POST", fmt.Sprintf("/api/orders/%d/label", order.ID), bytes.NewBufferString(validBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Fatalf("Expected status 502, got %d", w.Code)
		}

		var shipment carriers.Shipment
		if err := json.NewDecoder(w.Body).Decode(&shipment); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if shipment.OK {
			t.Error("Expected shipment.OK to be false")
		}
		if len(shipment.Errors) == 0 || !strings.Contains(shipment.Errors[0], "E012") {
			t.Errorf("Expected broker error E012 in response, got %v", shipment.Errors)
		}

		// The failed purchase must not touch the order.
		untouched, err := db.SupplierOrders.GetByID(order.ID)
		if err != nil {
			t.Fatalf("Failed to reload order: %v", err)
		}
		if untouched.ShipmentReference != "" {
			t.Errorf("Expected no shipment reference, got '%s'", untouched.ShipmentReference)
		}
	})
}

func TestGetOrderStatus(t *testing.T) {
	t.Run("NoShipmentReference", func(t *testing.T) {
		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway("http://broker.invalid"), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/orders/%d/status", order.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", w.Code)
		}
	})

	t.Run("FoldsCarrierReferenceOntoOrder", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/order/EMC-1/informations" {
				t.Errorf("Unexpected broker path: %s", r.URL.Path)
			}
			w.Write([]byte(`<order><shipment>
			  <state>ordered</state>
			  <carrier_reference>1Z999AA10123456784</carrier_reference>
			</shipment></order>`))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}
		update := database.ShipmentUpdate{ShipmentReference: "EMC-1", Carrier: "UPS"}
		if err := db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
			t.Fatalf("Failed to set shipment reference: %v", err)
		}

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/orders/%d/status", order.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var status carriers.OrderStatus
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status.State != "ordered" {
			t.Errorf("Expected state 'ordered', got '%s'", status.State)
		}

		updated, err := db.SupplierOrders.GetByID(order.ID)
		if err != nil {
			t.Fatalf("Failed to reload order: %v", err)
		}
		if updated.TrackingNumber != "1Z999AA10123456784" {
			t.Errorf("Expected carrier reference folded onto order, got '%s'", updated.TrackingNumber)
		}
		if !strings.Contains(updated.TrackingURL, "ups.com") {
			t.Errorf("Expected UPS tracking URL, got '%s'", updated.TrackingURL)
		}
	})

	t.Run("BrokerFailure", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("<error><message>upstream down</message></error>"))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}
		update := database.ShipmentUpdate{ShipmentReference: "EMC-1"}
		if err := db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
			t.Fatalf("Failed to set shipment reference: %v", err)
		}

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/orders/%d/status", order.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("Expected status 502, got %d", w.Code)
		}
	})
}

func TestDownloadLabel(t *testing.T) {
	t.Run("StreamsDocument", func(t *testing.T) {
		pdf := []byte("%PDF-1.4 fake label")
		var brokerURL string
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/informations"):
				fmt.Fprintf(w, `<order><shipment>
				  <state>ordered</state>
				  <label_url>%s/labels/1.pdf</label_url>
				</shipment></order>`, brokerURL)
			case r.URL.Path == "/labels/1.pdf":
				w.Header().Set("Content-Type", "application/pdf")
				w.Write(pdf)
			default:
				t.Errorf("Unexpected broker path: %s", r.URL.Path)
			}
		}))
		defer broker.Close()
		brokerURL = broker.URL

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}
		update := database.ShipmentUpdate{ShipmentReference: "EMC-1"}
		if err := db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
			t.Fatalf("Failed to set shipment reference: %v", err)
		}

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/orders/%d/label/document", order.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Content-Type"); got != "application/pdf" {
			t.Errorf("Expected Content-Type application/pdf, got %s", got)
		}
		if !bytes.Equal(w.Body.Bytes(), pdf) {
			t.Error("Expected label bytes to be streamed unchanged")
		}
	})

	t.Run("NoLabelYet", func(t *testing.T) {
		broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<order><shipment><state>submitted</state></shipment></order>`))
		}))
		defer broker.Close()

		db := setupTestDB(t)
		router := newShippingRouter(db, brokerGateway(broker.URL), shippingTestConfig())

		order := &database.SupplierOrder{RetailOrderID: 42, Supplier: "acme"}
		if err := db.SupplierOrders.Create(order); err != nil {
			t.Fatalf("Failed to create test order: %v", err)
		}
		update := database.ShipmentUpdate{ShipmentReference: "EMC-2"}
		if err := db.SupplierOrders.ApplyShipmentFacts(order.ID, update); err != nil {
			t.Fatalf("Failed to set shipment reference: %v", err)
		}

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/orders/%d/label/document", order.ID), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}
