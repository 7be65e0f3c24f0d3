package carriers

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// OrderParams selects the offer to purchase and the collection details.
// Operator and service codes must keep the broker's exact casing from the
// quote response.
type OrderParams struct {
	OperatorCode   string
	ServiceCode    string
	CollectionDate string // YYYY-MM-DD
	Reason         string // free-text shipment reason/reference
}

// Shipment is the result of a label purchase.
type Shipment struct {
	OK        bool     `json:"ok"`
	Reference string   `json:"reference,omitempty"`
	Labels    []string `json:"labels,omitempty"` // label document URLs
	Offer     *Quote   `json:"offer,omitempty"`  // chosen-offer echo
	Errors    []string `json:"errors,omitempty"`
}

// OrderStatus is the result of polling a purchased shipment.
type OrderStatus struct {
	OK               bool     `json:"ok"`
	State            string   `json:"state,omitempty"`
	CarrierReference string   `json:"carrier_reference,omitempty"`
	LabelURL         string   `json:"label_url,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// Document is a downloaded label or customs document.
type Document struct {
	OK          bool     `json:"ok"`
	Body        []byte   `json:"-"`
	ContentType string   `json:"content_type,omitempty"`
	Status      int      `json:"status,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// orderResponseXML matches the nested success document.
type orderResponseXML struct {
	Shipment struct {
		Reference string        `xml:"reference"`
		Labels    []string      `xml:"labels>label"`
		Offer     quoteOfferXML `xml:"offer"`
	} `xml:"shipment"`
}

// flatOrderResponseXML matches the alternate shape where the fields sit at
// the document root.
type flatOrderResponseXML struct {
	Reference string   `xml:"reference"`
	Labels    []string `xml:"labels>label"`
}

// CreateOrder purchases a shipment label for the selected offer. The form
// payload carries both the French and English field naming conventions:
// which one the broker honors varies by environment, and unknown fields
// are ignored.
func (g *Gateway) CreateOrder(shipper, recipient Address, packages []Package, params OrderParams, contentCode string) *Shipment {
	pairs := g.pairsPreferLogin()
	if len(pairs) == 0 {
		return &Shipment{OK: false, Errors: []string{"no carrier credentials configured"}}
	}

	form := url.Values{}
	addAddressForm(form, "expediteur", shipper)
	addAddressForm(form, "shipper", shipper)
	addAddressForm(form, "destinataire", recipient)
	addAddressForm(form, "recipient", recipient)

	form.Set("operateur", params.OperatorCode)
	form.Set("operator", params.OperatorCode)
	form.Set("service", params.ServiceCode)
	form.Set("code_contenu", contentCode)
	if params.CollectionDate != "" {
		form.Set("collecte", params.CollectionDate)
		form.Set("collection_date", params.CollectionDate)
	}
	if params.Reason != "" {
		form.Set("raison", params.Reason)
		form.Set("reason", params.Reason)
	}

	for i, pkg := range packages {
		prefix := fmt.Sprintf("colis_%d", i+1)
		form.Set(prefix+".poids", formatFloat(pkg.WeightKg))
		form.Set(prefix+".longueur", strconv.Itoa(pkg.LengthCm))
		form.Set(prefix+".largeur", strconv.Itoa(pkg.WidthCm))
		form.Set(prefix+".hauteur", strconv.Itoa(pkg.HeightCm))
		form.Set(prefix+".valeur", formatFloat(pkg.ValueEur))
	}

	endpoint := g.endpoint("/v1/order", nil)
	encoded := form.Encode()

	resp, err := g.doWithFailover(pairs, orderTimeout, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return &Shipment{OK: false, Errors: []string{err.Error()}}
	}
	if !resp.ok() {
		return &Shipment{OK: false, Errors: extractAPIErrors(resp.Body)}
	}

	return parseOrderResponse(resp.Body)
}

// parseOrderResponse accepts both nesting shapes; a shipment without a
// reference is a failure regardless of HTTP status.
func parseOrderResponse(body []byte) *Shipment {
	var nested orderResponseXML
	if err := xml.Unmarshal(body, &nested); err == nil && strings.TrimSpace(nested.Shipment.Reference) != "" {
		shipment := &Shipment{
			OK:        true,
			Reference: strings.TrimSpace(nested.Shipment.Reference),
			Labels:    cleanStrings(nested.Shipment.Labels),
		}
		if offers := parseOfferEcho(nested.Shipment.Offer); offers != nil {
			shipment.Offer = offers
		}
		return shipment
	}

	var flat flatOrderResponseXML
	if err := xml.Unmarshal(body, &flat); err == nil && strings.TrimSpace(flat.Reference) != "" {
		return &Shipment{
			OK:        true,
			Reference: strings.TrimSpace(flat.Reference),
			Labels:    cleanStrings(flat.Labels),
		}
	}

	return &Shipment{OK: false, Errors: extractAPIErrors(body)}
}

// parseOfferEcho normalizes the chosen-offer echo when present.
func parseOfferEcho(offer quoteOfferXML) *Quote {
	quotes := parseQuotesFromOffers([]quoteOfferXML{offer})
	if len(quotes) == 0 {
		return nil
	}
	return &quotes[0]
}

// orderStatusXML matches the nested status document.
type orderStatusXML struct {
	Shipment struct {
		State             string   `xml:"state"`
		Status            string   `xml:"status"`
		CarrierReference  string   `xml:"carrier_reference"`
		CarrierReference2 string   `xml:"carrier-reference"`
		LabelURL          string   `xml:"label_url"`
		Labels            []string `xml:"labels>label"`
	} `xml:"shipment"`
}

// flatOrderStatusXML matches the alternate root-level shape.
type flatOrderStatusXML struct {
	State             string   `xml:"state"`
	Status            string   `xml:"status"`
	CarrierReference  string   `xml:"carrier_reference"`
	CarrierReference2 string   `xml:"carrier-reference"`
	LabelURL          string   `xml:"label_url"`
	Labels            []string `xml:"labels>label"`
}

var carrierReferencePattern = regexp.MustCompile(`(?i)<carrier[_-]?reference[^>]*>\s*([^<\s][^<]*?)\s*<`)

// GetOrderInformations polls the status of a purchased shipment. The
// carrier's own tracking reference moves around between response versions,
// so extraction tries an ordered list of locations: nested document, flat
// document, then a regex over the raw body. First non-empty hit wins.
func (g *Gateway) GetOrderInformations(reference string) *OrderStatus {
	pairs := g.pairsPreferLogin()
	if len(pairs) == 0 {
		return &OrderStatus{OK: false, Errors: []string{"no carrier credentials configured"}}
	}
	if strings.TrimSpace(reference) == "" {
		return &OrderStatus{OK: false, Errors: []string{"empty shipment reference"}}
	}

	endpoint := g.endpoint("/v1/order/"+url.PathEscape(reference)+"/informations", nil)

	resp, err := g.doWithFailover(pairs, statusTimeout, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return &OrderStatus{OK: false, Errors: []string{err.Error()}}
	}
	if !resp.ok() {
		return &OrderStatus{OK: false, Errors: extractAPIErrors(resp.Body)}
	}

	status := &OrderStatus{OK: true}

	var nested orderStatusXML
	if err := xml.Unmarshal(resp.Body, &nested); err == nil {
		status.State = firstNonEmpty(nested.Shipment.State, nested.Shipment.Status)
		status.CarrierReference = firstNonEmpty(nested.Shipment.CarrierReference, nested.Shipment.CarrierReference2)
		status.LabelURL = strings.TrimSpace(nested.Shipment.LabelURL)
		status.Labels = cleanStrings(nested.Shipment.Labels)
	}

	if status.State == "" || status.CarrierReference == "" {
		var flat flatOrderStatusXML
		if err := xml.Unmarshal(resp.Body, &flat); err == nil {
			if status.State == "" {
				status.State = firstNonEmpty(flat.State, flat.Status)
			}
			if status.CarrierReference == "" {
				status.CarrierReference = firstNonEmpty(flat.CarrierReference, flat.CarrierReference2)
			}
			if status.LabelURL == "" {
				status.LabelURL = strings.TrimSpace(flat.LabelURL)
			}
			if len(status.Labels) == 0 {
				status.Labels = cleanStrings(flat.Labels)
			}
		}
	}

	// Regex fallback over the raw body for response shapes neither struct
	// anticipates.
	if status.CarrierReference == "" {
		if match := carrierReferencePattern.FindSubmatch(resp.Body); len(match) > 1 {
			status.CarrierReference = strings.TrimSpace(string(match[1]))
		}
	}

	status.State = strings.TrimSpace(status.State)
	status.CarrierReference = strings.TrimSpace(status.CarrierReference)

	return status
}

// DownloadDocument fetches a label or customs document by URL.
func (g *Gateway) DownloadDocument(documentURL string) *Document {
	pairs := g.pairsPreferLogin()
	if len(pairs) == 0 {
		return &Document{OK: false, Errors: []string{"no carrier credentials configured"}}
	}

	resp, err := g.doWithFailover(pairs, documentTimeout, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, documentURL, nil)
	})
	if err != nil {
		return &Document{OK: false, Errors: []string{err.Error()}}
	}
	if !resp.ok() {
		return &Document{
			OK:     false,
			Status: resp.StatusCode,
			Errors: []string{truncate(stripMarkup(string(resp.Body)), errorPreviewLen)},
		}
	}

	return &Document{
		OK:          true,
		Body:        resp.Body,
		ContentType: resp.ContentType,
	}
}

func addAddressForm(form url.Values, prefix string, addr Address) {
	form.Set(prefix+".pays", addr.Country)
	form.Set(prefix+".code_postal", addr.Zipcode)
	form.Set(prefix+".ville", addr.City)
	form.Set(prefix+".adresse", addr.Street)
	form.Set(prefix+".societe", addr.Company)
	form.Set(prefix+".prenom", addr.FirstName)
	form.Set(prefix+".nom", addr.LastName)
	form.Set(prefix+".email", addr.Email)
	form.Set(prefix+".tel", addr.Phone)
}

func cleanStrings(values []string) []string {
	var cleaned []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
