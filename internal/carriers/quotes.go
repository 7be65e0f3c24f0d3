package carriers

import (
	"encoding/xml"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Address identifies one end of a shipment for quoting and label purchase.
type Address struct {
	Company   string
	FirstName string
	LastName  string
	Street    string
	Zipcode   string
	City      string
	Country   string
	Email     string
	Phone     string
}

// Package is one parcel's dimensions, weight and declared value.
type Package struct {
	WeightKg float64
	LengthCm int
	WidthCm  int
	HeightCm int
	ValueEur float64
}

// Quote is one shipping-rate offer returned by the broker.
type Quote struct {
	MethodID        string  `json:"method_id"` // "boxtal:OPERATOR:SERVICE"
	DisplayName     string  `json:"display_name"`
	Price           float64 `json:"price"`
	DelayText       string  `json:"delay_text,omitempty"`
	CollectionDate  string  `json:"collection_date,omitempty"`
	OfferType       string  `json:"offer_type"` // "shipping" or "relay"
	OperatorCode    string  `json:"operator_code"`
	ServiceCode     string  `json:"service_code"`
	RawOperatorCode string  `json:"raw_operator_code"`
	// RawServiceCode keeps the broker's exact casing: the purchase call is
	// case-sensitive for some services.
	RawServiceCode string `json:"raw_service_code"`
}

// Offer types.
const (
	OfferTypeShipping = "shipping"
	OfferTypeRelay    = "relay"
)

// relayOperators deliver to pickup points rather than door addresses.
var relayOperators = map[string]bool{
	"MONR": true, // Mondial Relay
	"SOGP": true, // Relais Colis
}

var relayServicePattern = regexp.MustCompile(`(?i)(relais|relay|pickup|shop)`)

// isRelayOffer classifies an offer from its operator and service codes.
func isRelayOffer(operatorCode, serviceCode string) bool {
	return relayOperators[operatorCode] || relayServicePattern.MatchString(serviceCode)
}

// displayRule renders a human display name for an offer. Rules are
// evaluated top to bottom; the first matching rule wins. The last rule
// always matches.
type displayRule struct {
	Match  func(operatorCode, serviceCode string) bool
	Render func(operatorLabel, serviceLabel string) string
}

var displayNameRules = []displayRule{
	{
		// Mondial Relay brands its pickup-point offers under its own name
		// regardless of the service label.
		Match:  func(op, _ string) bool { return op == "MONR" },
		Render: func(_, _ string) string { return "Mondial Relay" },
	},
	{
		Match:  func(op, _ string) bool { return op == "SOGP" },
		Render: func(_, _ string) string { return "Relais Colis" },
	},
	{
		// Colissimo home delivery gets an explicit qualifier to distinguish
		// it from the relay variant.
		Match: func(op, svc string) bool { return op == "POFR" && !isRelayOffer(op, svc) },
		Render: func(opLabel, _ string) string {
			return strings.TrimSpace(opLabel) + " Domicile"
		},
	},
	{
		Match: func(_, _ string) bool { return true },
		Render: func(opLabel, svcLabel string) string {
			return strings.TrimSpace(strings.TrimSpace(opLabel) + " " + strings.TrimSpace(svcLabel))
		},
	},
}

func renderDisplayName(operatorCode, serviceCode, operatorLabel, serviceLabel string) string {
	for _, rule := range displayNameRules {
		if rule.Match(operatorCode, serviceCode) {
			return rule.Render(operatorLabel, serviceLabel)
		}
	}
	return operatorLabel
}

// quoteOfferXML mirrors one <offer> node of the rate-quote response.
type quoteOfferXML struct {
	Operator struct {
		Code  string `xml:"code"`
		Label string `xml:"label"`
	} `xml:"operator"`
	Service struct {
		Code  string `xml:"code"`
		Label string `xml:"label"`
	} `xml:"service"`
	Price struct {
		TaxInclusive string `xml:"tax-inclusive"`
		TaxExclusive string `xml:"tax-exclusive"`
	} `xml:"price"`
	Delivery struct {
		Date  string `xml:"date"`
		Label string `xml:"label"`
	} `xml:"delivery"`
	Collection struct {
		Date string `xml:"date"`
	} `xml:"collection"`
}

// The broker returns offers either wrapped in <cotation><shipment> or as a
// bare <offers> list depending on endpoint version. Both are tolerated.
type cotationXML struct {
	Offers []quoteOfferXML `xml:"shipment>offer"`
}

type offerListXML struct {
	Offers []quoteOfferXML `xml:"offer"`
}

// Quotes requests rate offers for the given shipment. Quoting is advisory:
// missing credentials, transport failures and malformed responses all yield
// an empty list, never an error.
func (g *Gateway) Quotes(origin, destination Address, packages []Package, contentCode string) []Quote {
	pairs := g.pairsPreferKey()
	if len(pairs) == 0 || len(packages) == 0 {
		return nil
	}

	query := url.Values{}
	addAddressQuery(query, "expediteur", origin)
	addAddressQuery(query, "destinataire", destination)
	query.Set("code_contenu", contentCode)
	for i, pkg := range packages {
		prefix := fmt.Sprintf("colis_%d", i+1)
		query.Set(prefix+".poids", formatFloat(pkg.WeightKg))
		query.Set(prefix+".longueur", strconv.Itoa(pkg.LengthCm))
		query.Set(prefix+".largeur", strconv.Itoa(pkg.WidthCm))
		query.Set(prefix+".hauteur", strconv.Itoa(pkg.HeightCm))
		query.Set(prefix+".valeur", formatFloat(pkg.ValueEur))
	}

	endpoint := g.endpoint("/v1/cotation", query)

	resp, err := g.doWithFailover(pairs, quotesTimeout, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil || resp == nil || !resp.ok() {
		return nil
	}

	return parseQuotes(resp.Body)
}

// parseQuotes extracts offers from either response shape and normalizes
// them into quotes.
func parseQuotes(body []byte) []Quote {
	var offers []quoteOfferXML

	var wrapped cotationXML
	if err := xml.Unmarshal(body, &wrapped); err == nil && len(wrapped.Offers) > 0 {
		offers = wrapped.Offers
	} else {
		var bare offerListXML
		if err := xml.Unmarshal(body, &bare); err != nil {
			return nil
		}
		offers = bare.Offers
	}

	return parseQuotesFromOffers(offers)
}

// parseQuotesFromOffers normalizes raw offer nodes into quotes, dropping
// nodes without operator and service codes.
func parseQuotesFromOffers(offers []quoteOfferXML) []Quote {
	var quotes []Quote
	for _, offer := range offers {
		rawOperator := strings.TrimSpace(offer.Operator.Code)
		rawService := strings.TrimSpace(offer.Service.Code)
		if rawOperator == "" || rawService == "" {
			continue
		}

		operatorCode := strings.ToUpper(rawOperator)
		serviceCode := strings.ToUpper(rawService)

		offerType := OfferTypeShipping
		if isRelayOffer(operatorCode, rawService) {
			offerType = OfferTypeRelay
		}

		quotes = append(quotes, Quote{
			MethodID:        fmt.Sprintf("boxtal:%s:%s", operatorCode, serviceCode),
			DisplayName:     renderDisplayName(operatorCode, rawService, offer.Operator.Label, offer.Service.Label),
			Price:           roundPrice(firstNonEmpty(offer.Price.TaxInclusive, offer.Price.TaxExclusive)),
			DelayText:       strings.TrimSpace(offer.Delivery.Label),
			CollectionDate:  strings.TrimSpace(offer.Collection.Date),
			OfferType:       offerType,
			OperatorCode:    operatorCode,
			ServiceCode:     serviceCode,
			RawOperatorCode: rawOperator,
			RawServiceCode:  rawService,
		})
	}

	return quotes
}

func addAddressQuery(query url.Values, prefix string, addr Address) {
	query.Set(prefix+".pays", addr.Country)
	query.Set(prefix+".code_postal", addr.Zipcode)
	query.Set(prefix+".ville", addr.City)
	query.Set(prefix+".type", "entreprise")
}

func roundPrice(raw string) float64 {
	price, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, ",", ".")), 64)
	if err != nil {
		return 0
	}
	return math.Round(price*100) / 100
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
