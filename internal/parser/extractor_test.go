package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOrderNumber(t *testing.T) {
	extractor := NewFactExtractor()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "labeled order number",
			text:     "Your order number: 123456 has been processed",
			expected: "123456",
		},
		{
			name:     "hash shorthand",
			text:     "Thanks! Order #98765 is confirmed",
			expected: "98765",
		},
		{
			name:     "french commande",
			text:     "Votre commande n° 4455667 a été expédiée",
			expected: "4455667",
		},
		{
			name:     "bare order keyword",
			text:     "We shipped order 555123 today",
			expected: "555123",
		},
		{
			name:     "too few digits",
			text:     "order 1234",
			expected: "",
		},
		{
			name:     "no order at all",
			text:     "Weekly newsletter: new products in stock",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := extractor.Extract(tt.text)
			assert.Equal(t, tt.expected, facts.OrderNumber)
		})
	}
}

func TestExtractCarrier(t *testing.T) {
	extractor := NewFactExtractor()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"fedex whole word", "Shipped via FedEx Express", "FedEx"},
		{"case insensitive", "your DPD parcel", "DPD"},
		{"la poste two words", "Remis à La Poste ce jour", "La Poste"},
		{"substring does not match", "upset customer groups", ""},
		{"first dictionary hit wins", "transferred from UPS to DHL", "UPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := extractor.Extract(tt.text)
			assert.Equal(t, tt.expected, facts.Carrier)
		})
	}
}

func TestExtractTrackingNumber(t *testing.T) {
	extractor := NewFactExtractor()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "labeled tracking number",
			text:     "Tracking number: 1234567890123",
			expected: "1234567890123",
		},
		{
			name:     "french suivi",
			text:     "Numéro de suivi : 9876543210987654",
			expected: "9876543210987654",
		},
		{
			name:     "fallback digit run",
			text:     "Le colis 12345678901234 est en route",
			expected: "12345678901234",
		},
		{
			name:     "short runs ignored",
			text:     "ref 123456 item 4321",
			expected: "",
		},
		{
			name:     "french phone filtered out",
			text:     "Contact: 33612345678",
			expected: "",
		},
		{
			name:     "phone filtered but tracking kept",
			text:     "Tel 33612345678 suivi 1234567890123456",
			expected: "1234567890123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := extractor.Extract(tt.text)
			assert.Equal(t, tt.expected, facts.TrackingNumber)
		})
	}
}

func TestTrackingNumberNeverEqualsOrderNumber(t *testing.T) {
	extractor := NewFactExtractor()

	// A 10+ digit order number is a valid tracking-number candidate by
	// shape; the extractor must not report the same digits for both facts.
	facts := extractor.Extract("Your order number: 1234567890 has shipped")

	assert.Equal(t, "1234567890", facts.OrderNumber)
	assert.Empty(t, facts.TrackingNumber)
}

func TestExtractLongestRunWins(t *testing.T) {
	extractor := NewFactExtractor()

	facts := extractor.Extract("codes 1234567890 and 123456789012345678")
	assert.Equal(t, "123456789012345678", facts.TrackingNumber)
}

func TestExtractTiesGoToFirstOccurrence(t *testing.T) {
	extractor := NewFactExtractor()

	facts := extractor.Extract("first 1111111111111 then 2222222222222")
	assert.Equal(t, "1111111111111", facts.TrackingNumber)
}

func TestExtractIsDeterministic(t *testing.T) {
	extractor := NewFactExtractor()
	text := "Order #123456 expédié via Chronopost, suivi 98765432109876, tel 33698765432"

	first := extractor.Extract(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, extractor.Extract(text))
	}

	assert.Equal(t, "123456", first.OrderNumber)
	assert.Equal(t, "Chronopost", first.Carrier)
	assert.Equal(t, "98765432109876", first.TrackingNumber)
}

func TestFactsEmpty(t *testing.T) {
	assert.True(t, ShipmentFacts{}.Empty())
	assert.True(t, ShipmentFacts{Carrier: "UPS"}.Empty())
	assert.False(t, ShipmentFacts{OrderNumber: "123456"}.Empty())
	assert.False(t, ShipmentFacts{TrackingNumber: "1234567890"}.Empty())
}

func TestMatchesOrderPhrase(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"Your order #123456", true},
		{"Commande n° 555123 confirmée", true},
		{"Your package has been shipped", true},
		{"Colis expédié aujourd'hui", true},
		{"Newsletter: summer sale", false},
		{"order without number", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MatchesOrderPhrase(tt.text), "text: %s", tt.text)
	}
}
