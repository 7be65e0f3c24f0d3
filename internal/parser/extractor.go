package parser

// ShipmentFacts holds whatever shipment identifiers could be extracted from
// one notification email. Empty fields mean the fact was not found.
type ShipmentFacts struct {
	OrderNumber    string `json:"order_number"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// Empty reports whether nothing usable was extracted.
func (f ShipmentFacts) Empty() bool {
	return f.OrderNumber == "" && f.TrackingNumber == ""
}

// FactExtractor derives shipment facts from notification text using ordered
// heuristic patterns. It is stateless and safe for concurrent use.
type FactExtractor struct{}

// NewFactExtractor creates a new fact extractor
func NewFactExtractor() *FactExtractor {
	return &FactExtractor{}
}

// Extract runs all heuristics over the concatenated subject+body text.
func (e *FactExtractor) Extract(text string) ShipmentFacts {
	facts := ShipmentFacts{}
	facts.OrderNumber = e.extractOrderNumber(text)
	facts.Carrier = e.extractCarrier(text)
	facts.TrackingNumber = e.extractTrackingNumber(text, facts.OrderNumber)
	return facts
}

// MatchesOrderPhrase reports whether the text reads like an order or
// shipment notification subject.
func MatchesOrderPhrase(text string) bool {
	for _, pattern := range notificationPhrasePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// extractOrderNumber returns the first order number matched by the ordered
// phrase patterns.
func (e *FactExtractor) extractOrderNumber(text string) string {
	for _, entry := range orderNumberPatterns {
		if match := entry.Regex.FindStringSubmatch(text); len(match) > 1 {
			return match[1]
		}
	}
	return ""
}

// extractCarrier returns the first carrier from the dictionary that appears
// as a whole word in the text.
func (e *FactExtractor) extractCarrier(text string) string {
	for _, entry := range carrierDictionary {
		if entry.Regex.MatchString(text) {
			return entry.Name
		}
	}
	return ""
}

// extractTrackingNumber tries the labeled phrase patterns first, then falls
// back to scanning every 10-22 digit run in the text. Candidates equal to
// the order number or shaped like a French phone number are discarded; the
// longest surviving run wins, ties broken by first occurrence.
func (e *FactExtractor) extractTrackingNumber(text, orderNumber string) string {
	var candidates []string

	for _, entry := range trackingPhrasePatterns {
		for _, match := range entry.Regex.FindAllStringSubmatch(text, -1) {
			if len(match) > 1 {
				candidates = append(candidates, match[1])
			}
		}
	}

	if len(candidates) == 0 {
		for _, run := range digitRunPattern.FindAllString(text, -1) {
			if len(run) >= 10 && len(run) <= 22 {
				candidates = append(candidates, run)
			}
		}
	}

	best := ""
	for _, candidate := range candidates {
		if candidate == orderNumber {
			continue
		}
		if frenchPhonePattern.MatchString(candidate) {
			continue
		}
		// Strictly longer: earlier candidates win ties.
		if len(candidate) > len(best) {
			best = candidate
		}
	}

	return best
}
