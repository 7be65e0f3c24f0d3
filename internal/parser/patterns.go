package parser

import "regexp"

// PatternEntry represents a regex pattern with metadata. Order inside each
// slice is part of the extraction contract: the first matching pattern wins,
// there is no longest-match arbitration.
type PatternEntry struct {
	Regex       *regexp.Regexp
	Description string
}

// orderNumberPatterns match supplier notification phrasings that anchor an
// "order" keyword to a 5+ digit number.
var orderNumberPatterns = []*PatternEntry{
	{
		Regex:       regexp.MustCompile(`(?i)order\s*(?:number|no\.?|#|n°)\s*:?\s*#?\s*(\d{5,})`),
		Description: "Order number with explicit label",
	},
	{
		Regex:       regexp.MustCompile(`(?i)(?:your\s+)?order\s*#\s*(\d{5,})`),
		Description: "Order # shorthand",
	},
	{
		Regex:       regexp.MustCompile(`(?i)commande\s*(?:n[°o]\.?|num[ée]ro)?\s*:?\s*#?\s*(\d{5,})`),
		Description: "French commande phrasing",
	},
	{
		Regex:       regexp.MustCompile(`(?i)order\s+(\d{5,})`),
		Description: "Bare order keyword followed by number",
	},
}

// carrierEntry pairs a whole-word detection pattern with the canonical
// carrier name reported in extracted facts.
type carrierEntry struct {
	Name  string
	Regex *regexp.Regexp
}

// carrierDictionary is tested in declaration order; the first hit wins.
var carrierDictionary = []carrierEntry{
	{"FedEx", regexp.MustCompile(`(?i)\bfedex\b`)},
	{"UPS", regexp.MustCompile(`(?i)\bups\b`)},
	{"DHL", regexp.MustCompile(`(?i)\bdhl\b`)},
	{"DPD", regexp.MustCompile(`(?i)\bdpd\b`)},
	{"GLS", regexp.MustCompile(`(?i)\bgls\b`)},
	{"Chronopost", regexp.MustCompile(`(?i)\bchronopost\b`)},
	{"Colissimo", regexp.MustCompile(`(?i)\bcolissimo\b`)},
	{"La Poste", regexp.MustCompile(`(?i)\bla\s+poste\b`)},
}

// trackingPhrasePatterns are the high-confidence forms: a tracking keyword
// directly labeling a 10-22 digit number.
var trackingPhrasePatterns = []*PatternEntry{
	{
		Regex:       regexp.MustCompile(`(?i)tracking\s*(?:number|no\.?|#|id)?\s*:?\s*(\d{10,22})`),
		Description: "Tracking number with label",
	},
	{
		Regex:       regexp.MustCompile(`(?i)track(?:ing)?\s*:?\s*(\d{10,22})`),
		Description: "Short tracking label",
	},
	{
		Regex:       regexp.MustCompile(`(?i)(?:num[ée]ro\s+de\s+)?suivi\s*(?:colis)?\s*:?\s*(\d{10,22})`),
		Description: "French suivi phrasing",
	},
}

// digitRunPattern is the fallback scan for bare digit runs; candidates are
// filtered to 10-22 digits afterwards.
var digitRunPattern = regexp.MustCompile(`\d+`)

// notificationPhrasePatterns recognize subjects of shipment/order
// notifications even before any number is extracted.
var notificationPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)order\s*(?:number|no\.?|#|n°)?\s*:?\s*#?\s*\d{5,}`),
	regexp.MustCompile(`(?i)commande\s*(?:n[°o]\.?|num[ée]ro)?\s*:?\s*#?\s*\d{5,}`),
	regexp.MustCompile(`(?i)\b(?:has\s+been\s+)?shipped\b`),
	regexp.MustCompile(`(?i)\bexp[ée]di[ée]e?\b`),
}

// frenchPhonePattern matches the international form of a French phone number
// (33 followed by 9 digits), a recurring tracking-number false positive in
// supplier signatures.
var frenchPhonePattern = regexp.MustCompile(`^33\d{9}$`)
