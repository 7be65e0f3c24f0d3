package carriers

import (
	"net/url"
	"strings"
)

// trackingURLRule maps a carrier (matched by case-insensitive substring on
// the carrier name) to its public tracking page template. Rules are
// evaluated top to bottom.
type trackingURLRule struct {
	Substring string
	Template  string // %s is the tracking number (URL-escaped)
}

var trackingURLRules = []trackingURLRule{
	{"fedex", "https://www.fedex.com/fedextrack/?trknbr=%s"},
	{"ups", "https://www.ups.com/track?tracknum=%s"},
	{"dhl", "https://www.dhl.com/fr-fr/home/tracking.html?tracking-id=%s"},
	{"dpd", "https://trace.dpd.fr/fr/trace/%s"},
	{"gls", "https://gls-group.eu/FR/fr/suivi-colis?match=%s"},
}

// genericTrackingURL is the fallback for carriers without a dedicated
// template: a search-engine query embedding the tracking number.
const genericTrackingURL = "https://www.google.com/search?q=%s"

// TrackingURL derives a public tracking page URL for a carrier and
// tracking number. An empty tracking number yields an empty URL.
func TrackingURL(carrier, trackingNumber string) string {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return ""
	}

	escaped := url.QueryEscape(trackingNumber)
	lowered := strings.ToLower(carrier)
	for _, rule := range trackingURLRules {
		if strings.Contains(lowered, rule.Substring) {
			return strings.Replace(rule.Template, "%s", escaped, 1)
		}
	}

	return strings.Replace(genericTrackingURL, "%s", escaped, 1)
}
