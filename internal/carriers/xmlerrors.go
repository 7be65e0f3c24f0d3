package carriers

import (
	"encoding/json"
	"encoding/xml"
	"regexp"
	"strings"
)

// The broker reports failures in several shapes depending on endpoint
// version and proxy layer: namespaced XML error documents, legacy flat XML
// fields, JSON, or an HTML error page. Extraction tries each shape in
// order and keeps the first one that yields anything; a truncated raw-body
// preview is always appended for diagnostics.

const errorPreviewLen = 200

type errorStrategy func(body []byte) []string

var errorStrategies = []errorStrategy{
	extractXMLErrors,
	extractLegacyXMLErrors,
	extractJSONErrors,
	extractTextErrors,
}

// extractAPIErrors returns human-readable diagnostics for a failed broker
// response.
func extractAPIErrors(body []byte) []string {
	var errors []string
	for _, strategy := range errorStrategies {
		if errors = strategy(body); len(errors) > 0 {
			break
		}
	}

	preview := truncate(stripMarkup(string(body)), errorPreviewLen)
	if preview != "" {
		errors = append(errors, "raw: "+preview)
	}
	if len(errors) == 0 {
		errors = append(errors, "empty carrier response")
	}

	return errors
}

// xmlErrorDoc matches both <error> and <errors><error> documents. Matching
// is by local element name, so namespaced variants parse the same way.
type xmlErrorDoc struct {
	Code    string         `xml:"code"`
	Message string         `xml:"message"`
	Errors  []xmlErrorNode `xml:"error"`
}

type xmlErrorNode struct {
	Code    string `xml:"code"`
	Message string `xml:"message"`
	Text    string `xml:",chardata"`
}

func extractXMLErrors(body []byte) []string {
	var doc xmlErrorDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil
	}

	var errors []string
	if msg := formatCodeMessage(doc.Code, doc.Message); msg != "" {
		errors = append(errors, msg)
	}
	for _, node := range doc.Errors {
		if msg := formatCodeMessage(node.Code, node.Message); msg != "" {
			errors = append(errors, msg)
		} else if text := strings.TrimSpace(node.Text); text != "" {
			errors = append(errors, truncate(text, errorPreviewLen))
		}
	}

	return errors
}

var legacyErrorPattern = regexp.MustCompile(`(?is)<error(?:_message)?[^>]*>([^<]+)</error`)

// extractLegacyXMLErrors handles the old flat <error>text</error> shape
// that predates the structured error document.
func extractLegacyXMLErrors(body []byte) []string {
	var errors []string
	for _, match := range legacyErrorPattern.FindAllStringSubmatch(string(body), -1) {
		if text := strings.TrimSpace(match[1]); text != "" {
			errors = append(errors, truncate(text, errorPreviewLen))
		}
	}
	return errors
}

type jsonErrorDoc struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func extractJSONErrors(body []byte) []string {
	var doc jsonErrorDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}

	var errors []string
	if doc.Error != nil {
		if msg := formatCodeMessage(doc.Error.Code, doc.Error.Message); msg != "" {
			errors = append(errors, msg)
		}
	}
	if msg := strings.TrimSpace(doc.Message); msg != "" {
		errors = append(errors, truncate(msg, errorPreviewLen))
	}

	return errors
}

// extractTextErrors is the last resort: strip any markup and keep a bounded
// chunk of whatever text remains.
func extractTextErrors(body []byte) []string {
	text := stripMarkup(string(body))
	if text == "" {
		return nil
	}
	return []string{truncate(text, errorPreviewLen)}
}

func formatCodeMessage(code, message string) string {
	code = strings.TrimSpace(code)
	message = strings.TrimSpace(message)
	switch {
	case code != "" && message != "":
		return code + ": " + truncate(message, errorPreviewLen)
	case message != "":
		return truncate(message, errorPreviewLen)
	case code != "":
		return code
	default:
		return ""
	}
}

var (
	markupPattern   = regexp.MustCompile(`<[^>]*>`)
	spaceRunPattern = regexp.MustCompile(`\s+`)
)

func stripMarkup(text string) string {
	text = markupPattern.ReplaceAllString(text, " ")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
