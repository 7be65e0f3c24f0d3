package carriers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAPIErrorsStructuredXML(t *testing.T) {
	body := `<?xml version="1.0"?>
	<errors xmlns="http://broker.example/ns">
	  <error><code>E001</code><message>access denied</message></error>
	  <error><code>E002</code><message>quota exceeded</message></error>
	</errors>`

	errors := extractAPIErrors([]byte(body))
	require.GreaterOrEqual(t, len(errors), 3)
	assert.Equal(t, "E001: access denied", errors[0])
	assert.Equal(t, "E002: quota exceeded", errors[1])
	assert.True(t, strings.HasPrefix(errors[len(errors)-1], "raw: "))
}

func TestExtractAPIErrorsSingleErrorDocument(t *testing.T) {
	body := `<error><code>E042</code><message>unknown operator</message></error>`

	errors := extractAPIErrors([]byte(body))
	assert.Equal(t, "E042: unknown operator", errors[0])
}

func TestExtractAPIErrorsLegacyShape(t *testing.T) {
	body := `<response><error_message>collection date in the past</error_message></response>`

	errors := extractAPIErrors([]byte(body))
	assert.Equal(t, "collection date in the past", errors[0])
}

func TestExtractAPIErrorsJSON(t *testing.T) {
	body := `{"error":{"code":"throttled","message":"too many requests"}}`

	errors := extractAPIErrors([]byte(body))
	assert.Equal(t, "throttled: too many requests", errors[0])
}

func TestExtractAPIErrorsHTMLFallback(t *testing.T) {
	body := `<html><head><title>502</title></head><body><h1>Bad Gateway</h1></body></html>`

	errors := extractAPIErrors([]byte(body))
	require.NotEmpty(t, errors)
	assert.Contains(t, errors[0], "Bad Gateway")
}

func TestExtractAPIErrorsEmptyBody(t *testing.T) {
	errors := extractAPIErrors(nil)
	assert.Equal(t, []string{"empty carrier response"}, errors)
}

func TestExtractAPIErrorsTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 500)
	body := `<error><message>` + long + `</message></error>`

	errors := extractAPIErrors([]byte(body))
	require.NotEmpty(t, errors)
	assert.LessOrEqual(t, len(errors[0]), errorPreviewLen+3)
	assert.True(t, strings.HasSuffix(errors[0], "..."))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "a b c", stripMarkup("<p>a</p>\n<div> b   c </div>"))
	assert.Equal(t, "", stripMarkup("<br/><hr/>"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
