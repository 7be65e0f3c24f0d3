package mimeutil

import (
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/quotedprintable"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

// Helpers for turning raw MIME header and body payloads into readable text.
// All functions are best-effort: malformed input degrades to the original
// (trimmed) text instead of returning an error.

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var headerDecoder = mime.WordDecoder{
	CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
		return charset.Reader(cs, input)
	},
}

// DecodeHeader decodes RFC 2047 encoded-word segments in a header value.
// Each segment carries its own character set. Unsupported charsets or empty
// decoder output fall back to the raw trimmed string.
func DecodeHeader(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	decoded, err := headerDecoder.DecodeHeader(trimmed)
	if err != nil || strings.TrimSpace(decoded) == "" {
		return trimmed
	}

	return decoded
}

// DecodeBody applies the given content transfer encoding to a raw body part.
// Unknown encodings pass through unchanged.
func DecodeBody(raw, transferEncoding string) string {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(raw)))
		if err != nil && len(decoded) == 0 {
			return raw
		}
		// quoted-printable readers return partial output alongside the
		// error for truncated input; keep whatever decoded.
		return string(decoded)
	case "base64":
		return decodeBase64(raw)
	default:
		return raw
	}
}

// decodeBase64 tries the standard alphabet first, then the variants that
// show up in the wild (missing padding, URL-safe alphabet).
func decodeBase64(raw string) string {
	cleaned := whitespacePattern.ReplaceAllString(raw, "")

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(cleaned); err == nil {
			return string(decoded)
		}
	}

	return raw
}

// Normalize converts decoded body text into a single-line plain string:
// HTML entities are decoded, markup is stripped when the source was HTML,
// and all whitespace runs collapse to single spaces.
func Normalize(text string, isHTML bool) string {
	if isHTML {
		text = tagPattern.ReplaceAllString(text, " ")
	}

	text = html.UnescapeString(text)
	// &nbsp; unescapes to U+00A0, which \s does not cover.
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
