package engine

import (
	"mime"
	"net/http"
	"strings"
)

// officeMIMEs are the Content-Types that escalate to the document engine.
var officeMIMEs = map[string]struct{}{
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.oasis.opendocument.text":                                 {},
	"application/rtf":    {},
	"text/rtf":           {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
}

// SniffSpecialty inspects response headers after the body arrives and
// returns a FeatureEscalation when the Content-Type identifies a PDF or an
// office document that a specialty engine should handle. The skip set
// suppresses escalations whose flag is already active.
func SniffSpecialty(headers http.Header, active FlagSet) error {
	mediaType := normalizeMediaType(headers.Get("Content-Type"))
	if mediaType == "" {
		return nil
	}

	if mediaType == "application/pdf" && !active.Has(FeaturePDF) {
		return &FeatureEscalation{Flags: []FeatureFlag{FeaturePDF}}
	}

	if _, ok := officeMIMEs[mediaType]; ok && !active.Has(FeatureDocument) {
		return &FeatureEscalation{Flags: []FeatureFlag{FeatureDocument}}
	}

	return nil
}

// FlagsForURL derives the initial feature-flag set from the URL path suffix.
func FlagsForURL(urlStr string) FlagSet {
	flags := NewFlagSet()

	path := strings.ToLower(urlStr)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	switch {
	case strings.HasSuffix(path, ".pdf"):
		flags.Add(FeaturePDF)
	case strings.HasSuffix(path, ".docx"), strings.HasSuffix(path, ".doc"),
		strings.HasSuffix(path, ".odt"), strings.HasSuffix(path, ".rtf"),
		strings.HasSuffix(path, ".xlsx"), strings.HasSuffix(path, ".xls"):
		flags.Add(FeatureDocument)
	}

	return flags
}

// normalizeMediaType strips parameters and lowercases a Content-Type value.
func normalizeMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}
