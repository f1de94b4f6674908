package engine

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffSpecialty(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		active      FlagSet
		wantFlag    FeatureFlag
	}{
		{name: "pdf", contentType: "application/pdf", active: NewFlagSet(), wantFlag: FeaturePDF},
		{name: "pdf with charset", contentType: "application/pdf; charset=binary", active: NewFlagSet(), wantFlag: FeaturePDF},
		{name: "pdf flag active", contentType: "application/pdf", active: NewFlagSet(FeaturePDF)},
		{name: "docx", contentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", active: NewFlagSet(), wantFlag: FeatureDocument},
		{name: "msword", contentType: "application/msword", active: NewFlagSet(), wantFlag: FeatureDocument},
		{name: "odt", contentType: "application/vnd.oasis.opendocument.text", active: NewFlagSet(), wantFlag: FeatureDocument},
		{name: "rtf", contentType: "text/rtf", active: NewFlagSet(), wantFlag: FeatureDocument},
		{name: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", active: NewFlagSet(), wantFlag: FeatureDocument},
		{name: "document flag active", contentType: "application/msword", active: NewFlagSet(FeatureDocument)},
		{name: "html", contentType: "text/html; charset=utf-8", active: NewFlagSet()},
		{name: "empty", contentType: "", active: NewFlagSet()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.contentType != "" {
				headers.Set("Content-Type", tt.contentType)
			}

			err := SniffSpecialty(headers, tt.active)
			if tt.wantFlag == "" {
				assert.NoError(t, err)
				return
			}

			var escalation *FeatureEscalation
			require.ErrorAs(t, err, &escalation)
			assert.Equal(t, []FeatureFlag{tt.wantFlag}, escalation.Flags)
		})
	}
}

func TestFlagsForURL(t *testing.T) {
	tests := []struct {
		url  string
		want []FeatureFlag
	}{
		{url: "https://example.com/report.pdf", want: []FeatureFlag{FeaturePDF}},
		{url: "https://example.com/Report.PDF?download=1", want: []FeatureFlag{FeaturePDF}},
		{url: "https://example.com/doc.docx", want: []FeatureFlag{FeatureDocument}},
		{url: "https://example.com/sheet.xlsx#tab", want: []FeatureFlag{FeatureDocument}},
		{url: "https://example.com/page.html", want: nil},
		{url: "https://example.com/pdf-guide", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			flags := FlagsForURL(tt.url)
			for _, f := range tt.want {
				assert.True(t, flags.Has(f))
			}
			assert.Len(t, flags, len(tt.want))
		})
	}
}

func TestFlagSet(t *testing.T) {
	fs := NewFlagSet(FeaturePDF)
	assert.True(t, fs.Has(FeaturePDF))
	assert.False(t, fs.Has(FeatureDocument))

	assert.True(t, fs.Add(FeatureDocument))
	assert.False(t, fs.Add(FeatureDocument))

	clone := fs.Clone()
	clone.Add(FeatureWaitFor)
	assert.False(t, fs.Has(FeatureWaitFor))
}
