package scrape

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	r := (&Options{}).withDefaults()

	assert.True(t, r.Formats[FormatMarkdown])
	assert.Len(t, r.Formats, 1)
	assert.True(t, r.OnlyMainContent)
	assert.True(t, r.RemoveBase64Images)
	assert.Equal(t, defaultTimeout, r.Timeout)
	assert.True(t, r.SkipTLSVerification)
}

func TestSkipTLSDefaultFlipsWithHeaders(t *testing.T) {
	withHeaders := (&Options{Headers: map[string]string{"Authorization": "x"}}).withDefaults()
	assert.False(t, withHeaders.SkipTLSVerification)

	explicit := true
	overridden := (&Options{
		Headers:             map[string]string{"Authorization": "x"},
		SkipTLSVerification: &explicit,
	}).withDefaults()
	assert.True(t, overridden.SkipTLSVerification)
}

func TestOptionsTimeout(t *testing.T) {
	r := (&Options{Timeout: 5000}).withDefaults()
	assert.Equal(t, 5*time.Second, r.Timeout)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, (&Options{}).Validate())
	assert.NoError(t, (&Options{Formats: []Format{FormatLinks, FormatImages}}).Validate())
	assert.Error(t, (&Options{Formats: []Format{"bogus"}}).Validate())
	assert.Error(t, (&Options{Timeout: -1}).Validate())
	assert.Error(t, (&Options{WaitFor: -1}).Validate())
}

func TestFormatsUnmarshalBothShapes(t *testing.T) {
	var opts Options
	require.NoError(t, json.Unmarshal([]byte(`{
		"formats": ["markdown", {"type": "links"}]
	}`), &opts))
	assert.Equal(t, []Format{FormatMarkdown, FormatLinks}, opts.Formats)
}

func TestParsersUnmarshalBothShapes(t *testing.T) {
	var short Options
	require.NoError(t, json.Unmarshal([]byte(`{"parsers": ["pdf"]}`), &short))
	assert.True(t, short.Parsers.PDF)
	assert.Zero(t, short.Parsers.MaxPages)

	var long Options
	require.NoError(t, json.Unmarshal([]byte(`{"parsers": [{"type": "pdf", "maxPages": 10}]}`), &long))
	assert.True(t, long.Parsers.PDF)
	assert.Equal(t, 10, long.Parsers.MaxPages)

	var bad Options
	assert.Error(t, json.Unmarshal([]byte(`{"parsers": ["docx"]}`), &bad))
}

func TestAbortManagerTimeout(t *testing.T) {
	m := newAbortManager(context.Background(), 20*time.Millisecond)
	defer m.Close()

	<-m.Context().Done()

	var timeout *TimeoutError
	require.ErrorAs(t, m.Cause(), &timeout)
	assert.True(t, m.Aborted())
}

func TestAbortManagerExternal(t *testing.T) {
	external, cancel := context.WithCancel(context.Background())
	m := newAbortManager(external, time.Minute)
	defer m.Close()

	cancel()
	<-m.Context().Done()

	var abort *ExternalAbortError
	require.ErrorAs(t, m.Cause(), &abort)
}

func TestAbortManagerFirstTierWins(t *testing.T) {
	external, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newAbortManager(external, 10*time.Millisecond)
	defer m.Close()

	<-m.Context().Done()
	// External fires after the timeout already won; the cause stays timeout.
	cancel()
	time.Sleep(10 * time.Millisecond)

	var timeout *TimeoutError
	require.ErrorAs(t, m.Cause(), &timeout)
}

func TestAbortManagerCloseWithoutFire(t *testing.T) {
	m := newAbortManager(context.Background(), time.Minute)
	assert.False(t, m.Aborted())
	assert.NoError(t, m.Cause())
	m.Close()
}
