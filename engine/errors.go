package engine

import (
	"fmt"
	"strings"
	"time"
)

// FeatureEscalation is returned by an engine when the response reveals the
// target needs a specialty engine. The orchestrator adds the flags and
// restarts the fallback list. It replaces exception-style control flow with
// an explicit tagged result.
type FeatureEscalation struct {
	Flags []FeatureFlag
}

func (e *FeatureEscalation) Error() string {
	names := make([]string, len(e.Flags))
	for i, f := range e.Flags {
		names[i] = string(f)
	}
	return fmt.Sprintf("feature escalation: %s", strings.Join(names, ", "))
}

// EngineError is a non-recoverable engine failure (network-level or
// engine-internal). The orchestrator records it and advances.
type EngineError struct {
	Engine string
	URL    string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed for %s: %v", e.Engine, e.URL, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// UnsuccessfulError means the engine completed but produced nothing the
// acceptance predicate could use.
type UnsuccessfulError struct {
	Engine string
	Reason string
}

func (e *UnsuccessfulError) Error() string {
	return fmt.Sprintf("engine %s unsuccessful: %s", e.Engine, e.Reason)
}

// PDFAntibotError means the PDF download was answered with an antibot
// challenge instead of the file.
type PDFAntibotError struct {
	URL        string
	StatusCode int
}

func (e *PDFAntibotError) Error() string {
	return fmt.Sprintf("pdf download blocked for %s (status %d)", e.URL, e.StatusCode)
}

// DocumentAntibotError means the office-document download was answered with
// an antibot challenge instead of the file.
type DocumentAntibotError struct {
	URL        string
	StatusCode int
}

func (e *DocumentAntibotError) Error() string {
	return fmt.Sprintf("document download blocked for %s (status %d)", e.URL, e.StatusCode)
}

// PDFInsufficientTimeError means extracting the PDF would exceed the
// remaining scrape budget.
type PDFInsufficientTimeError struct {
	Pages     int
	Required  time.Duration
	Remaining time.Duration
}

func (e *PDFInsufficientTimeError) Error() string {
	return fmt.Sprintf("pdf extraction of %d pages needs %s but only %s remains", e.Pages, e.Required, e.Remaining)
}

// ProxySelectionError means no proxy matching the request policy exists.
type ProxySelectionError struct {
	Reason string
}

func (e *ProxySelectionError) Error() string {
	return fmt.Sprintf("proxy selection failed: %s", e.Reason)
}

// NoEnginesLeftError means every engine in every round was exhausted
// without an acceptable result.
type NoEnginesLeftError struct {
	URL string
}

func (e *NoEnginesLeftError) Error() string {
	return fmt.Sprintf("no engines left for %s", e.URL)
}
