package server

import (
	"errors"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/engine"
	"github.com/joeychilson/docsurf/scrape"
)

// errorBody is the stable public error tuple.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// classify maps a pipeline error onto the public {code, message} taxonomy.
// Underlying error text is only exposed when the config allows it.
func (s *Server) classify(err error) errorBody {
	code, message := "INTERNAL_ERROR", "internal error"

	var (
		denied       *scrape.DeniedError
		timeout      *scrape.TimeoutError
		aborted      *scrape.ExternalAbortError
		ssl          *dispatch.SSLError
		dns          *dispatch.DNSResolutionError
		insecure     *dispatch.InsecureConnectionError
		proxy        *engine.ProxySelectionError
		pdfAntibot   *engine.PDFAntibotError
		docAntibot   *engine.DocumentAntibotError
		pdfTime      *engine.PDFInsufficientTimeError
		noEngines    *engine.NoEnginesLeftError
		unsuccessful *engine.UnsuccessfulError
	)

	switch {
	case errors.As(err, &denied):
		code, message = "CRAWL_DENIED", "access to this resource is denied by policy"
	case errors.As(err, &timeout):
		code, message = "TIMEOUT", "the request timed out"
	case errors.As(err, &aborted):
		code, message = "REQUEST_ABORTED", "the request was aborted"
	case errors.As(err, &ssl):
		code, message = "SSL_ERROR", "tls verification failed"
	case errors.As(err, &dns):
		code, message = "DNS_RESOLUTION_ERROR", "hostname could not be resolved"
	case errors.As(err, &insecure):
		code, message = "INSECURE_CONNECTION", "connection to a non-public address was refused"
	case errors.As(err, &proxy):
		code, message = "PROXY_SELECTION_ERROR", "no proxy matching the request policy"
	case errors.As(err, &pdfAntibot), errors.As(err, &docAntibot):
		code, message = "ANTIBOT_BLOCKED", "the download was blocked by an antibot challenge"
	case errors.As(err, &pdfTime):
		code, message = "PDF_INSUFFICIENT_TIME", "pdf extraction would exceed the request budget"
	case errors.As(err, &noEngines):
		code, message = "NO_ENGINES_LEFT", "all scraping engines were exhausted"
	case errors.As(err, &unsuccessful):
		code, message = "ENGINE_UNSUCCESSFUL", "the page produced no usable content"
	}

	if s.cfg.ExposeErrorDetails && err != nil {
		message = err.Error()
	}
	return errorBody{Code: code, Message: message}
}
