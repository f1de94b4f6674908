package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/joeychilson/docsurf/crawl"
	"github.com/joeychilson/docsurf/scrape"
	"github.com/joeychilson/docsurf/urlutil"
)

// ScrapeRequest is the POST /scrape body: a URL plus scrape options.
type ScrapeRequest struct {
	URL string `json:"url"`
	scrape.Options
}

// CrawlRequest is the POST /crawl body: a URL plus crawl options.
type CrawlRequest struct {
	URL string `json:"url"`
	crawl.Options
}

// scrapeResponse is the success envelope for POST /scrape.
type scrapeResponse struct {
	Success  bool             `json:"success"`
	Document *scrape.Document `json:"document"`
}

// crawlResponse is the success envelope for POST /crawl.
type crawlResponse struct {
	Success bool               `json:"success"`
	Pages   []*scrape.Document `json:"pages"`
	Errors  []crawl.PageError  `json:"errors"`
	Stats   crawl.Stats        `json:"stats"`
}

// errorResponse is the failure envelope for pipeline errors.
type errorResponse struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"requestId,omitempty"`
	Error     errorBody `json:"error"`
}

// validationResponse is the failure envelope for malformed requests.
type validationResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// handleScrape handles POST /scrape requests.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendValidationError(w, "invalid JSON", nil)
		return
	}

	if _, err := urlutil.ParseAndValidate(req.URL); err != nil {
		s.sendValidationError(w, "invalid request", details("url", err))
		return
	}
	if err := req.Options.Validate(); err != nil {
		s.sendValidationError(w, "invalid request", fieldDetails(err))
		return
	}

	doc, err := s.scraper.Scrape(r.Context(), req.URL, &req.Options)
	if err != nil {
		s.logger.Error("scrape failed", "url", req.URL, "error", err)
		s.sendPipelineError(w, r, err)
		return
	}

	s.sendJSON(w, scrapeResponse{Success: true, Document: doc}, http.StatusOK)
}

// handleCrawl handles POST /crawl requests.
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendValidationError(w, "invalid JSON", nil)
		return
	}

	if _, err := urlutil.ParseAndValidate(req.URL); err != nil {
		s.sendValidationError(w, "invalid request", details("url", err))
		return
	}
	if err := req.Options.Validate(); err != nil {
		s.sendValidationError(w, "invalid request", fieldDetails(err))
		return
	}

	result, err := s.crawler.Crawl(r.Context(), req.URL, &req.Options)
	if err != nil {
		s.logger.Error("crawl failed", "url", req.URL, "error", err)
		s.sendPipelineError(w, r, err)
		return
	}

	resp := crawlResponse{
		Success: true,
		Pages:   result.Pages,
		Errors:  result.Errors,
		Stats:   result.Stats,
	}
	if resp.Pages == nil {
		resp.Pages = []*scrape.Document{}
	}
	if resp.Errors == nil {
		resp.Errors = []crawl.PageError{}
	}
	s.sendJSON(w, resp, http.StatusOK)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

func (s *Server) sendPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	s.sendJSON(w, errorResponse{
		Success:   false,
		RequestID: middleware.GetReqID(r.Context()),
		Error:     s.classify(err),
	}, http.StatusBadGateway)
}

func (s *Server) sendValidationError(w http.ResponseWriter, message string, details map[string]string) {
	s.sendJSON(w, validationResponse{
		Success: false,
		Error:   message,
		Details: details,
	}, http.StatusBadRequest)
}

func (s *Server) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func details(field string, err error) map[string]string {
	return map[string]string{field: err.Error()}
}

// fieldDetails splits a "field: message" validation error into the details
// map; errors without the prefix land under "request".
func fieldDetails(err error) map[string]string {
	msg := err.Error()
	if field, rest, ok := strings.Cut(msg, ": "); ok && !strings.Contains(field, " ") {
		return map[string]string{field: rest}
	}
	return map[string]string{"request": msg}
}
