package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

// pdfMillisPerPage is the extraction budget charged per page when deciding
// whether enough scrape time remains.
const pdfMillisPerPage = 150

// PDF downloads PDF files and either passes the bytes through base64-encoded
// or extracts their text with pdftotext.
type PDF struct {
	pool      *dispatch.Pool
	userAgent string
	logger    logger.Logger
}

// NewPDF creates the PDF engine.
func NewPDF(pool *dispatch.Pool, userAgent string, log logger.Logger) *PDF {
	if log == nil {
		log = logger.Noop()
	}
	return &PDF{pool: pool, userAgent: userAgent, logger: log}
}

// Name returns the engine identifier.
func (p *PDF) Name() string { return "pdf" }

// Scrape downloads the target and, depending on req.PDF.Parse, returns the
// base64 body or the extracted text.
func (p *PDF) Scrape(ctx context.Context, req *Request) (*Result, error) {
	body, resp, err := p.download(ctx, req)
	if err != nil {
		return nil, err
	}

	if isChallengeStatus(resp.StatusCode) {
		return nil, &PDFAntibotError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	contentType := normalizeMediaType(resp.Header.Get("Content-Type"))
	if contentType != "application/pdf" && !req.Flags.Has(FeaturePDF) {
		return nil, &UnsuccessfulError{
			Engine: p.Name(),
			Reason: fmt.Sprintf("content-type %q is not a pdf", contentType),
		}
	}

	if !req.PDF.Parse {
		encoded := base64.StdEncoding.EncodeToString(body)
		return &Result{
			FinalURL:    resp.Request.URL.String(),
			HTML:        encoded,
			Markdown:    encoded,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Headers:     resp.Header,
			ProxyUsed:   "basic",
		}, nil
	}

	return p.parse(ctx, req, resp, body)
}

// download fetches the raw file through the egress-guarded dispatcher.
func (p *PDF) download(ctx context.Context, req *Request) ([]byte, *http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: err}
	}
	httpReq.Header.Set("User-Agent", p.userAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	client := p.pool.Client(req.SkipTLSVerification, false)
	resp, err := client.Do(httpReq)
	if err != nil {
		normalized := dispatch.NormalizeError(req.URL, err)
		if normalized != err {
			return nil, nil, normalized
		}
		return nil, nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: err}
	}
	return body, resp, nil
}

// parse extracts page count, title, and text from the downloaded PDF.
// Extraction fails fast when the per-page budget exceeds the remaining
// scrape time. Temp files are removed on every exit path.
func (p *PDF) parse(ctx context.Context, req *Request, resp *http.Response, body []byte) (*Result, error) {
	for _, tool := range []string{"pdfinfo", "pdftotext"} {
		if _, err := exec.LookPath(tool); err != nil {
			return nil, &EngineError{
				Engine: p.Name(),
				URL:    req.URL,
				Err:    fmt.Errorf("%s not found in PATH: %w", tool, err),
			}
		}
	}

	tmpFile, err := os.CreateTemp("", "docsurf-*.pdf")
	if err != nil {
		return nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err := tmpFile.Write(body); err != nil {
		return nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: fmt.Errorf("failed to write temp file: %w", err)}
	}
	if err := tmpFile.Close(); err != nil {
		return nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	pages, title, err := pdfInfo(ctx, tmpFile.Name())
	if err != nil {
		return nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: err}
	}

	effectivePages := pages
	if req.PDF.MaxPages > 0 && req.PDF.MaxPages < effectivePages {
		effectivePages = req.PDF.MaxPages
	}

	required := time.Duration(effectivePages) * pdfMillisPerPage * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if required > remaining {
			return nil, &PDFInsufficientTimeError{Pages: effectivePages, Required: required, Remaining: remaining}
		}
	}

	text, err := pdfText(ctx, tmpFile.Name(), effectivePages)
	if err != nil {
		return nil, &EngineError{Engine: p.Name(), URL: req.URL, Err: err}
	}

	escaped := html.EscapeString(text)
	return &Result{
		FinalURL:    resp.Request.URL.String(),
		HTML:        escaped,
		Markdown:    escaped,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		ProxyUsed:   "basic",
		PDF:         &PDFMetadata{NumPages: pages, Title: title},
	}, nil
}

// pdfInfo reads the page count and title with pdfinfo.
func pdfInfo(ctx context.Context, path string) (pages int, title string, err error) {
	cmd := exec.CommandContext(ctx, "pdfinfo", path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, "", fmt.Errorf("pdfinfo failed: %w (stderr: %s)", err, stderr.String())
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Pages":
			if n, err := strconv.Atoi(value); err == nil {
				pages = n
			}
		case "Title":
			title = value
		}
	}
	return pages, title, nil
}

// pdfText extracts plain text with pdftotext. The -layout flag keeps the
// original physical layout; -nopgbrk drops page break characters.
func pdfText(ctx context.Context, path string, maxPages int) (string, error) {
	args := []string{"-layout", "-nopgbrk"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")

	cmd := exec.CommandContext(ctx, "pdftotext", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.String(), nil
}
