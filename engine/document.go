package engine

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

// Document downloads office documents (docx, odt, rtf, xlsx, and friends)
// and returns the bytes base64-encoded; the content is treated as opaque.
type Document struct {
	pool      *dispatch.Pool
	userAgent string
	logger    logger.Logger
}

// NewDocument creates the document engine.
func NewDocument(pool *dispatch.Pool, userAgent string, log logger.Logger) *Document {
	if log == nil {
		log = logger.Noop()
	}
	return &Document{pool: pool, userAgent: userAgent, logger: log}
}

// Name returns the engine identifier.
func (d *Document) Name() string { return "document" }

// Scrape downloads the target file. A challenge status means the download
// was intercepted by an antibot page rather than served.
func (d *Document) Scrape(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &EngineError{Engine: d.Name(), URL: req.URL, Err: err}
	}
	httpReq.Header.Set("User-Agent", d.userAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	client := d.pool.Client(req.SkipTLSVerification, false)
	resp, err := client.Do(httpReq)
	if err != nil {
		normalized := dispatch.NormalizeError(req.URL, err)
		if normalized != err {
			return nil, normalized
		}
		return nil, &EngineError{Engine: d.Name(), URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if isChallengeStatus(resp.StatusCode) {
		return nil, &DocumentAntibotError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &EngineError{Engine: d.Name(), URL: req.URL, Err: err}
	}

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
