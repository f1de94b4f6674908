package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joeychilson/docsurf/logger"
)

// BrowserOptions configures the browser engine.
type BrowserOptions struct {
	// ServiceURL is the rendering microservice endpoint.
	ServiceURL string
	// MaxConcurrency bounds in-flight rendering requests (default 10).
	MaxConcurrency int
	// ChallengeRetries is how many stealth re-renders follow a challenge
	// status (default 0; the service default is 2).
	ChallengeRetries int
	// Client overrides the HTTP client used to reach the service.
	Client *http.Client
}

// Browser delegates page acquisition to an external rendering microservice.
// The service usually runs on a local address, so requests bypass the
// egress-guarded dispatcher.
type Browser struct {
	serviceURL       string
	challengeRetries int
	client           *http.Client
	sem              *semaphore.Weighted
	logger           logger.Logger
}

// NewBrowser creates the browser engine.
func NewBrowser(opts BrowserOptions, log logger.Logger) *Browser {
	if log == nil {
		log = logger.Noop()
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 10
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Browser{
		serviceURL:       opts.ServiceURL,
		challengeRetries: opts.ChallengeRetries,
		client:           client,
		sem:              semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		logger:           log,
	}
}

// Name returns the engine identifier.
func (b *Browser) Name() string { return "browser" }

// renderRequest is the JSON body posted to the rendering service.
type renderRequest struct {
	URL                 string            `json:"url"`
	WaitAfterLoad       int64             `json:"wait_after_load"`
	Timeout             int64             `json:"timeout"`
	Headers             map[string]string `json:"headers,omitempty"`
	SkipTLSVerification bool              `json:"skip_tls_verification"`
	UseStealth          bool              `json:"use_stealth"`
}

// renderResponse is the rendering service's reply.
type renderResponse struct {
	Content       string          `json:"content"`
	PageStatus    int             `json:"pageStatusCode"`
	ContentType   string          `json:"contentType"`
	RenderStatus  string          `json:"render_status"`
	ContentStatus string          `json:"content_status"`
	Evidence      json.RawMessage `json:"evidence,omitempty"`
	PageError     string          `json:"pageError,omitempty"`
}

// Scrape renders the page through the microservice. A 401/403 page status
// or a Set-Cookie from the target triggers up to ChallengeRetries stealth
// re-renders; observed challenge flows often pass on the second hit once
// cookies are established.
func (b *Browser) Scrape(ctx context.Context, req *Request) (*Result, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, &EngineError{Engine: b.Name(), URL: req.URL, Err: err}
	}
	defer b.sem.Release(1)

	// Every scrape starts on the basic path; stealth is only entered through
	// the challenge-retry escalation below.
	stealth := false
	var last *Result

	for attempt := 0; attempt <= b.challengeRetries; attempt++ {
		res, cookiesSet, err := b.render(ctx, req, stealth)
		if err != nil {
			return nil, err
		}
		last = res

		if !isChallengeStatus(res.StatusCode) && !cookiesSet {
			return res, nil
		}
		if attempt < b.challengeRetries {
			b.logger.Debug("browser challenge retry",
				"url", req.URL, "status", res.StatusCode, "attempt", attempt+1)
			stealth = true
		}
	}
	return last, nil
}

// render performs one rendering round trip.
func (b *Browser) render(ctx context.Context, req *Request, stealth bool) (*Result, bool, error) {
	body := renderRequest{
		URL:                 req.URL,
		WaitAfterLoad:       req.WaitFor.Milliseconds(),
		Timeout:             req.Timeout.Milliseconds(),
		Headers:             req.Headers,
		SkipTLSVerification: req.SkipTLSVerification,
		UseStealth:          stealth,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, false, &EngineError{Engine: b.Name(), URL: req.URL, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, false, &EngineError{Engine: b.Name(), URL: req.URL, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, false, &EngineError{Engine: b.Name(), URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, false, &EngineError{
			Engine: b.Name(),
			URL:    req.URL,
			Err:    fmt.Errorf("rendering service returned status %d", resp.StatusCode),
		}
	}

	var render renderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&render); err != nil {
		return nil, false, &EngineError{Engine: b.Name(), URL: req.URL, Err: err}
	}

	if render.PageError != "" && render.Content == "" {
		return nil, false, &EngineError{
			Engine: b.Name(),
			URL:    req.URL,
			Err:    fmt.Errorf("render failed: %s", render.PageError),
		}
	}

	proxyUsed := "basic"
	if stealth {
		proxyUsed = "stealth"
	}

	result := &Result{
		FinalURL:     req.URL,
		HTML:         render.Content,
		StatusCode:   render.PageStatus,
		ContentType:  render.ContentType,
		ProxyUsed:    proxyUsed,
		RenderStatus: render.RenderStatus,
		Evidence:     render.Evidence,
	}
	return result, len(resp.Header.Values("Set-Cookie")) > 0, nil
}

// isChallengeStatus reports whether a page status indicates an access
// challenge worth a stealth retry.
func isChallengeStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
