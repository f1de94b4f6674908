// Package gatekeeper classifies fetched HTML into a block-class so the
// orchestrator and callers can tell a real page from a challenge wall, a
// login redirect, or a thin shell.
package gatekeeper

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/urlutil"
)

// BlockClass is the classification outcome.
type BlockClass string

const (
	BlockNone      BlockClass = "none"
	BlockThin      BlockClass = "thin"
	BlockChallenge BlockClass = "challenge"
	BlockLogin     BlockClass = "login"
	BlockSoftBlock BlockClass = "soft_block"
)

// ContentStatus returns the user-visible projection of the block-class.
// Every class maps to itself except none, which maps to usable.
func (b BlockClass) ContentStatus() string {
	if b == BlockNone {
		return "usable"
	}
	return string(b)
}

// Default thresholds applied when neither the rules file nor the service
// config override them.
const (
	defaultMinHTMLBytes        = 2048
	defaultMinVisibleTextChars = 600
	defaultMinMainContentChars = 400
)

// defaultRuleConfidence is used when a rule omits its confidence.
const defaultRuleConfidence = 0.8

// Input is everything the classifier looks at. Classification is a pure
// function of this struct and the loaded rules.
type Input struct {
	HTML       string
	FinalURL   string
	StatusCode int
}

// Quality is the content-quality record attached to every evidence.
type Quality struct {
	HTMLBytes         int  `json:"htmlBytes"`
	VisibleTextChars  int  `json:"visibleTextChars"`
	MainContentChars  int  `json:"mainContentChars"`
	HasStructuredData bool `json:"hasStructuredData"`
}

// MatchedRule records one fired rule inside the evidence.
type MatchedRule struct {
	RuleID     string   `json:"ruleId"`
	BlockClass string   `json:"blockClass"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals"`
}

// Evidence is the classifier's full output, attached to document metadata.
type Evidence struct {
	RuleID        string        `json:"ruleId,omitempty"`
	BlockClass    BlockClass    `json:"blockClass"`
	ContentStatus string        `json:"contentStatus"`
	Confidence    float64       `json:"confidence"`
	Matched       []MatchedRule `json:"matched,omitempty"`
	Quality       Quality       `json:"quality"`
}

// Usable reports whether the content passed the gate.
func (e *Evidence) Usable() bool {
	return e.BlockClass == BlockNone
}

// Options configures the gatekeeper.
type Options struct {
	// RulesPath points at the optional JSON rules file; loaded lazily once.
	RulesPath string
	// MinHTMLBytes etc. override the built-in threshold defaults; rules-file
	// thresholds override these per host.
	MinHTMLBytes        int
	MinVisibleTextChars int
	MinMainContentChars int
}

// Gatekeeper classifies responses. Safe for concurrent use; the rules file
// is loaded on first classification and never reloaded.
type Gatekeeper struct {
	opts   Options
	logger logger.Logger

	loadOnce sync.Once
	rules    *RulesFile
}

// New creates a gatekeeper.
func New(opts Options, log logger.Logger) *Gatekeeper {
	if log == nil {
		log = logger.Noop()
	}
	if opts.MinHTMLBytes == 0 {
		opts.MinHTMLBytes = defaultMinHTMLBytes
	}
	if opts.MinVisibleTextChars == 0 {
		opts.MinVisibleTextChars = defaultMinVisibleTextChars
	}
	if opts.MinMainContentChars == 0 {
		opts.MinMainContentChars = defaultMinMainContentChars
	}
	return &Gatekeeper{opts: opts, logger: log}
}

// Classify evaluates the response and returns the evidence record. Rules
// fire when all their signals match; the highest-confidence winner sets the
// block-class. With no fired rule, quality thresholds decide.
func (g *Gatekeeper) Classify(input Input) *Evidence {
	g.loadOnce.Do(g.loadRules)

	page := analyze(input.HTML)

	host := urlutil.Hostname(input.FinalURL)
	rules, overrides := g.rules.rulesFor(host)

	var matched []MatchedRule
	for _, rule := range rules {
		signals, ok := matchRule(rule, input, page)
		if !ok {
			continue
		}
		confidence := rule.Confidence
		if confidence == 0 {
			confidence = defaultRuleConfidence
		}
		matched = append(matched, MatchedRule{
			RuleID:     rule.ID,
			BlockClass: rule.BlockClass,
			Confidence: confidence,
			Signals:    signals,
		})
	}

	if len(matched) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Confidence > matched[j].Confidence
		})
		winner := matched[0]
		class := BlockClass(winner.BlockClass)
		return &Evidence{
			RuleID:        winner.RuleID,
			BlockClass:    class,
			ContentStatus: class.ContentStatus(),
			Confidence:    winner.Confidence,
			Matched:       matched,
			Quality:       page.quality,
		}
	}

	return g.applyThresholds(page.quality, overrides)
}

// applyThresholds is the fallback when no rule fires: any failing quality
// floor classifies the page as thin.
func (g *Gatekeeper) applyThresholds(quality Quality, overrides *Thresholds) *Evidence {
	minHTMLBytes := g.opts.MinHTMLBytes
	minVisibleText := g.opts.MinVisibleTextChars
	minMainContent := g.opts.MinMainContentChars
	requireStructuredData := false

	if overrides != nil {
		if overrides.MinHTMLBytes != nil {
			minHTMLBytes = *overrides.MinHTMLBytes
		}
		if overrides.MinVisibleTextChars != nil {
			minVisibleText = *overrides.MinVisibleTextChars
		}
		if overrides.MinMainContentChars != nil {
			minMainContent = *overrides.MinMainContentChars
		}
		requireStructuredData = overrides.RequireStructuredData
	}

	failures := 0
	if quality.HTMLBytes < minHTMLBytes {
		failures++
	}
	if quality.VisibleTextChars < minVisibleText {
		failures++
	}
	if quality.MainContentChars < minMainContent {
		failures++
	}
	if requireStructuredData && !quality.HasStructuredData {
		failures++
	}

	if failures == 0 {
		return &Evidence{
			BlockClass:    BlockNone,
			ContentStatus: BlockNone.ContentStatus(),
			Confidence:    1.0,
			Quality:       quality,
		}
	}

	confidence := 0.4 + 0.15*float64(failures)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return &Evidence{
		BlockClass:    BlockThin,
		ContentStatus: BlockThin.ContentStatus(),
		Confidence:    confidence,
		Quality:       quality,
	}
}

// loadRules reads the rules file once. A missing or broken file logs a
// warning and leaves the gatekeeper in thresholds-only mode.
func (g *Gatekeeper) loadRules() {
	if g.opts.RulesPath == "" {
		return
	}
	rules, err := LoadRules(g.opts.RulesPath)
	if err != nil {
		g.logger.Warn("gatekeeper rules unavailable", "path", g.opts.RulesPath, "error", err)
		return
	}
	g.rules = rules
	g.logger.Info("gatekeeper rules loaded", "path", g.opts.RulesPath)
}

// pageFacts are the derived features signals evaluate against.
type pageFacts struct {
	title       string
	bodyText    string
	visibleText string
	quality     Quality
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// analyze computes the page facts from the raw HTML. A parse failure
// degrades to byte-length-only facts rather than failing classification.
func analyze(html string) pageFacts {
	facts := pageFacts{quality: Quality{HTMLBytes: len(html)}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return facts
	}

	facts.title = strings.TrimSpace(doc.Find("title").First().Text())
	facts.quality.HasStructuredData = doc.Find(`script[type="application/ld+json"]`).Length() > 0

	doc.Find("script, style, noscript").Remove()

	facts.bodyText = collapseWhitespace(doc.Find("body").Text())
	facts.visibleText = collapseWhitespace(doc.Selection.Text())
	facts.quality.VisibleTextChars = len(facts.visibleText)

	main := doc.Find("main, article")
	if main.Length() > 0 {
		facts.quality.MainContentChars = len(collapseWhitespace(main.Text()))
	} else {
		facts.quality.MainContentChars = facts.quality.VisibleTextChars
	}

	return facts
}

// matchRule reports whether every signal matches, returning the matched
// signal names for the evidence record.
func matchRule(rule Rule, input Input, page pageFacts) ([]string, bool) {
	if len(rule.Signals) == 0 {
		return nil, false
	}

	names := make([]string, 0, len(rule.Signals))
	for _, sig := range rule.Signals {
		if !matchSignal(sig, input, page) {
			return nil, false
		}
		names = append(names, sig.Type)
	}
	return names, true
}

// matchSignal evaluates a single signal.
func matchSignal(sig Signal, input Input, page pageFacts) bool {
	switch sig.Type {
	case "contains_script":
		return sig.Value != "" && strings.Contains(input.HTML, sig.Value)
	case "title_matches":
		return sig.Value != "" && strings.Contains(strings.ToLower(page.title), strings.ToLower(sig.Value))
	case "body_text_len_lt":
		return len(page.bodyText) < sig.N
	case "status_in":
		for _, code := range sig.Codes {
			if input.StatusCode == code {
				return true
			}
		}
		return false
	case "redirect_to_login":
		lowered := strings.ToLower(input.FinalURL)
		for _, fragment := range sig.Values {
			if fragment != "" && strings.Contains(lowered, strings.ToLower(fragment)) {
				return true
			}
		}
		return false
	case "html_bytes_lt":
		return page.quality.HTMLBytes < sig.N
	case "visible_text_len_lt":
		return page.quality.VisibleTextChars < sig.N
	case "main_content_len_lt":
		return page.quality.MainContentChars < sig.N
	case "has_structured_data":
		return page.quality.HasStructuredData == sig.Expected
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
