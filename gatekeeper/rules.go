package gatekeeper

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Signal is one predicate inside a rule. Type selects the check; the value
// fields are interpreted per type:
//
//	contains_script      value  (substring of the raw html)
//	title_matches        value  (substring of the page title)
//	body_text_len_lt     n
//	status_in            codes
//	redirect_to_login    values (substrings of the final URL)
//	html_bytes_lt        n
//	visible_text_len_lt  n
//	main_content_len_lt  n
//	has_structured_data  expected
type Signal struct {
	Type     string   `json:"type"`
	Value    string   `json:"value,omitempty"`
	N        int      `json:"n,omitempty"`
	Codes    []int    `json:"codes,omitempty"`
	Values   []string `json:"values,omitempty"`
	Expected bool     `json:"expected,omitempty"`
}

// Rule fires when all of its signals match.
type Rule struct {
	ID         string   `json:"id"`
	BlockClass string   `json:"block_class"`
	Signals    []Signal `json:"signals"`
	// Confidence defaults to 0.8 when omitted.
	Confidence float64 `json:"confidence,omitempty"`
}

// Thresholds are the quality floors applied when no rule fires. Nil fields
// fall back to the service defaults.
type Thresholds struct {
	MinHTMLBytes          *int `json:"min_html_bytes,omitempty"`
	MinVisibleTextChars   *int `json:"min_visible_text_chars,omitempty"`
	MinMainContentChars   *int `json:"min_main_content_chars,omitempty"`
	RequireStructuredData bool `json:"require_structured_data,omitempty"`
}

// RuleSet pairs rules with optional threshold overrides.
type RuleSet struct {
	Rules      []Rule      `json:"rules,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

// RulesFile is the on-disk rules format: a global section plus per-host
// overrides keyed by hostname.
type RulesFile struct {
	Global  *RuleSet            `json:"global,omitempty"`
	Domains map[string]*RuleSet `json:"domains,omitempty"`
}

// LoadRules reads and parses the rules file at path.
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gatekeeper rules: %w", err)
	}

	var rf RulesFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse gatekeeper rules: %w", err)
	}

	if err := rf.validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// validate rejects unknown block classes and signal types up front so a bad
// rules file fails at load time rather than mid-classification.
func (rf *RulesFile) validate() error {
	check := func(section string, rs *RuleSet) error {
		if rs == nil {
			return nil
		}
		for _, rule := range rs.Rules {
			if !validBlockClass(rule.BlockClass) {
				return fmt.Errorf("rule %q in %s: unknown block class %q", rule.ID, section, rule.BlockClass)
			}
			for _, sig := range rule.Signals {
				if !validSignalType(sig.Type) {
					return fmt.Errorf("rule %q in %s: unknown signal type %q", rule.ID, section, sig.Type)
				}
			}
		}
		return nil
	}

	if err := check("global", rf.Global); err != nil {
		return err
	}
	for host, rs := range rf.Domains {
		if err := check(host, rs); err != nil {
			return err
		}
	}
	return nil
}

// rulesFor returns the global rules followed by the host's rules, and the
// most specific thresholds (host over global).
func (rf *RulesFile) rulesFor(host string) ([]Rule, *Thresholds) {
	if rf == nil {
		return nil, nil
	}

	var rules []Rule
	var thresholds *Thresholds

	if rf.Global != nil {
		rules = append(rules, rf.Global.Rules...)
		thresholds = rf.Global.Thresholds
	}

	if rs, ok := rf.Domains[strings.ToLower(host)]; ok && rs != nil {
		rules = append(rules, rs.Rules...)
		if rs.Thresholds != nil {
			thresholds = rs.Thresholds
		}
	}

	return rules, thresholds
}

func validBlockClass(class string) bool {
	switch BlockClass(class) {
	case BlockNone, BlockThin, BlockChallenge, BlockLogin, BlockSoftBlock:
		return true
	}
	return false
}

func validSignalType(t string) bool {
	switch t {
	case "contains_script", "title_matches", "body_text_len_lt", "status_in",
		"redirect_to_login", "html_bytes_lt", "visible_text_len_lt",
		"main_content_len_lt", "has_structured_data":
		return true
	}
	return false
}
