package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"
)

// DefaultUserAgent identifies the service on outbound requests.
const DefaultUserAgent = "docsurf/1.0 (structured document scraper; +https://github.com/joeychilson/docsurf)"

// Config is the top-level service configuration. Values are loaded from an
// optional YAML file first, then overridden by environment variables.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	LoggingLevel string `yaml:"logging_level"`

	ProxyServer   string `yaml:"proxy_server"`
	ProxyUsername string `yaml:"proxy_username"`
	ProxyPassword string `yaml:"proxy_password"`

	// AllowLocalWebhooks disables the private-address egress guard.
	AllowLocalWebhooks bool `yaml:"allow_local_webhooks"`

	// PlaywrightMicroserviceURL enables the browser engine when set.
	PlaywrightMicroserviceURL string `yaml:"playwright_microservice_url"`

	ExposeErrorDetails bool `yaml:"expose_error_details"`
	ExposeErrorStack   bool `yaml:"expose_error_stack"`

	GatekeeperRulesPath string `yaml:"gatekeeper_rules_path"`
	MinHTMLBytes        int    `yaml:"min_html_bytes"`
	MinVisibleTextChars int    `yaml:"min_visible_text_chars"`
	MinMainContentChars int    `yaml:"min_main_content_chars"`

	// CheckRobotsOnScrape makes single-page scrapes consult robots.txt.
	// Crawls always consult robots.txt regardless of this flag.
	CheckRobotsOnScrape bool `yaml:"check_robots_on_scrape"`

	UserAgent string `yaml:"user_agent"`

	// RedisURL enables the Redis validator cache and distributed rate limiting.
	RedisURL string `yaml:"redis_url"`

	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// BrowserMaxConcurrency bounds in-flight rendering-service requests.
	BrowserMaxConcurrency int `yaml:"browser_max_concurrency"`

	// BrowserChallengeRetries is how many stealth re-renders the browser
	// engine attempts after a challenge status.
	BrowserChallengeRetries int `yaml:"browser_challenge_retries"`

	// CrawlConcurrency bounds pages in flight within a single crawl.
	CrawlConcurrency int `yaml:"crawl_concurrency"`

	SitemapLimit int `yaml:"sitemap_limit"`

	// BlockedDomains are domains the crawler never touches; matching covers
	// subdomains and same-name TLD variants. DomainWhitelist exempts exact
	// hosts from blocking.
	BlockedDomains  []string `yaml:"blocked_domains"`
	DomainWhitelist []string `yaml:"domain_whitelist"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		Host:                    "0.0.0.0",
		Port:                    3002,
		LoggingLevel:            "info",
		UserAgent:               DefaultUserAgent,
		MinHTMLBytes:            2048,
		MinVisibleTextChars:     600,
		MinMainContentChars:     400,
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
		BrowserMaxConcurrency:   10,
		BrowserChallengeRetries: 2,
		CrawlConcurrency:        5,
		SitemapLimit:            5000,
	}
}

// FromEnv builds a Config from defaults, an optional CONFIG_FILE, and
// environment variables, in increasing precedence.
func FromEnv() (*Config, error) {
	cfg := New()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges YAML settings from the given path into the config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	setString(&c.Host, "HOST")
	setInt(&c.Port, "PORT")
	setString(&c.LoggingLevel, "LOGGING_LEVEL")
	setString(&c.ProxyServer, "PROXY_SERVER")
	setString(&c.ProxyUsername, "PROXY_USERNAME")
	setString(&c.ProxyPassword, "PROXY_PASSWORD")
	setBool(&c.AllowLocalWebhooks, "ALLOW_LOCAL_WEBHOOKS")
	setString(&c.PlaywrightMicroserviceURL, "PLAYWRIGHT_MICROSERVICE_URL")
	setBool(&c.ExposeErrorDetails, "EXPOSE_ERROR_DETAILS")
	setBool(&c.ExposeErrorStack, "EXPOSE_ERROR_STACK")
	setString(&c.GatekeeperRulesPath, "GATEKEEPER_RULES_PATH")
	setInt(&c.MinHTMLBytes, "MIN_HTML_BYTES")
	setInt(&c.MinVisibleTextChars, "MIN_VISIBLE_TEXT_CHARS")
	setInt(&c.MinMainContentChars, "MIN_MAIN_CONTENT_CHARS")
	setBool(&c.CheckRobotsOnScrape, "CHECK_ROBOTS_ON_SCRAPE")
	setString(&c.UserAgent, "USER_AGENT")
	setString(&c.RedisURL, "REDIS_URL")
	setInt(&c.RateLimitRequests, "RATE_LIMIT_REQUESTS")
	setInt(&c.BrowserMaxConcurrency, "BROWSER_MAX_CONCURRENCY")
	setInt(&c.BrowserChallengeRetries, "BROWSER_CHALLENGE_RETRIES")
	setDuration(&c.RateLimitWindow, "RATE_LIMIT_WINDOW")
	setInt(&c.CrawlConcurrency, "CRAWL_CONCURRENCY")
	setInt(&c.SitemapLimit, "SITEMAP_LIMIT")
	setStrings(&c.BlockedDomains, "BLOCKED_DOMAINS")
	setStrings(&c.DomainWhitelist, "DOMAIN_WHITELIST")
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535] (got %d)", c.Port)
	}
	if c.ProxyServer != "" {
		u, err := url.Parse(c.ProxyServer)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy_server must be an absolute URL (got %q)", c.ProxyServer)
		}
	}
	if c.PlaywrightMicroserviceURL != "" {
		u, err := url.Parse(c.PlaywrightMicroserviceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("playwright_microservice_url must be an absolute URL (got %q)", c.PlaywrightMicroserviceURL)
		}
	}
	if c.MinHTMLBytes < 0 || c.MinVisibleTextChars < 0 || c.MinMainContentChars < 0 {
		return fmt.Errorf("gatekeeper thresholds must be >= 0")
	}
	if c.RateLimitRequests < 0 {
		return fmt.Errorf("rate_limit_requests must be >= 0")
	}
	if c.BrowserMaxConcurrency < 1 {
		return fmt.Errorf("browser_max_concurrency must be >= 1")
	}
	if c.BrowserChallengeRetries < 0 {
		return fmt.Errorf("browser_challenge_retries must be >= 0")
	}
	if c.CrawlConcurrency < 1 {
		return fmt.Errorf("crawl_concurrency must be >= 1")
	}
	if c.SitemapLimit < 1 {
		return fmt.Errorf("sitemap_limit must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setStrings splits a comma-separated env value into a string slice.
func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
