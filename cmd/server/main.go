package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/docsurf/cache"
	"github.com/joeychilson/docsurf/config"
	"github.com/joeychilson/docsurf/crawl"
	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/gatekeeper"
	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/robots"
	"github.com/joeychilson/docsurf/scrape"
	"github.com/joeychilson/docsurf/server"
	"github.com/joeychilson/docsurf/sitemap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Default().Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(logger.ParseLevel(cfg.LoggingLevel))
	log.Info("starting docsurf", "addr", cfg.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := dispatch.NewPool(dispatch.Options{
		ProxyServer:   cfg.ProxyServer,
		ProxyUsername: cfg.ProxyUsername,
		ProxyPassword: cfg.ProxyPassword,
		AllowLocal:    cfg.AllowLocalWebhooks,
	})
	if err != nil {
		log.Error("failed to create dispatcher pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var validators cache.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}

		validators = cache.NewRedisCache(redisClient, cache.Config{})
		log.Info("redis validator cache enabled")
	} else {
		memory := cache.NewMemoryCache(cache.Config{})
		defer memory.Close()
		validators = memory
	}

	gate := gatekeeper.New(gatekeeper.Options{
		RulesPath:           cfg.GatekeeperRulesPath,
		MinHTMLBytes:        cfg.MinHTMLBytes,
		MinVisibleTextChars: cfg.MinVisibleTextChars,
		MinMainContentChars: cfg.MinMainContentChars,
	}, log)

	robotsChecker := robots.New(pool, cfg.UserAgent, time.Hour, log)

	scraper := scrape.New(scrape.Config{
		UserAgent:               cfg.UserAgent,
		PlaywrightURL:           cfg.PlaywrightMicroserviceURL,
		BrowserMaxConcurrency:   cfg.BrowserMaxConcurrency,
		BrowserChallengeRetries: cfg.BrowserChallengeRetries,
		CheckRobots:             cfg.CheckRobotsOnScrape,
	}, pool, validators, gate, robotsChecker, log)

	walker := sitemap.NewWalker(pool, cfg.UserAgent, cfg.SitemapLimit, log)
	blocklist := crawl.NewBlocklist(cfg.BlockedDomains, cfg.DomainWhitelist)
	crawler := crawl.New(scraper, walker, robotsChecker, blocklist, nil, cfg.CrawlConcurrency, log)

	srv, err := server.New(scraper, crawler, log, &server.Config{
		RedisURL:           cfg.RedisURL,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		ExposeErrorStack:   cfg.ExposeErrorStack,
	})
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := srv.StartWithShutdown(ctx, cfg.Addr()); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server shutdown complete")
}
