// research-mcp-server is a Model Context Protocol server exposing Google
// web-research tools (search, scrape, YouTube transcripts) over both a
// stdio JSON-RPC transport and an HTTP+SSE transport, backed by a
// persistent, stale-while-revalidate cache and an append-only event store
// for stream replay.
//
// Startup sequence:
//  1. Construct the logger and load configuration (JSON file or defaults).
//  2. Load proxy list (optional).
//  3. Construct the shared worker pool, cache, event store and the scrape
//     circuit breaker.
//  4. Construct the scrape orchestrator and tool dispatcher.
//  5. Start both transports (stdio JSON-RPC, HTTP+SSE) concurrently.
//  6. Block until OS signals SIGINT or SIGTERM, then perform an ordered
//     shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/breaker"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/cache"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/config"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/eventstore"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/httptransport"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/mcp"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/policy"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/proxy"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/render"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/schemaguard"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/scrape"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/ssrf"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/store"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/tools"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/transport"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/workerpool"
)

const userAgent = "research-mcp-server/1.0 (+https://github.com/zoharbabin/google-research-mcp-sub000)"

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	flag.Parse()

	log := logger.New(logger.LevelInfo)
	log.Info("research-mcp-server starting up")

	cfg := loadConfig(log, *configFile)

	pm := &proxy.Manager{}
	if cfg.ProxyFile != "" {
		if err := pm.LoadProxies(cfg.ProxyFile); err != nil {
			log.Errorf("failed to load proxies from %q: %v", cfg.ProxyFile, err)
			os.Exit(1)
		}
		log.Infof("loaded %d proxies from %q", pm.Count(), cfg.ProxyFile)
	}

	pool := workerpool.New(cfg.WorkerPoolSize)
	pool.Start()
	log.Infof("worker pool started with %d workers", cfg.WorkerPoolSize)

	persistStore := store.New(cfg.StoragePath, pool, log)
	pol := buildPolicy(cfg)
	core := cache.NewCore(cfg.DefaultTTL(), cfg.MaxSize, cache.RealClock, log, time.Minute)
	persistentCache := cache.NewPersistentCache(core, persistStore, pol, pool, log, cfg.EagerLoading)
	log.Infof("cache initialised: maxSize=%d defaultTTL=%s eager=%v", cfg.MaxSize, cfg.DefaultTTL(), cfg.EagerLoading)

	events, _ := buildEventStore(log, cfg)

	ssrfValidator := ssrf.New(ssrf.Options{
		AllowedHosts:  cfg.SSRFAllowedHosts,
		BlockPrivate:  cfg.SSRFBlockPrivate,
		BlockLoopback: cfg.SSRFBlockLoopback,
	})

	httpClient, err := transport.NewHTTPClient(transport.Options{
		ProxyURL:      pm.Next(),
		SSRFValidator: ssrfValidator,
	})
	if err != nil {
		log.Errorf("failed to construct HTTP client: %v", err)
		os.Exit(1)
	}

	scrapeBreaker := breaker.New(cfg.ScrapeCircuitFailureThreshold, time.Duration(cfg.ScrapeCircuitResetTimeout)*time.Millisecond)

	evaluator, err := render.NewEvaluator(userAgent)
	if err != nil {
		log.Errorf("failed to construct JS evaluator: %v", err)
		os.Exit(1)
	}

	orchestrator := scrape.New(scrape.Options{
		Validator:  ssrfValidator,
		HTTPClient: httpClient,
		Breaker:    scrapeBreaker,
		Evaluator:  evaluator,
		Logger:     log,
		SPAHosts:   cfg.ScrapeSPAHosts,
	})

	dispatcher := mcp.NewDispatcher(log)
	tools.Register(dispatcher, tools.Deps{
		Search:      tools.UnconfiguredSearchClient{},
		Scraper:     orchestrator,
		Cache:       core,
		Pool:        pool,
		SchemaGuard: schemaguard.New(),
		Logger:      log,
	})

	httpSrv := httptransport.New(httptransport.Options{
		Addr:       cfg.HTTPAddr,
		Dispatcher: dispatcher,
		Events:     events,
		Logger:     log,
	})
	go func() {
		log.Infof("HTTP+SSE transport starting on %s", cfg.HTTPAddr)
		if err := httpSrv.Serve(); err != nil {
			log.Errorf("HTTP+SSE transport error: %v", err)
		}
	}()

	stdioCtx, cancelStdio := context.WithCancel(context.Background())
	stdioDone := make(chan struct{})
	go func() {
		defer close(stdioDone)
		stdioSrv := mcp.NewStdioServer(dispatcher, os.Stdin, os.Stdout, log)
		if err := stdioSrv.Serve(stdioCtx); err != nil {
			log.Errorf("stdio transport error: %v", err)
		}
	}()
	log.Info("stdio JSON-RPC transport started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Println()
		log.Infof("received signal %s; shutting down", sig)
	case <-stdioDone:
		log.Info("stdio input closed; shutting down")
	}

	cancelStdio()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Close(shutdownCtx); err != nil {
		log.Errorf("error closing HTTP+SSE transport: %v", err)
	}

	persistentCache.Dispose()
	events.Dispose()
	pool.Stop()

	log.Info("research-mcp-server shut down cleanly")
}

func loadConfig(log *logger.Logger, configFile string) *config.Config {
	if configFile == "" {
		log.Info("using default configuration")
		return config.DefaultConfig()
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Errorf("failed to load config from %q: %v", configFile, err)
		os.Exit(1)
	}
	log.Infof("configuration loaded from %q", configFile)
	return cfg
}

func buildPolicy(cfg *config.Config) policy.Policy {
	if len(cfg.CriticalNamespaces) > 0 {
		return policy.Hybrid{Critical: cfg.CriticalNamespaces, Interval: cfg.PersistenceIntervalDuration()}
	}
	if cfg.PersistenceInterval > 0 {
		return policy.Periodic{Interval: cfg.PersistenceIntervalDuration()}
	}
	if len(cfg.PersistentNamespaces) > 0 {
		return policy.WriteThrough{Namespaces: cfg.PersistentNamespaces}
	}
	return policy.OnShutdown{}
}

func buildEventStore(log *logger.Logger, cfg *config.Config) (*eventstore.Store, *eventstore.Persister) {
	var cipher *eventstore.Cipher
	if cfg.EventEncryptionKeyHex != "" {
		var err error
		cipher, err = eventstore.NewCipher(eventstore.KeyFromHex(cfg.EventEncryptionKeyHex))
		if err != nil {
			log.Errorf("failed to construct event store cipher: %v", err)
			os.Exit(1)
		}
		log.Info("event store at-rest encryption enabled")
	}

	var eventPolicy policy.Policy = policy.OnShutdown{}
	if len(cfg.CriticalStreamIDs) > 0 {
		eventPolicy = policy.Hybrid{Critical: cfg.CriticalStreamIDs, Interval: cfg.PersistenceIntervalDuration()}
	}

	persister := eventstore.NewPersister(cfg.StoragePath, eventPolicy, cipher, log)
	evStore := eventstore.New(cfg.EventTTL(), cfg.MaxEventsPerStream, log, time.Minute, eventstore.WithPersister(persister))
	go persister.Run(evStore)
	return evStore, persister
}
