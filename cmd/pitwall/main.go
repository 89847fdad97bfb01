package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/pitwall/internal/config"
	"github.com/ent0n29/pitwall/internal/httpapi"
	"github.com/ent0n29/pitwall/internal/intent"
	"github.com/ent0n29/pitwall/internal/llm"
	"github.com/ent0n29/pitwall/internal/memory"
	"github.com/ent0n29/pitwall/internal/news"
	"github.com/ent0n29/pitwall/internal/observability"
	"github.com/ent0n29/pitwall/internal/planner"
	"github.com/ent0n29/pitwall/internal/scrape"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer store.Close()
	logger.Info("memory store ready", "kind", store.Kind())

	classifier, err := intent.NewWithRuleFile(cfg.IntentRulesFile, time.Now().Year())
	if err != nil {
		log.Fatalf("intent rules load failed: %v", err)
	}

	fetcher := scrape.NewFetcher(nil)
	champion := scrape.NewChampionExtractor(fetcher, scrape.ChampionConfig{
		URL: cfg.ChampionsURL,
		Table: scrape.TableSpec{
			Selector:     cfg.ChampionTableSelector,
			SeasonColumn: cfg.ChampionSeasonColumn,
			NameColumn:   cfg.ChampionNameColumn,
			Season:       cfg.ChampionSeason,
		},
		Timeout:  cfg.ScrapeTimeout,
		CacheTTL: cfg.ChampionCacheTTL,
	})

	responder, err := llm.NewResponder(llm.Config{
		Mode:         cfg.LLMMode,
		APIKey:       cfg.LLMAPIKey,
		BaseURL:      cfg.LLMBaseURL,
		HTTPURL:      cfg.LLMHTTPURL,
		Model:        cfg.LLMModel,
		MaxTokens:    cfg.LLMMaxTokens,
		Temperature:  cfg.LLMTemperature,
		SystemPrompt: cfg.LLMSystemPrompt,
		Timeout:      cfg.LLMTimeout,
		HistoryTurns: cfg.MemoryHistoryLimit,
	})
	if err != nil {
		log.Fatalf("llm responder init failed: %v", err)
	}
	llmMode := llm.ModeOf(responder)
	logger.Info("llm responder ready", "mode", llmMode)

	chat, err := planner.New(classifier, champion, responder, store, metrics, logger, planner.Config{
		HistoryTurns:    cfg.MemoryHistoryLimit,
		GenerateTimeout: cfg.LLMTimeout,
		PersistTimeout:  cfg.PersistTimeout,
		RedactPII:       cfg.MemoryRedactPII,
	})
	if err != nil {
		log.Fatalf("planner init failed: %v", err)
	}

	sources, err := news.LoadSources(cfg.NewsSourcesFile)
	if err != nil {
		log.Fatalf("news sources load failed: %v", err)
	}
	var publisher news.Publisher
	if cfg.NATSURL != "" {
		natsPub, err := news.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			log.Fatalf("nats publisher init failed: %v", err)
		}
		defer natsPub.Close()
		publisher = natsPub
	}
	newsService := news.NewService(news.NewScraper(fetcher, logger), sources, store, publisher, metrics, logger, news.ServiceConfig{
		Limit:        cfg.NewsLimit,
		StoreTimeout: cfg.PersistTimeout,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if cfg.NewsRefreshInterval > 0 {
		go news.NewRefresher(newsService, cfg.NewsRefreshInterval, logger).Run(runCtx)
	}

	api := httpapi.New(cfg, chat, newsService, store, llmMode, metrics, logger)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
