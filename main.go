// Command marhaba runs the tourism assistant: one HTTP process hosting the
// conversation engine, the knowledge base access layer and the session store
// plumbing. Configuration comes from a YAML file plus MARHABA_* environment
// overrides; see config.SetConfigDefaults for the full key list.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/marhaba-ai/marhaba/analytics"
	"github.com/marhaba-ai/marhaba/api"
	"github.com/marhaba-ai/marhaba/cache"
	"github.com/marhaba-ai/marhaba/chat"
	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/config"
	"github.com/marhaba-ai/marhaba/db"
	"github.com/marhaba-ai/marhaba/dialog"
	"github.com/marhaba-ai/marhaba/knowledge"
	"github.com/marhaba-ai/marhaba/nlu"
	"github.com/marhaba-ai/marhaba/rag"
	"github.com/marhaba-ai/marhaba/services"
	"github.com/marhaba-ai/marhaba/session"
	"github.com/marhaba-ai/marhaba/version"
)

func main() {
	cfgFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	settings, err := config.LoadSettings(*cfgFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load settings")
	}

	common.ConfigureLogger(common.LoggerConfig{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
	})
	log := common.Logger

	build := version.GetBuildInfo()
	log.WithFields(logrus.Fields{
		"service":    settings.Service.Name,
		"version":    build.MainVersion,
		"go_version": build.GoVersion,
	}).Info("Starting marhaba")

	ctx := context.Background()

	primaryOpts, err := redis.ParseURL(settings.Session.PrimaryStoreURI)
	if err != nil {
		log.WithError(err).Fatal("Invalid session store URI")
	}
	primary := redis.NewClient(primaryOpts)
	defer primary.Close()

	// The cache shares the session Redis unless a dedicated L2 is configured.
	cacheClient := redis.UniversalClient(primary)
	if settings.Cache.L2URI != "" && settings.Cache.L2URI != settings.Session.PrimaryStoreURI {
		l2Opts, err := redis.ParseURL(settings.Cache.L2URI)
		if err != nil {
			log.WithError(err).Fatal("Invalid cache L2 URI")
		}
		l2 := redis.NewClient(l2Opts)
		defer l2.Close()
		cacheClient = l2
	}

	sessions := session.NewStore(primary, session.Options{
		TTL:           settings.Session.TTL(),
		RememberMeTTL: settings.Session.RememberMeTTL(),
	}, log)
	defer sessions.Close()

	core, err := db.NewCore(ctx, db.Config{
		URI:      settings.DB.URI,
		MinConns: settings.DB.MinConn,
		MaxConns: settings.DB.MaxConn,
	}, db.NewAnalyzer(log), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to the knowledge base")
	}
	defer core.Close()

	sampler := db.NewSampler(core, prometheus.DefaultRegisterer, log)
	sampler.Start(ctx)
	defer sampler.Stop()

	tiered, err := cache.NewTiered(cacheClient, settings.Cache.L1Capacity, settings.Cache.L2TTL(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build the cache")
	}

	repo := knowledge.NewRepository(core, cache.NewQueryCache(tiered), cache.NewVectorCache(tiered), knowledge.Options{
		EFSearch:        settings.Search.VectorEFSearch,
		DefaultLanguage: settings.NLU.DefaultLanguage,
	}, log)
	resolver := knowledge.NewResolver(repo, log)

	embedder, err := buildEmbedder(settings.NLU)
	if err != nil {
		log.WithError(err).Fatal("Failed to build the embedder")
	}
	registry := nlu.NewRegistry(log)
	defer registry.ReleaseAll()
	analyzer := nlu.NewPipeline(nlu.Config{
		Languages:       settings.NLU.LanguagesSupported,
		DefaultLanguage: settings.NLU.DefaultLanguage,
		Embedder:        embedder,
		Resolver:        resolver,
	}, registry, log)

	library, err := dialog.LoadLibrary(settings.Dialog.FlowsDir, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load dialog flows")
	}
	conversations := dialog.NewManager(library, settings.Dialog.SlotTTLTurns, log)

	model, err := buildModel(settings.Services)
	if err != nil {
		log.WithError(err).Fatal("Failed to build the language model client")
	}
	hub := services.NewHub(log)
	hub.Register(services.NewWeatherProvider(settings.Services.WeatherEndpoint, log), services.DefaultPolicy())
	hub.Register(services.NewTranslationProvider(model), services.Policy{
		Timeout: settings.Services.LLMTimeout(),
	})
	hub.Register(services.NewLLMProvider(model), services.OncePolicy(settings.Services.LLMTimeout()))

	answerer := rag.NewPipeline(repo, embedder, hub, settings.NLU.DefaultLanguage, rag.Options{}, log)

	emitter := analytics.NewEmitter(buildSink(settings.Analytics, log), settings.Analytics.Buffer, prometheus.DefaultRegisterer, log)
	defer emitter.Close()

	engine := chat.NewEngine(sessions, analyzer, conversations, repo, answerer, hub, emitter, chat.Config{
		Deadline:        settings.Chat.RequestDeadline(),
		Languages:       settings.NLU.LanguagesSupported,
		DefaultLanguage: settings.NLU.DefaultLanguage,
	}, log)

	healthDetails := func() map[string]any {
		stat := core.Stat()
		return map[string]any{
			"services":               hub.States(),
			"session_store_degraded": sessions.Degraded(),
			"db_conns_active":        stat.Active,
			"db_conns_total":         stat.Total,
		}
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Host = settings.Server.Host
	apiCfg.Port = settings.Server.Port
	apiCfg.APIKey = settings.Server.APIKey
	apiCfg.ShutdownTimeout = settings.Server.ShutdownTimeout
	apiCfg.Debug = settings.Logging.Level == "debug"
	apiCfg.Version = build.MainVersion
	server := api.NewServer(engine, sessions, healthDetails, apiCfg, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	if err := server.Shutdown(); err != nil {
		log.WithError(err).Warn("Server shutdown was not clean")
	}
	log.Info("Shutdown complete")
}

// buildEmbedder selects the vector backend for intent classification and
// retrieval. The local hashing embedder needs no credentials and keeps the
// service self-contained; openai requires an API key.
func buildEmbedder(cfg config.NLUSettings) (nlu.Embedder, error) {
	switch cfg.EmbedderProvider {
	case "", "local":
		return nlu.NewLocalEmbedder(cfg.EmbedderDimensions), nil
	case "openai":
		client, err := openai.New(
			openai.WithToken(cfg.EmbedderAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedderModel),
		)
		if err != nil {
			return nil, err
		}
		inner, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, err
		}
		return nlu.NewLangChainEmbedder("openai/"+cfg.EmbedderModel, inner, cfg.EmbedderDimensions), nil
	default:
		return nil, errors.New("unknown embedder provider " + cfg.EmbedderProvider)
	}
}

// buildModel selects the completion backend shared by the llm and
// translation providers. The stub answers offline so the assistant still
// degrades gracefully when no provider is configured.
func buildModel(cfg config.ServicesSettings) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "", "stub":
		return services.StubModel{}, nil
	case "openai":
		return openai.New(
			openai.WithToken(cfg.LLMAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
	default:
		return nil, errors.New("unknown llm provider " + cfg.LLMProvider)
	}
}

// buildSink picks where turn events land. Without a broker they go to the
// log, so analytics never blocks deployment of the assistant itself.
func buildSink(cfg config.AnalyticsSettings, log *logrus.Logger) analytics.Sink {
	if cfg.AMQPURI == "" {
		return &analytics.LogSink{Log: log}
	}
	sink, err := analytics.NewAMQPSink(cfg.AMQPURI, cfg.Queue)
	if err != nil {
		log.WithError(err).Warn("Analytics broker unreachable, falling back to the log sink")
		return &analytics.LogSink{Log: log}
	}
	return sink
}
