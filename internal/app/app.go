package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/config"
	"ai-workout-planner/internal/database"
	"ai-workout-planner/internal/httpapi"
	"ai-workout-planner/internal/llm"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/media"
	"ai-workout-planner/internal/metrics"
	"ai-workout-planner/internal/orchestrator"
	"ai-workout-planner/internal/planner"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/rules"
	"ai-workout-planner/internal/session"
	"ai-workout-planner/internal/telegram"
	"ai-workout-planner/internal/workout"
)

// gifCacheTTL bounds how long a Giphy answer is reused when Redis backs the
// cache. The in-process cache keeps entries for the life of the process.
const gifCacheTTL = 7 * 24 * time.Hour

// App holds the application's dependencies.
type App struct {
	cfg *config.Config
	log *logger.Logger

	db           *database.DB
	records      *records.Repository
	metricsStore *metrics.Store
	sessions     session.Store
	gifs         *media.GifLookup
	verifier     *auth.Verifier
	factory      *llm.ProviderFactory
	generator    *planner.Generator
	orchestrator *orchestrator.Orchestrator
	redis        *redis.Client
}

// New opens storage and builds every service from cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		cfg:          cfg,
		log:          log,
		db:           db,
		records:      records.NewRepository(db.SQL),
		metricsStore: metrics.NewStore(db.SQL),
		verifier:     auth.NewVerifier(cfg.AuthJWTSecret),
	}

	gifCache := media.Cache(media.NewMemoryCache())
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			_ = a.redis.Close()
			_ = db.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		a.sessions, err = session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(a.redis),
			session.WithRedisTTL(cfg.GuestSessionTTL))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		gifCache = media.NewRedisCache(a.redis, gifCacheTTL)
		log.Info("guest sessions and gif cache backed by redis")
	} else {
		a.sessions = session.NewMemoryStore()
		log.Info("guest sessions held in memory")
	}

	a.gifs = media.NewGifLookup(cfg.GiphyAPIKey, media.WithCache(gifCache), media.WithLogger(log))

	opts := []orchestrator.Option{
		orchestrator.WithForceRules(cfg.ForceRules),
		orchestrator.WithMetrics(a.metricsStore),
		orchestrator.WithLogger(log),
	}
	if cfg.GenerationEnabled() {
		a.factory = &llm.ProviderFactory{
			GeminiAPIKey: cfg.GeminiAPIKey,
			GroqAPIKey:   cfg.GroqAPIKey,
			SystemPrompt: planner.SystemPrompt(),
		}
		a.generator = planner.NewGenerator(a.factory, planner.Config{
			Models:         cfg.Models(),
			MaxRetries:     cfg.MaxRetries,
			BaseDelay:      cfg.RetryBaseDelay,
			AttemptTimeout: cfg.AttemptTimeout,
		}, planner.WithLogger(log))
		opts = append(opts, orchestrator.WithGenerator(a.generator))
		log.Info("generative plans enabled", "models", a.generator.Models())
	} else {
		if !cfg.ForceRules && (cfg.GeminiAPIKey != "" || cfg.GroqAPIKey != "") {
			log.Warn("provider key set but no configured model can use it, using the rule engine", "models", cfg.Models())
		}
		log.Info("generative plans disabled, using the rule engine")
	}
	a.orchestrator = orchestrator.New(a.records, a.sessions, opts...)
	return a, nil
}

func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }
func (a *App) Metrics() *metrics.Store                   { return a.metricsStore }
func (a *App) Verifier() *auth.Verifier                  { return a.verifier }

func (a *App) dataDir() string {
	return filepath.Dir(a.cfg.DatabasePath)
}

// Router builds the HTTP API. webhook may be nil.
func (a *App) Router(webhook http.Handler) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return httpapi.NewRouter(httpapi.RouterConfig{
		Handlers:        httpapi.NewHandlers(a.orchestrator, a.gifs, a.log, a.dataDir()),
		Verifier:        a.verifier,
		Log:             a.log,
		CORSOrigins:     a.cfg.CORSOrigins,
		RateLimitPerMin: a.cfg.RateLimitPerMin,
		GuestTTL:        a.cfg.GuestSessionTTL,
		SecureCookies:   a.cfg.IsProduction(),
		TelegramWebhook: webhook,
	})
}

// TelegramBot connects the bot when a token is configured and returns nil
// otherwise.
func (a *App) TelegramBot() (*telegram.Bot, error) {
	if a.cfg.TelegramBotToken == "" {
		return nil, nil
	}
	if err := a.cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	api, err := telegram.Connect(a.cfg.TelegramBotToken, a.cfg.TelegramWebhookURL, a.log)
	if err != nil {
		return nil, err
	}
	return telegram.NewBot(api, a.orchestrator, a.metricsStore, telegram.Config{
		AllowUserIDs: a.cfg.TelegramAllowUserIDs,
		AdminID:      a.cfg.AdminTelegramID,
		DataDir:      a.dataDir(),
	}, a.log), nil
}

// GeneratePlan produces a plan for spec without touching any caller state.
func (a *App) GeneratePlan(ctx context.Context, spec workout.PlanSpec) workout.Plan {
	var plan workout.Plan
	if a.generator == nil {
		plan = rules.Generate(spec)
	} else {
		plan = a.generator.Generate(ctx, spec).Plan
	}
	return media.Enrich(plan)
}

// CleanupMetrics deletes generation metrics older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, days)
}

func (a *App) Close() error {
	var errs []error
	if a.factory != nil {
		errs = append(errs, a.factory.Close())
	}
	if a.sessions != nil {
		// The redis session store owns the shared client.
		errs = append(errs, a.sessions.Close())
	} else if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
