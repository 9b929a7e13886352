package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/observability"
)

type RouterConfig struct {
	Handlers *Handlers
	Verifier *auth.Verifier
	Log      *logger.Logger

	CORSOrigins     []string
	RateLimitPerMin int
	GuestTTL        time.Duration
	SecureCookies   bool

	// TelegramWebhook, when set, receives bot updates on POST /webhook.
	TelegramWebhook http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(observability.ServiceName))
	r.Use(RequestLogger(log))
	r.Use(CORS(cfg.CORSOrigins))

	h := cfg.Handlers
	r.GET("/healthz", h.Health)
	if cfg.TelegramWebhook != nil {
		r.POST("/webhook", gin.WrapH(cfg.TelegramWebhook))
	}

	api := r.Group("/")
	api.Use(NewRateLimiter(cfg.RateLimitPerMin).Middleware())
	api.Use(Identify(cfg.Verifier, log))
	api.Use(GuestSession(cfg.GuestTTL, cfg.SecureCookies))
	{
		api.GET("/gif", h.Gif)

		for _, path := range []string{"/plan", "/ai/plan"} {
			api.POST(path, h.PostPlan)
			api.GET(path, h.GetPlan)
		}

		wizard := api.Group("/wizard")
		wizard.GET("/status", h.Status)
		wizard.GET("/output", h.Output)
		wizard.POST("/:step", h.SaveStep)

		api.GET("/records/latest", RequireAuth(), h.LatestRecord)
	}

	return r
}
