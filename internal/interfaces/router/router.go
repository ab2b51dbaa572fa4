package router

import (
	"context"
	"net/http"
	"time"

	noticesvc "nebs-backend/internal/application/notices"
	uploadsvc "nebs-backend/internal/application/uploads"
	"nebs-backend/internal/config"
	"nebs-backend/internal/infrastructure/database"
	healthhandler "nebs-backend/internal/interfaces/handlers/health"
	noticehandler "nebs-backend/internal/interfaces/handlers/notices"
	"nebs-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Options carries optional overrides for CreateApp.
type Options struct {
	// Uploads replaces the driver selected from cfg.Upload.
	Uploads *uploadsvc.Service
	// Now stamps the liveness payload.
	Now func() time.Time
}

// CreateApp builds the Fiber app. db is shared with the caller, which owns
// connecting and closing it. The returned Redis client is nil when REDIS_URL is
// unset.
func CreateApp(ctx context.Context, cfg *config.Config, db *database.Manager, opts ...Options) (*fiber.App, *redis.Client, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	uploads := o.Uploads
	if uploads == nil {
		var err error
		uploads, err = uploadsvc.New(ctx, cfg.Upload)
		if err != nil {
			return nil, nil, err
		}
	}
	rdb, err := middleware.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	fc := fiber.Config{
		AppName:               "nebs-backend",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(cfg.IsDevelopment()),
		BodyLimit:             int(cfg.Upload.MaxFileSize)*uploadsvc.MaxFiles + 1<<20,
	}
	if cfg.Serverless {
		fc.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(fc)

	metrics := middleware.NewMetrics(func() float64 { return float64(db.State()) })

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Production:     cfg.IsProduction(),
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.RequestStats(rdb))
	app.Use(metrics.Middleware())

	now := o.Now
	if now == nil {
		now = time.Now
	}
	alive := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success":   true,
			"message":   "Server is running",
			"timestamp": now().UTC().Format(time.RFC3339Nano),
		})
	}
	hh := &healthhandler.Handlers{Rdb: rdb, DB: db, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/health", alive)
	app.Get("/api/health", alive)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/reset", hh.Reset)
	app.Get("/metrics", metrics.Handler())

	if cfg.Upload.Driver == config.UploadLocal {
		app.Static(uploadsvc.LocalURLPrefix, cfg.Upload.Dir)
	}

	api := app.Group("/api", middleware.RateLimit(middleware.RateLimitConfig{
		Max:    cfg.RateLimitMax,
		Window: cfg.RateLimitWindow,
		Redis:  rdb,
	}))

	nh := &noticehandler.Handlers{
		Service: &noticesvc.Service{Repos: db},
		Uploads: uploads,
	}
	ng := api.Group("/notices", middleware.RequireDatabase(db))
	ng.Post("/", nh.Create)
	ng.Get("/", nh.List)
	ng.Get("/:id", nh.Get)
	ng.Put("/:id", nh.Update)
	ng.Patch("/:id/status", nh.UpdateStatus)
	ng.Delete("/:id", nh.Delete)

	app.Use(middleware.NotFound())

	return app, rdb, nil
}

// Handler adapts the Fiber app to net/http for the function hosts.
func Handler(app *fiber.App) http.Handler {
	h := adaptor.FiberApp(app)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Rewrites leave RequestURI pointing at the function path.
		r.RequestURI = r.URL.RequestURI()
		h(w, r)
	})
}
