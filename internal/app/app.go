package app

import (
	"cad_practice_backend/internal/config"
	"cad_practice_backend/internal/controller"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/service"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/database"
	"cad_practice_backend/pkg/logger"
	"cad_practice_backend/pkg/monitoring"
	"cad_practice_backend/pkg/queue"
	"cad_practice_backend/pkg/security"
	"cad_practice_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const captureQueueKey = "cad_practice:capture_jobs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	workerCancel    context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	question *repository.QuestionRepository
	history  *repository.HistoryRepository
	capture  *repository.CaptureRepository
}

type services struct {
	auth      *service.AuthService
	storage   *service.StorageService
	collector *service.CollectorService
	attempt   *service.AttemptService
	question  *service.QuestionService
	capture   *service.CaptureService
	worker    *queue.Worker
}

type controllers struct {
	auth     *controller.AuthController
	question *controller.QuestionController
	attempt  *controller.AttemptController
	admin    *controller.AdminController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig is invoked by the config watcher when the config file
// changes on disk. Only callback-registered consumers pick up the new
// values; connections opened at startup keep their original settings.
func (a *App) ApplyConfig(cfg interface{}) {
	newCfg, ok := cfg.(*config.Config)
	if !ok {
		return
	}
	a.Config = newCfg
	for _, cb := range a.configCallbacks {
		cb(newCfg)
	}
	logger.Log.Info("Configuration reloaded")
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		question: repository.NewQuestionRepository(db),
		history:  repository.NewHistoryRepository(db),
		capture:  repository.NewCaptureRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	vendor := onshape.NewClient(cfg.Onshape.BaseURL)
	oauth := onshape.NewOAuthClient(cfg.Onshape.OAuthURL, cfg.Onshape.ClientID, cfg.Onshape.ClientSecret)

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, oauth, vendor, cfg)

	jobQueue := queue.New(rdb, captureQueueKey)
	s.collector = service.NewCollectorService(repos.history, jobQueue)
	s.attempt = service.NewAttemptService(repos.user, repos.question, repos.history, vendor, s.auth, s.collector)
	s.question = service.NewQuestionService(repos.question, vendor, s.auth)

	s.capture = service.NewCaptureService(repos.capture, repos.user, vendor, s.storage, s.auth)
	s.worker = queue.NewWorker(jobQueue)
	s.capture.Register(s.worker)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		question: controller.NewQuestionController(s.question, repos.user),
		attempt:  controller.NewAttemptController(s.attempt),
		admin:    controller.NewAdminController(s.question, repos.user),
		health:   controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.Server.Mode != "release" || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("cad-practice", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	app.workerCancel = cancel
	go services.worker.Run(workerCtx)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.workerCancel != nil {
		a.workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
