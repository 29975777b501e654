package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/extract"
	"cvscanner-backend/internal/llm"
	openai "cvscanner-backend/internal/llm/openai"
	"cvscanner-backend/internal/queue"
	"cvscanner-backend/internal/resumes"
	"cvscanner-backend/internal/services/health"
	"cvscanner-backend/internal/shared/config"
	"cvscanner-backend/internal/shared/server"
	"cvscanner-backend/internal/shared/storage/db"
	"cvscanner-backend/internal/shared/storage/object"
	localstore "cvscanner-backend/internal/shared/storage/object/local"
	s3store "cvscanner-backend/internal/shared/storage/object/s3"
	"cvscanner-backend/resume/render"
)

// App holds shared dependencies.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	Store         object.ObjectStore
	Queue         queue.Client
	Repo          resumes.Repo
	Service       *resumes.Service
	ResumeHandler *resumes.Handler
	Health        *health.Service
	// Analyzer runs queued analyze jobs; tests may replace it.
	Analyzer Analyzer
}

// Analyzer structures a stored record by id.
type Analyzer interface {
	Analyze(ctx context.Context, id string) error
}

// Options tune Build for the calling process.
type Options struct {
	// DBOptions sizes the connection pool; zero value uses server defaults.
	DBOptions db.Options
	// SkipRouter leaves App.Router nil (worker processes).
	SkipRouter bool
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(context.Background(), cfg, Options{})
}

// BuildWith is Build with process-specific options.
func BuildWith(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	dbOpts := opts.DBOptions
	if dbOpts == (db.Options{}) {
		dbOpts = db.DefaultServerOptions()
	}
	sqlDB, err := buildDB(ctx, cfg, db.OptionsFromEnv(dbOpts))
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	structurer, err := buildStructurer(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Health: health.NewService(sqlDB),
	}

	if sqlDB != nil {
		app.Repo = &resumes.PGRepo{DB: sqlDB}
	} else {
		app.Repo = resumes.NewMemoryRepo()
	}

	app.Service = &resumes.Service{
		Repo:          app.Repo,
		Store:         store,
		Extractor:     extract.New(extract.NewTesseractEngine(cfg.TessdataPrefix), cfg.OCRLanguage),
		Structurer:    structurer,
		Renderer:      render.New(cfg.DocxTemplate),
		Artifacts:     llm.NewArtifactWriter(store),
		MinTextLength: cfg.MinTextLength,
	}
	if queueClient != nil {
		app.Service.Queue = queueClient
	}
	app.Analyzer = serviceAnalyzer{svc: app.Service}
	app.ResumeHandler = resumes.NewHandler(app.Service, cfg.MaxUploadBytes)

	if !opts.SkipRouter {
		app.Router = server.NewRouter(server.RouterDeps{
			Config:        cfg,
			ResumeHandler: app.ResumeHandler,
			Health:        app.Health,
		})
	}
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
}

func buildStructurer(cfg config.Config) (llm.Structurer, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		log.Printf("bootstrap: OPENAI_API_KEY empty; structuring calls will fail until a provider is configured")
		return llm.PlaceholderClient{}, nil
	}
	return openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

type serviceAnalyzer struct {
	svc *resumes.Service
}

func (a serviceAnalyzer) Analyze(ctx context.Context, id string) error {
	_, err := a.svc.Analyze(ctx, id)
	return err
}
