package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/activity"
	"contracts-backend/internal/analysis"
	googleauth "contracts-backend/internal/auth"
	"contracts-backend/internal/billing"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/dashboard"
	"contracts-backend/internal/exports"
	"contracts-backend/internal/llm"
	openai "contracts-backend/internal/llm/openai"
	"contracts-backend/internal/notifications"
	"contracts-backend/internal/organizations"
	"contracts-backend/internal/shared/config"
	"contracts-backend/internal/shared/server"
	"contracts-backend/internal/shared/storage/db"
	"contracts-backend/internal/shared/storage/object"
	localstore "contracts-backend/internal/shared/storage/object/local"
	s3store "contracts-backend/internal/shared/storage/object/s3"
	"contracts-backend/internal/usage"
	"contracts-backend/internal/users"
)

// App holds the API process dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	ContractsRepo     contracts.Repo
	JobsRepo          analysis.Repo
	UsersRepo         users.Repo
	OrganizationsRepo organizations.Repo
	NotificationsRepo notifications.Repo
	ActivityRepo      activity.Repo

	ContractsService     *contracts.Service
	AnalysisService      *analysis.Service
	Sweeper              *analysis.Sweeper
	UsageService         *usage.Service
	UsersService         *users.Service
	OrganizationsService *organizations.Service
	NotificationsService *notifications.Service
	ActivityService      *activity.Service
	ExportsService       *exports.Service
	DashboardService     *dashboard.Service
	Billing              billing.Service

	ContractsHandler     *contracts.Handler
	AnalysisHandler      *analysis.Handler
	UsageHandler         *usage.Handler
	UsersHandler         *users.Handler
	OrganizationsHandler *organizations.Handler
	NotificationsHandler *notifications.Handler
	BillingHandler       *billing.Handler
	ExportsHandler       *exports.Handler
	DashboardHandler     *dashboard.Handler
	GoogleAuth           *googleauth.GoogleService
}

// Build prepares the API process: storage, repositories, services, and the
// wired router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, db.DefaultServerOptions())
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:               app.Config,
		Roles:                app.UsersService,
		GoogleAuth:           app.GoogleAuth,
		ContractsHandler:     app.ContractsHandler,
		AnalysisHandler:      app.AnalysisHandler,
		UsageHandler:         app.UsageHandler,
		UsersHandler:         app.UsersHandler,
		OrganizationsHandler: app.OrganizationsHandler,
		NotificationsHandler: app.NotificationsHandler,
		BillingHandler:       app.BillingHandler,
		ExportsHandler:       app.ExportsHandler,
		DashboardHandler:     app.DashboardHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(defaults)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
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

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var contractsRepo contracts.Repo
	var jobsRepo analysis.Repo
	var userRepo users.Repo
	var orgRepo organizations.Repo
	var notifRepo notifications.Repo
	var activityRepo activity.Repo

	if app.DB != nil {
		contractsRepo = &contracts.PGRepo{DB: app.DB}
		jobsRepo = &analysis.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		orgRepo = &organizations.PGRepo{DB: app.DB}
		notifRepo = &notifications.PGRepo{DB: app.DB}
		activityRepo = &activity.PGRepo{DB: app.DB}
	} else {
		contractsRepo = contracts.NewMemoryRepo()
		jobsRepo = analysis.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		orgRepo = organizations.NewMemoryRepo()
		notifRepo = notifications.NewMemoryRepo()
		activityRepo = activity.NewMemoryRepo()
	}

	var usageSvc *usage.Service
	if app.DB != nil {
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB))
	} else {
		usageSvc = usage.NewService()
	}

	var presigner contracts.UploadPresigner
	if s3Store, ok := app.Store.(*s3store.Store); ok {
		presigner = s3Store
	}
	contractsSvc := &contracts.Service{Store: app.Store, Repo: contractsRepo, Presigner: presigner}

	activitySvc := &activity.Service{Repo: activityRepo}
	analysisSvc := &analysis.Service{
		Repo:      jobsRepo,
		Contracts: contractsRepo,
		Usage:     usageSvc,
		Activity:  activitySvc,
	}
	sweeper := &analysis.Sweeper{Repo: jobsRepo, Threshold: app.Config.StuckJobThreshold}

	userSvc := users.NewService(userRepo)
	orgSvc := organizations.NewService(orgRepo)
	notifSvc := notifications.NewService(notifRepo)
	exportsSvc := exports.NewService(contractsRepo, jobsRepo)
	dashboardSvc := dashboard.NewService(contractsRepo, jobsRepo, activitySvc, usageSvc)

	var billingSvc billing.Service
	if app.Config.StripeSecretKey != "" {
		billingSvc = billing.NewStripeService(
			app.Config.StripeSecretKey,
			app.Config.StripeWebhookSecret,
			billing.PriceConfig{
				StarterMonthlyPriceID:      app.Config.StarterMonthlyPriceID,
				StarterYearlyPriceID:       app.Config.StarterYearlyPriceID,
				ProfessionalMonthlyPriceID: app.Config.ProfessionalMonthlyPriceID,
				ProfessionalYearlyPriceID:  app.Config.ProfessionalYearlyPriceID,
			},
		)
	}
	ui := strings.TrimRight(app.Config.UIRedirectURL, "/")
	billingHandler := billing.NewHandler(
		billingSvc,
		userRepo,
		usageSvc,
		ui+"/billing/success",
		ui+"/billing/cancel",
		ui+"/settings/billing",
	)

	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
		orgSvc,
	)

	app.ContractsRepo = contractsRepo
	app.JobsRepo = jobsRepo
	app.UsersRepo = userRepo
	app.OrganizationsRepo = orgRepo
	app.NotificationsRepo = notifRepo
	app.ActivityRepo = activityRepo

	app.ContractsService = contractsSvc
	app.AnalysisService = analysisSvc
	app.Sweeper = sweeper
	app.UsageService = usageSvc
	app.UsersService = userSvc
	app.OrganizationsService = orgSvc
	app.NotificationsService = notifSvc
	app.ActivityService = activitySvc
	app.ExportsService = exportsSvc
	app.DashboardService = dashboardSvc
	app.Billing = billingSvc

	app.ContractsHandler = contracts.NewHandler(contractsSvc)
	app.AnalysisHandler = analysis.NewHandler(analysisSvc, sweeper)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.OrganizationsHandler = organizations.NewHandler(orgSvc)
	app.NotificationsHandler = notifications.NewHandler(notifSvc)
	app.BillingHandler = billingHandler
	app.ExportsHandler = exports.NewHandler(exportsSvc)
	app.DashboardHandler = dashboard.NewHandler(dashboardSvc)
	app.GoogleAuth = googleAuthSvc

	return nil
}

// BuildLLM selects the LLM client from configuration. The placeholder
// client fails analyses until a provider is configured.
func BuildLLM(cfg config.Config) (llm.Client, error) {
	if cfg.LLMProvider == "openai" {
		return openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
	}
	return llm.PlaceholderClient{}, nil
}
