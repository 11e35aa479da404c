package routes

import (
	"net/http"
	"time"

	"au-panel/internal/api/handlers"
	"au-panel/internal/api/middleware"
	"au-panel/internal/cache"
	"au-panel/internal/config"
	"au-panel/internal/models"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps holds every long-lived component of the server, built once in main
// and shared by the handlers.
type Deps struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *models.Database
	Sessions *cache.SessionCache
	Apps     *cache.AppCache
	Ports    *cache.PortCache

	Auth      *services.AuthService
	Users     *services.UserService
	Companies *services.CompanyService
	AppSvc    *services.AppService
	Units     *services.AppUnitService
	Proxy     *services.ProxyService
	Deploy    *services.DeployService
}

// NewDeps wires the full dependency graph from a loaded config.
func NewDeps(cfg *config.Config, log *zap.Logger) (*Deps, error) {
	db, err := models.Open(cfg)
	if err != nil {
		return nil, err
	}

	sessions := cache.NewSessionCache(cfg.Auth.SessionCacheSize, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	appCache := cache.NewAppCache(log)
	ports := cache.NewPortCache(cache.Ports{
		MaxRestPort: cfg.Ports.Rest,
		MaxWSPort:   cfg.Ports.WS,
		MaxProfPort: cfg.Ports.Prof,
	})

	audit := services.NewAuditSink(cfg.Paths.Audit, log)
	staging := services.NewStagingService(cfg, log)

	auth := services.NewAuthService(db, sessions, cfg, log)

	return &Deps{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Sessions: sessions,
		Apps:     appCache,
		Ports:    ports,

		Auth:      auth,
		Users:     services.NewUserService(db, auth, audit, log),
		Companies: services.NewCompanyService(db, staging, audit, log),
		AppSvc:    services.NewAppService(db, appCache, ports, staging, audit, cfg.Server.Workers, log),
		Units:     services.NewAppUnitService(db, staging, audit, cfg.Server.Workers, log),
		Proxy:     services.NewProxyService(appCache, cfg.Server.Workers, log),
		Deploy:    services.NewDeployService(cfg.Paths.Apps, log),
	}, nil
}

// SetupRoutes registers every endpoint on the router.
func SetupRoutes(r *gin.Engine, deps *Deps) {
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Sessions)
	userHandler := handlers.NewUserHandler(deps.Users)
	companyHandler := handlers.NewCompanyHandler(deps.Companies)
	appHandler := handlers.NewApplicationHandler(deps.AppSvc, deps.Deploy)
	unitHandler := handlers.NewAppUnitHandler(deps.Units)
	monitorHandler := handlers.NewMonitorHandler(deps.Proxy)

	r.Use(middleware.CORS(deps.Cfg.Server.CORSOrigins))
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"message": "AU-Panel API is running",
			})
		})

		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.Auth(deps.Sessions))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/validate", authHandler.Validate)
		protected.GET("/auth/me", authHandler.Me)

		apps := protected.Group("/applications")
		{
			apps.GET("", appHandler.GetApplications)
			apps.POST("", appHandler.CreateApplication)
			apps.GET("/ports", appHandler.GetPorts)
			apps.POST("/start", appHandler.StartApplication)
			apps.GET("/:aid", appHandler.GetApplication)
			apps.PUT("/:aid", appHandler.UpdateApplication)
			apps.DELETE("/:aid", appHandler.DeleteApplication)

			apps.GET("/appunits/:cid/:zid", unitHandler.GetAppUnits)
			apps.POST("/appunit/:cid/:zid", unitHandler.AddAppUnit)
			apps.GET("/appunit/:cid/:zid/:id", unitHandler.GetAppUnit)
			apps.PUT("/appunit/:cid/:zid/:id", unitHandler.UpdateAppUnit)
			apps.DELETE("/appunit/:cid/:zid/:id", unitHandler.DeleteAppUnit)
		}

		protected.POST("/apps/:aid/:action", monitorHandler.Forward)

		companies := protected.Group("/companies")
		{
			companies.GET("", companyHandler.GetCompanies)
			companies.GET("/:cid", companyHandler.GetCompany)
			companies.POST("", companyHandler.CreateCompany)
			companies.PUT("/:cid", companyHandler.UpdateCompany)
			companies.DELETE("/:cid", companyHandler.DeleteCompany)
		}

		users := protected.Group("/users")
		{
			users.GET("", userHandler.GetUsers)
			users.GET("/:uid", userHandler.GetUser)
			users.POST("", userHandler.CreateUser)
			users.PUT("/:uid", userHandler.UpdateUser)
			users.DELETE("/:uid", userHandler.DeleteUser)
		}
	}
}
