package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/accounts/internal/auth/domain"
	"github.com/smallbiznis/accounts/internal/authorization"
	catalogdomain "github.com/smallbiznis/accounts/internal/catalog/domain"
	chargedomain "github.com/smallbiznis/accounts/internal/charge/domain"
	"github.com/smallbiznis/accounts/internal/config"
	"github.com/smallbiznis/accounts/internal/observability"
	obsmiddleware "github.com/smallbiznis/accounts/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/accounts/internal/observability/metrics"
	obstracing "github.com/smallbiznis/accounts/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/accounts/internal/organization/domain"
	orgtypedomain "github.com/smallbiznis/accounts/internal/orgtype/domain"
	signupdomain "github.com/smallbiznis/accounts/internal/signup/domain"
	userdomain "github.com/smallbiznis/accounts/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authsvc         authdomain.Service
	signupsvc       signupdomain.Service
	userSvc         userdomain.Service
	organizationSvc orgdomain.Service
	orgTypeSvc      orgtypedomain.Service
	catalogSvc      catalogdomain.Service
	chargeSvc       chargedomain.Service
	authzSvc        authorization.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Authsvc         authdomain.Service
	Signupsvc       signupdomain.Service
	UserSvc         userdomain.Service
	OrganizationSvc orgdomain.Service
	OrgTypeSvc      orgtypedomain.Service
	CatalogSvc      catalogdomain.Service
	ChargeSvc       chargedomain.Service
	AuthzSvc        authorization.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authsvc:         p.Authsvc,
		signupsvc:       p.Signupsvc,
		userSvc:         p.UserSvc,
		organizationSvc: p.OrganizationSvc,
		orgTypeSvc:      p.OrgTypeSvc,
		catalogSvc:      p.CatalogSvc,
		chargeSvc:       p.ChargeSvc,
		authzSvc:        p.AuthzSvc,
	}

	svc.registerAuthRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.authenticate(), s.requireAuth(), s.Me)
}

// registerPublicRoutes mounts the public API. Reads are open to anonymous
// callers; private organizations are only visible to members and staff.
func (s *Server) registerPublicRoutes() {
	pp := s.engine.Group("/pp-api", s.authenticate())

	// -------- Organizations --------
	pp.GET("/organizations/", s.ListOrganizations)
	pp.POST("/organizations/", s.requireAuth(), s.CreateOrganization)
	pp.GET("/organizations/:uuid/", s.GetOrganization)
	pp.PATCH("/organizations/:uuid/", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionUpdate), s.UpdateOrganization)
	pp.DELETE("/organizations/:uuid/", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionDelete), s.DeleteOrganization)
	pp.GET("/organizations/:uuid/changelogs/", s.authorizeOrgAction(authorization.ObjectChangeLog, authorization.ActionRead), s.ListChangeLogs)

	// -------- Memberships --------
	pp.GET("/organizations/:uuid/memberships/", s.ListMemberships)
	pp.POST("/organizations/:uuid/memberships/", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionCreate), s.AddMembership)
	pp.GET("/organizations/:uuid/memberships/:member_org/", s.GetMembership)
	pp.PATCH("/organizations/:uuid/memberships/:member_org/", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionUpdate), s.UpdateMembership)
	pp.DELETE("/organizations/:uuid/memberships/:member_org/", s.requireAuth(), s.RemoveMembership)

	// -------- Charges --------
	pp.GET("/organizations/:uuid/charges/", s.authorizeOrgAction(authorization.ObjectCharge, authorization.ActionRead), s.ListCharges)
	pp.GET("/charges/:charge_id/receipt.pdf", s.requireAuth(), s.ChargeReceipt)

	// -------- Catalog --------
	pp.GET("/plans/", s.ListPlans)
	pp.POST("/plans/", s.requireStaff(), s.CreatePlan)
	pp.GET("/plans/:id/", s.GetPlan)
	pp.GET("/entitlements/", s.ListEntitlements)
	pp.POST("/entitlements/", s.requireStaff(), s.CreateEntitlement)
	pp.GET("/entitlements/:id/", s.GetEntitlement)
}

// registerAPIRoutes mounts the client API used by staff tooling and
// trusted services.
func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.authenticate(), s.requireAuth())

	api.GET("/organizations/:uuid/", s.requireStaff(), s.GetOrganization)
	api.POST("/charges/", s.CreateCharge)
	api.GET("/charges/:charge_id/", s.GetCharge)

	api.GET("/users/:uuid/", s.requireStaff(), s.GetUser)
	api.DELETE("/users/:uuid/", s.requireStaff(), s.DeleteUser)

	// -------- Organization types --------
	types := api.Group("", s.requireStaff())
	{
		types.GET("/organization-types/", s.ListOrganizationTypes)
		types.POST("/organization-types/", s.CreateOrganizationType)
		types.GET("/organization-types/:id/", s.GetOrganizationType)
		types.DELETE("/organization-types/:id/", s.DeleteOrganizationType)
		types.GET("/organization-subtypes/", s.ListOrganizationSubtypes)
		types.POST("/organization-subtypes/", s.CreateOrganizationSubtype)
		types.DELETE("/organization-subtypes/:id/", s.DeleteOrganizationSubtype)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}
