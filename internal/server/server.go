package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/referral-tree-backend/internal/handler"
	appmw "github.com/shinyyama/referral-tree-backend/internal/middleware"
	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/service"
	"gorm.io/gorm"
)

type Options struct {
	AllowedOrigins []string
	Service        service.Options
	// Auth guards the mutating admin routes; nil leaves them open.
	Auth  *appmw.AuthMiddleware
	SHA   string
	Build string
}

type Server struct {
	e     *echo.Echo
	store repository.Store
}

// New wires the routes over db. db may be nil and supplied later via SetDB;
// until then /healthz reports 503 and the API answers 500.
func New(db *gorm.DB, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(appmw.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", echo.HeaderXRequestID},
	}))

	store := repository.NewStore(db)
	svc := service.NewReferralService(store, opts.Service)
	referralHandler := handler.NewReferralHandler(svc)
	healthHandler := handler.NewHealthHandler(svc, opts.SHA, opts.Build)

	var guard []echo.MiddlewareFunc
	if opts.Auth != nil {
		guard = append(guard, opts.Auth.RequireAuth)
	}

	e.GET("/healthz", healthHandler.Get)

	api := e.Group("/api")
	api.GET("/users", referralHandler.List)
	api.POST("/users", referralHandler.Register)
	api.PUT("/users/:id/points", referralHandler.UpdatePoints, guard...)
	api.GET("/users/:id/scoreboard", referralHandler.Scoreboard)
	api.GET("/users/:id/tree", referralHandler.Tree)
	api.GET("/users/:id/referrals", referralHandler.Referrals)
	api.GET("/users/:id/history", referralHandler.History)
	api.GET("/stats", referralHandler.Stats)
	api.POST("/reset", referralHandler.Reset, guard...)

	return &Server{e: e, store: store}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) SetDB(db *gorm.DB) {
	s.store.SetDB(db)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}
