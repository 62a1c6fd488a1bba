package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legalconnect/scheduler/internal/handler/health"
	scheduleh "github.com/legalconnect/scheduler/internal/handler/schedule"
	"github.com/legalconnect/scheduler/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine    *gin.Engine
	scheduleH *scheduleh.Handler
	healthH   *health.Handler
}

type Config struct {
	CORSConfig middleware.CORSConfig
}

func NewRouter(scheduleH *scheduleh.Handler, healthH *health.Handler, cfg Config) *Router {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSConfig),
	)

	r := &Router{
		engine:    engine,
		scheduleH: scheduleH,
		healthH:   healthH,
	}
	r.register()
	return r
}

func (r *Router) register() {
	r.engine.GET("/health", r.healthH.HealthCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	r.scheduleH.RegisterRoutes(api.Group("/schedule"))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
