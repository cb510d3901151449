package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"keywarden/pkg/config"
	"keywarden/pkg/health"
	"keywarden/services/apikey"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
	),
)

type RouterParams struct {
	fx.In

	Config   *config.Config
	Handler  *Handler
	Health   health.HealthService
	Verifier apikey.Verifier
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), Trace(), Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/verify", p.Handler.Verify)
		v1.GET("/whoami", RequireAPIKey(p.Verifier), p.Handler.WhoAmI)

		keys := v1.Group("/api-keys")
		{
			keys.POST("", p.Handler.Create)
			keys.GET("", p.Handler.List)
			keys.POST("/search", p.Handler.Search)
			keys.GET("/:id", p.Handler.Get)
			keys.PATCH("/:id", p.Handler.Update)
			keys.DELETE("/:id", p.Handler.Delete)
			keys.POST("/:id/activate", p.Handler.Activate)
			keys.POST("/:id/deactivate", p.Handler.Deactivate)
		}
	}

	return r
}
