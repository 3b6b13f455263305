package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-filing/internal/http/middleware"
	"github.com/smallbiznis/valora-filing/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, filings *handler.FilingHandler, auth *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", filings.Health)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAPIKey)
	if rateLimiter != nil {
		v1.Use(rateLimiter.Handler())
	}
	{
		v1.GET("/forms", filings.ListForms)

		formGroup := v1.Group("/forms/:form")
		{
			formGroup.GET("/filings", filings.ListFilings)
			formGroup.POST("/submissions", filings.Submit)
		}

		v1.GET("/submissions", filings.ListSubmissions)
		submission := v1.Group("/submissions/:id")
		{
			submission.GET("", filings.GetSubmission)
			submission.PUT("", filings.UpdateSubmission)
			submission.DELETE("", filings.DeleteSubmission)
			submission.POST("/file", filings.FileSubmission)
			submission.GET("/status", filings.Status)
			submission.GET("/record", filings.Record)
			submission.GET("/pdf", filings.PDF)
			submission.POST("/track", filings.StartTracking)
			submission.DELETE("/track", filings.StopTracking)
		}
	}

	return r
}
