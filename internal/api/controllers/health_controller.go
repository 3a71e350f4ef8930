package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/api/response"
	"github.com/curaious/projecthub/internal/services"
)

func RegisterHealthRoutes(r *router.Router, svc *services.Services) {
	r.GET("/api/health", func(ctx *fasthttp.RequestCtx) {
		stdCtx, cancel := context.WithTimeout(requestContext(ctx), 2*time.Second)
		defer cancel()

		status := svc.Ping(stdCtx)
		for _, v := range status {
			if v != "ok" {
				response.NewResponse(stdCtx, "Degraded", status).WithStatus(http.StatusServiceUnavailable).Write(ctx)
				return
			}
		}

		writeOK(ctx, stdCtx, "OK", status)
	})
}
