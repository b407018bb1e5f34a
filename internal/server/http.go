package server

import (
	"context"
	"net/http"
	"time"

	"seedloop-core/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Invoke(Run),
)

// Run binds the router to an http.Server tied to the fx lifecycle. Shutdown
// drains in-flight requests within the stop context.
func Run(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine) {
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  orDefault(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(cfg.Server.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(cfg.Server.IdleTimeout, 60*time.Second),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				zap.L().Info("[HTTP] listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					zap.L().Fatal("[HTTP] server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[HTTP] shutting down")
			return srv.Shutdown(ctx)
		},
	})
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}
