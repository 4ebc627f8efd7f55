// Command pos-api serves the point-of-sale HTTP API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	pos "github.com/xenking/boutique-pos/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := pos.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Config loaded",
			zap.String("tax_rate", cfg.Sales.TaxRate),
			zap.Bool("redis", cfg.RedisURL != ""),
			zap.Duration("register_idle_timeout", cfg.Register.IdleTimeout),
		)
		return pos.Run(ctx, lg, m, cfg)
	})
}
