// Package orders parses orders command flags and composes the service
// entrypoint.
package orders

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/commerceloop/orderflow/internal/platform/cmd"
	"github.com/commerceloop/orderflow/internal/platform/telemetry"
	server "github.com/commerceloop/orderflow/internal/services/orders/app"
)

// Config holds orders command configuration.
type Config struct {
	HTTPAddr      string `env:"ORDERFLOW_HTTP_ADDR"       envDefault:":8080"`
	DBPath        string `env:"ORDERFLOW_DB_PATH"         envDefault:"orderflow.db"`
	TokenSecret   string `env:"ORDERFLOW_TOKEN_SECRET"`
	UploadBaseURL string `env:"ORDERFLOW_UPLOAD_BASE_URL" envDefault:"https://uploads.local"`
	RedisAddr     string `env:"ORDERFLOW_REDIS_ADDR"`

	SettleDelayMin time.Duration `env:"ORDERFLOW_SETTLE_DELAY_MIN" envDefault:"2s"`
	SettleDelayMax time.Duration `env:"ORDERFLOW_SETTLE_DELAY_MAX" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "orders HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "orders SQLite database path")
	fs.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "tenant access token signing secret")
	fs.StringVar(&cfg.UploadBaseURL, "upload-base-url", cfg.UploadBaseURL, "presigned upload base URL")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the idempotency cache")
	fs.DurationVar(&cfg.SettleDelayMin, "settle-delay-min", cfg.SettleDelayMin, "minimum simulated settlement delay")
	fs.DurationVar(&cfg.SettleDelayMax, "settle-delay-max", cfg.SettleDelayMax, "maximum simulated settlement delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the orders app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	telemetry.InitLogger()
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOrders, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			DBPath:         cfg.DBPath,
			TokenSecret:    cfg.TokenSecret,
			UploadBaseURL:  cfg.UploadBaseURL,
			RedisAddr:      cfg.RedisAddr,
			SettleDelayMin: cfg.SettleDelayMin,
			SettleDelayMax: cfg.SettleDelayMax,
		}); err != nil {
			return fmt.Errorf("serve orders: %w", err)
		}
		return nil
	})
}
