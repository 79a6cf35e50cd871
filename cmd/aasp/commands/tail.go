package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"go.uber.org/zap"
)

func newTailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Follow the sandbox event feed mirrored to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is not configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdb := redis.NewClient(&redis.Options{
				Addr:     a.cfg.Redis.Addr,
				Password: a.cfg.Redis.Password,
				DB:       a.cfg.Redis.DB,
			})
			defer rdb.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			events.ListenResilient(ctx, rdb, a.logger, a.cfg.Redis.Channel,
				func() { a.logger.Info("tailing events", zap.String("channel", a.cfg.Redis.Channel)) },
				func(evt events.Event) { _ = enc.Encode(evt) },
			)
			return nil
		},
	}
}
