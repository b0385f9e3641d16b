package purge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/config"
	"github.com/sandeepkv93/otp-account-service/internal/repository"
	"github.com/sandeepkv93/otp-account-service/internal/service"
	"github.com/sandeepkv93/otp-account-service/internal/tools/common"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "purge", Short: "Soft-deleted account purge tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts), newPlanCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Purge accounts whose grace period has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("purge", "run", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)

				var lock service.PurgeLock
				if cfg.RedisEnabled {
					client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
					defer func() { _ = client.Close() }()
					lock = service.NewRedisPurgeLock(client, cfg.RedisKeyPrefix+":purge")
				}
				return runPurge(ctx, cfg, db, lock, toolLogger())
			})
			return nil
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "List accounts the next sweep would remove",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("purge", "plan", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				return planPurge(ctx, cfg, db, toolLogger())
			})
			return nil
		},
	}
}

func toolLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func lifecycleFor(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *service.AccountLifecycleService {
	return service.NewAccountLifecycleService(repository.NewUserRepository(db), cfg.Grace(), cfg.PurgeBatchSize, logger)
}

func runPurge(ctx context.Context, cfg *config.Config, db *gorm.DB, lock service.PurgeLock, logger *slog.Logger) ([]string, error) {
	tokens := service.NewTokenService(repository.NewAccessTokenRepository(db), cfg.TokenPepper, logger)
	scheduler := service.NewPurgeScheduler(lifecycleFor(cfg, db, logger), tokens, lock, cfg.PurgeCron, cfg.PurgeRunTimeout, logger)
	report, err := scheduler.RunOnce(ctx, "manual")
	details := []string{
		"cutoff: " + report.Cutoff.UTC().Format(time.RFC3339),
		fmt.Sprintf("candidates: %d", report.Candidates),
		fmt.Sprintf("purged: %d", report.Purged),
		fmt.Sprintf("skipped (restored meanwhile): %d", report.Skipped),
		fmt.Sprintf("failed: %d", report.Failed),
	}
	return details, err
}

func planPurge(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger) ([]string, error) {
	cutoff, users, err := lifecycleFor(cfg, db, logger).PlanPurge(ctx)
	if err != nil {
		return nil, err
	}
	details := []string{"cutoff: " + cutoff.UTC().Format(time.RFC3339)}
	for _, u := range users {
		details = append(details, fmt.Sprintf("would purge %s (deleted %s)", u.Email, u.DeletedAt.Time.UTC().Format(time.RFC3339)))
	}
	if len(users) == 0 {
		details = append(details, "nothing to purge")
	}
	return append(details, "no mutation executed in plan mode"), nil
}
