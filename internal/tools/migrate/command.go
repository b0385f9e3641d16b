package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/database"
	"github.com/sandeepkv93/otp-account-service/internal/tools/common"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("migrate", "up", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)

				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				return []string{"schema migration applied", "driver: " + cfg.DatabaseDriver, "service: " + cfg.OTELServiceName}, nil
			})
			return nil
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("migrate", "status", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				_, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				return tableStatus(ctx, db)
			})
			return nil
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show migration plan (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("migrate", "plan", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				_, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				details, err := tableStatus(ctx, db)
				if err != nil {
					return nil, err
				}
				details = append(details, "would apply AutoMigrate for: "+strings.Join(tableNames(db), ", "), "no mutation executed in plan mode")
				return details, nil
			})
			return nil
		},
	}
}

func tableStatus(ctx context.Context, db *gorm.DB) ([]string, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	migrator := db.WithContext(ctx).Migrator()
	details := []string{"database reachable"}
	for _, model := range database.Models() {
		state := "missing"
		if migrator.HasTable(model) {
			state = "present"
		}
		details = append(details, fmt.Sprintf("table %s: %s", tableName(db, model), state))
	}
	return details, nil
}

func tableNames(db *gorm.DB) []string {
	models := database.Models()
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, tableName(db, m))
	}
	return out
}

func tableName(db *gorm.DB, model any) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return fmt.Sprintf("%T", model)
	}
	return stmt.Schema.Table
}
