package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/config"
	"github.com/sandeepkv93/otp-account-service/internal/database"
	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/tools/common"
)

type options struct {
	envFile   string
	demoEmail string
	timeout   time.Duration
	ci        bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Database seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.demoEmail, "demo-email", "", "override SEED_DEMO_EMAIL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts), newVerifyEmailCommand(opts))
	return cmd
}

func seedUsers(cfg *config.Config, override string) []database.SeedUser {
	email := cfg.SeedDemoEmail
	if strings.TrimSpace(override) != "" {
		email = override
	}
	return []database.SeedUser{{
		Email:     email,
		Password:  cfg.SeedDemoPassword,
		FirstName: "Demo",
		LastName:  "User",
	}}
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create the verified demo account",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("seed", "apply", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				return apply(db.WithContext(ctx), seedUsers(cfg, opts.demoEmail))
			})
			return nil
		},
	}
}

func apply(db *gorm.DB, users []database.SeedUser) ([]string, error) {
	report, err := database.Seed(db, users)
	if err != nil {
		return nil, err
	}
	if report.Noop {
		return []string{"seed data already present, nothing created"}, nil
	}
	details := []string{fmt.Sprintf("created %d verified user(s)", report.CreatedUsers)}
	for _, u := range users {
		details = append(details, "ensured: "+domain.NormalizeEmail(u.Email))
	}
	return details, nil
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("seed", "dry-run", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				return plan(db.WithContext(ctx), seedUsers(cfg, opts.demoEmail))
			})
			return nil
		},
	}
}

func plan(db *gorm.DB, users []database.SeedUser) ([]string, error) {
	details := make([]string, 0, len(users)+1)
	for _, u := range users {
		email := domain.NormalizeEmail(u.Email)
		var existing domain.User
		err := db.Unscoped().Where("email = ?", email).First(&existing).Error
		switch {
		case err == nil:
			details = append(details, "would skip existing user: "+email)
		case errors.Is(err, gorm.ErrRecordNotFound):
			details = append(details, "would create verified user: "+email)
		default:
			return nil, err
		}
	}
	return append(details, "no mutation executed in dry-run mode"), nil
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Mark an account email as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			common.Execute("seed", "verify-email", opts.ci, opts.timeout, func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, fmt.Errorf("email is required")
				}
				_, db, err := common.LoadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				if err := database.VerifyEmail(db.WithContext(ctx), email); err != nil {
					return nil, err
				}
				return []string{"marked email verified: " + domain.NormalizeEmail(email)}, nil
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email to mark verified")
	return cmd
}
