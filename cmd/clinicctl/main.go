package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jwalitptl/clinic-api/config"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/sqlstore"
	authService "github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/internal/service/slot"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operate the campus clinic appointment service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing config.yml")

	load := func() (*config.Config, error) {
		if configDir != "" {
			return config.LoadConfig(configDir)
		}
		return config.LoadConfig()
	}

	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(checkCmd(load))
	rootCmd.AddCommand(userCmd(load))
	rootCmd.AddCommand(eventsCmd(load))
	return rootCmd
}

type configLoader func() (*config.Config, error)

// withDB opens the configured store for the duration of fn.
func withDB(cmd *cobra.Command, load configLoader, fn func(ctx context.Context, cfg *config.Config, db *sqlx.DB) error) (err error) {
	cfg, err := load()
	if err != nil {
		return err
	}
	logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: true, Output: cmd.ErrOrStderr()})

	db, err := sqlstore.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg, db)
}

func migrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, load, func(ctx context.Context, _ *config.Config, db *sqlx.DB) error {
				version, err := sqlstore.Migrate(ctx, db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, load, func(ctx context.Context, _ *config.Config, db *sqlx.DB) error {
				return sqlstore.MigrationStatus(ctx, db)
			})
		},
	})

	return cmd
}

func checkCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check <date> [time]",
		Short: "Validate a date and time against the clinic rules and live bookings",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, t := args[0], ""
			if len(args) == 2 {
				t = args[1]
			}

			return withDB(cmd, load, func(ctx context.Context, cfg *config.Config, db *sqlx.DB) error {
				slotCfg, err := cfg.Clinic.ToSlotConfig()
				if err != nil {
					return err
				}
				repo := sqlstore.NewAppointmentRepository(sqlstore.NewBaseRepository(db))
				validator := slot.NewValidator(slotCfg, repo, slot.WithLookupTimeout(cfg.Clinic.LookupTimeout))

				avail, err := validator.Check(ctx, date, t)
				if err != nil {
					return err
				}
				ignored := ""
				if t == "" {
					// no time given, so the hours rule does not apply
					ignored = slotCfg.HoursMessage()
				}
				printCheck(cmd.OutOrStdout(), avail, ignored)
				return nil
			})
		},
	}
}

// printCheck writes a human-readable report. Errors equal to ignored are left out.
func printCheck(w io.Writer, avail model.SlotAvailability, ignored string) {
	fmt.Fprintf(w, "date:      %s\n", avail.Date)
	fmt.Fprintf(w, "open day:  %t\n", avail.IsWeekday)
	if ignored == "" {
		fmt.Fprintf(w, "in hours:  %t\n", avail.IsWithinOperatingHours)
	}
	fmt.Fprintf(w, "booked:    %d/%d (%d remaining)\n", avail.BookedCount, avail.Capacity, avail.Remaining)
	if avail.IsFullyBooked {
		fmt.Fprintln(w, "status:    fully booked")
	}

	errs := make([]string, 0, len(avail.Errors))
	for _, e := range avail.Errors {
		if e != ignored {
			errs = append(errs, e)
		}
	}
	if len(errs) == 0 {
		fmt.Fprintln(w, "errors:    none")
		return
	}
	fmt.Fprintln(w, "errors:")
	for _, e := range errs {
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

func userCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts",
	}

	var email, name, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a portal account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, load, func(ctx context.Context, cfg *config.Config, db *sqlx.DB) error {
				jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
				svc := authService.NewService(sqlstore.NewUserRepository(sqlstore.NewBaseRepository(db)), jwtSvc, logger.Nop())

				user, err := svc.CreateUser(ctx, email, name, password, role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", model.RoleStudent, "admin, staff, faculty or student")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func eventsCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published appointment events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print appointment events from the broker until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: true, Output: cmd.ErrOrStderr()})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog())
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, broker.Close()) }()

			msgs, err := broker.Subscribe(ctx, cfg.Redis.Channel)
			if err != nil {
				return err
			}
			log.Info("listening for events", "channel", cfg.Redis.Channel)
			return printEvents(ctx, cmd.OutOrStdout(), msgs)
		},
	})

	return cmd
}

// printEvents writes one line per message until ctx ends or msgs closes.
func printEvents(ctx context.Context, w io.Writer, msgs <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			var msg messaging.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				fmt.Fprintf(w, "unparseable message: %s\n", raw)
				continue
			}
			fmt.Fprintf(w, "%s %s %s\n", msg.ID, msg.Type, msg.Payload)
		}
	}
}
