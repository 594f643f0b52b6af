package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"auditgov/internal/platform/config"
	"auditgov/internal/platform/httpserver"
	"auditgov/internal/platform/logger"
	"auditgov/internal/platform/migrations"
	id "auditgov/pkg/domain"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Observation governance engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the app and runs fn until SIGINT or
// SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, delivery worker, scheduled scans and outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				w, err := a.worker()
				if err != nil {
					return err
				}
				sc, err := a.scanner()
				if err != nil {
					return err
				}
				srv := httpserver.New(a.cfg.Server.Addr, a.router(), a.logger)

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.logger.InfoContext(ctx, "http server listening", "addr", a.cfg.Server.Addr)
					if err := httpserver.Serve(ctx, srv, shutdownTimeout); err != nil {
						return fmt.Errorf("http server: %w", err)
					}
					return nil
				})
				g.Go(func() error { return w.Run(ctx) })
				g.Go(func() error { return sc.Run(ctx) })
				if relay := a.relay(); relay != nil {
					g.Go(func() error { return relay.Run(ctx) })
				}
				return g.Wait()
			})
		},
	}
}

func dispatchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the notification delivery worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				w, err := a.worker()
				if err != nil {
					return err
				}
				if !once {
					return w.Run(ctx)
				}
				res, err := w.ProcessOnce(ctx)
				a.logger.InfoContext(ctx, "dispatch pass complete",
					"claimed", res.Claimed,
					"sent", res.Sent,
					"retried", res.Retried,
					"failed", res.Failed,
					"reclaimed", res.Reclaimed,
				)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process one batch and exit")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one pass of the deadline, overdue and weekly digest scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sc, err := a.scanner()
				if err != nil {
					return err
				}
				res, err := sc.Scan(ctx, time.Now())
				a.logger.InfoContext(ctx, "scan complete",
					"reminders", res.Reminders,
					"escalations", res.Escalations,
					"digests", res.Digests,
					"duplicates", res.Duplicates,
				)
				return err
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.db == nil {
					return errors.New("DATABASE_URL is required to migrate")
				}
				if err := migrations.Apply(ctx, a.db); err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "migrations applied")
				return nil
			})
		},
	}
}

// tokenCmd mints a development bearer token.
func tokenCmd() *cobra.Command {
	var (
		tenant string
		actor  string
		roles  []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development actor token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return errors.New("token issuing is disabled in production")
			}
			parsedRoles, err := id.ParseRoles(roles)
			if err != nil {
				return err
			}
			tenantID, err := parseOrNew(tenant, id.ParseTenantID)
			if err != nil {
				return err
			}
			actorID, err := parseOrNew(actor, id.ParseActorID)
			if err != nil {
				return err
			}
			a := id.Actor{ID: actorID, TenantID: tenantID, SessionID: id.SessionID(uuid.New()), Roles: parsedRoles}

			token, err := newTokenService(cfg).GenerateActorToken(a, ttl)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"token":     token,
				"tenant_id": tenantID.String(),
				"actor_id":  actorID.String(),
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (random when empty)")
	cmd.Flags().StringVar(&actor, "actor", "", "Actor id (random when empty)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{string(id.RoleAuditor)}, "Role tags")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	return cmd
}

func parseOrNew[T ~[16]byte](raw string, parse func(string) (T, error)) (T, error) {
	if raw == "" {
		return T(uuid.New()), nil
	}
	return parse(raw)
}
