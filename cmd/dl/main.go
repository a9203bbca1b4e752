package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distline/internal/app"
	"distline/internal/config"
	"distline/internal/db"
	"distline/internal/domain"
	"distline/internal/engine/auth"
	"distline/internal/logger"
	"distline/internal/metrics"
	"distline/internal/repo"
	"distline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "distline CLI",
	Long: `distline plans delivery lines for orders and returns.
- Schedule: a distribution line. It is unscheduled until it gets a date and produced once it has a production number.
- Zones: a fixed strip of board slots bound to unscheduled schedules. Dropping an item on a zone assigns it.
- Items: orders and returns. An item belongs to its primary schedule unless a transfer reference sends it elsewhere.
- Produce: assigns the next production number and marks every member item done. A produced schedule is frozen.
- Event log: every change is recorded, view it with 'dl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DISTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "admin", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json or console)")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(directiveCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var writeConfig bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace and register --actor-id as the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if writeConfig {
				path := config.Path(workspace)
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
						return err
					}
					fmt.Println("wrote", path)
				}
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			admin, err := a.Engine.Bootstrap(cmd.Context(), viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(admin)
		},
	}
	cmd.Flags().BoolVar(&writeConfig, "write-config", true, "write a default distline.yml when none exists")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr, basePath     string
		devLogin, legacyID bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := newLogger()
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: log, Metrics: m})
			if err != nil {
				return err
			}
			defer a.Close()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowDevLogin:          devLogin,
				AllowLegacyActorHeader: legacyID,
			}
			if devLogin && authCfg.JWTSecret == "" {
				return fmt.Errorf("DISTLINE_JWT_SECRET is required for dev login")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   log,
				Metrics:  m,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(ctx, a.Engine, log)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			log.Info(log.WithFields(ctx, map[string]any{"addr": addr, "base_path": basePath, "allocator": a.Config.Production.Allocator}), "serving distline API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	cmd.Flags().BoolVar(&legacyID, "allow-actor-header", false, "accept the unauthenticated X-Actor-Id header")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (or DISTLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Show, import or validate the workspace config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(a.Config)
		},
	})

	var importFile string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored config with a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(importFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				if err := a.Engine.ImportConfig(ctx, actor, cfg); err != nil {
					return err
				}
				fmt.Println("config imported")
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&importFile, "file", "", "config file")
	_ = importCmd.MarkFlagRequired("file")
	cfgCmd.AddCommand(importCmd)

	var validateFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without importing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := validateFile
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Println("config valid")
			return nil
		},
	}
	validateCmd.Flags().StringVar(&validateFile, "file", "", "config file (default: workspace distline.yml)")
	cfgCmd.AddCommand(validateCmd)
	return cfgCmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var (
		n                          int
		evtType, entityKind, entID string
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				if err := auth.Require(actor, auth.PermEventsRead); err != nil {
					return err
				}
				events, err := a.Engine.LatestEvents(ctx, repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}

// --- helpers ---

func newLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "distline",
		Level:       logger.ParseLevel(viper.GetString("log-level")),
		Format:      viper.GetString("log-format"),
	})
}

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: newLogger()})
}

// withEngine opens the workspace and resolves --actor-id against the stored
// actors.
func withEngine(ctx context.Context, fn func(context.Context, *app.App, domain.Actor) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	actor, err := auth.Service{Repo: a.Engine.Repo}.Resolve(ctx, viper.GetString("actor-id"))
	if err != nil {
		return fmt.Errorf("%w (run 'dl init' or ask an admin to register you)", err)
	}
	return fn(ctx, a, actor)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
