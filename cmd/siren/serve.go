package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/antoinenguyen27/siren/pkg/agent"
	"github.com/antoinenguyen27/siren/pkg/author"
	"github.com/antoinenguyen27/siren/pkg/browser"
	"github.com/antoinenguyen27/siren/pkg/config"
	"github.com/antoinenguyen27/siren/pkg/db"
	"github.com/antoinenguyen27/siren/pkg/db/migrations"
	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/history"
	"github.com/antoinenguyen27/siren/pkg/llm"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/memory"
	"github.com/antoinenguyen27/siren/pkg/presenter"
	"github.com/antoinenguyen27/siren/pkg/server"
	"github.com/antoinenguyen27/siren/pkg/sites"
	"github.com/antoinenguyen27/siren/pkg/skills"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host string
	Port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the siren API server",
	Long: `Start the HTTP API used by the siren browser extension. Demo mode records
narrated demonstrations as skills; work mode executes spoken tasks against the
active tab using the recorded skills.

The server listens on http://localhost:3000 by default.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		serveConfig := getServeConfigFromFlags(cmd, cfg.Server)
		runServeCommand(ctx, cfg, serveConfig)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "Host to bind the server to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Port to bind the server to (overrides server.port)")
	serveCmd.Flags().String("cdp-url", "", "Connect work mode to a running browser over CDP (overrides browser.cdp_url)")
	serveCmd.Flags().Bool("headless", false, "Launch the work browser headless (overrides browser.headless)")
}

// getServeConfigFromFlags extracts serve configuration from command flags,
// falling back to the loaded configuration.
func getServeConfigFromFlags(cmd *cobra.Command, defaults config.ServerConfig) *ServeConfig {
	sc := &ServeConfig{Host: defaults.Host, Port: defaults.Port}
	if cmd.Flags().Changed("host") {
		sc.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		sc.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cdp-url") {
		cfg.Browser.CDPURL, _ = cmd.Flags().GetString("cdp-url")
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
	}
	return sc
}

// validateServeConfig validates the serve configuration
func validateServeConfig(sc *ServeConfig) error {
	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}
	if sc.Host != "localhost" && sc.Host != "0.0.0.0" {
		if ip := net.ParseIP(sc.Host); ip == nil {
			if strings.Contains(sc.Host, " ") || strings.Contains(sc.Host, ":") {
				return errors.Errorf("invalid host: %s", sc.Host)
			}
		}
	}
	if sc.Port < 1 || sc.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", sc.Port)
	}
	if sc.Port < 1024 {
		logger.G(context.Background()).WithField("port", sc.Port).Warn("using privileged port (< 1024) may require elevated permissions")
	}
	return nil
}

// components are the long-lived pieces behind the server.
type components struct {
	deps    server.Deps
	manager *browser.Manager
	closers []func() error
}

func (c *components) close(ctx context.Context) {
	if c.manager != nil {
		if err := c.manager.Close(ctx); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to close browser")
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to release resource")
		}
	}
}

// buildComponents wires the LLM client, stores and browser from c.
func buildComponents(ctx context.Context, c config.Config) (*components, error) {
	client, err := llm.NewClient(c.LLMClientConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create LLM client (is %s set?)", c.LLM.APIKeyEnv)
	}

	comp := &components{}
	conn, err := db.OpenMigrated(ctx, c.DB.Path, migrations.All())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	comp.closers = append(comp.closers, conn.Close)

	store := skills.NewStore(c.Skills.Dir)
	index := skills.NewIndex(ctx, store)

	comp.manager = browser.NewManager(browser.Options{
		Headless: c.Browser.Headless,
		CDPURL:   c.Browser.CDPURL,
		Timeout:  time.Duration(c.Browser.TimeoutMs) * time.Millisecond,
	}, browser.NewLLMResolver(client))

	comp.deps = server.Deps{
		Browser:     server.FromManager(comp.manager),
		Agent:       agent.New(client, c.Agent.MaxTurns),
		Transcriber: client,
		Author:      author.New(author.SynthesizerFunc(client.Complete), store),
		Skills:      store,
		Index:       index,
		Captures:    domcapture.NewManager(),
		Memory:      memory.New(),
		History:     history.NewStore(conn),
		Sites:       sites.NewFilter(c.Sites.AllowlistFile),
	}
	return comp, nil
}

// runServeCommand starts the API server
func runServeCommand(ctx context.Context, c config.Config, sc *ServeConfig) {
	if err := validateServeConfig(sc); err != nil {
		presenter.Error(err, "invalid server configuration")
		os.Exit(1)
	}

	logger.G(ctx).WithFields(map[string]any{
		"host":      sc.Host,
		"port":      sc.Port,
		"skills":    c.Skills.Dir,
		"model":     c.LLM.Model,
		"cdp":       c.Browser.CDPURL != "",
		"allowlist": c.Sites.AllowlistFile,
	}).Info("starting siren server")

	comp, err := buildComponents(ctx, c)
	if err != nil {
		presenter.Error(err, "failed to initialise server components")
		os.Exit(1)
	}
	defer comp.close(context.WithoutCancel(ctx))

	srv, err := server.NewServer(ctx, &server.Config{
		Host:           sc.Host,
		Port:           sc.Port,
		RequestTimeout: c.Server.RequestTimeout,
	}, comp.deps)
	if err != nil {
		presenter.Error(err, "failed to create server")
		os.Exit(1)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			logger.G(ctx).WithError(closeErr).Error("failed to close server")
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// warm the work browser so the first task does not pay for the launch
	go func() {
		if _, err := comp.manager.Start(ctx); err != nil {
			logger.G(ctx).WithError(err).Warn("browser initialisation failed; it will be retried on the first task")
			return
		}
		logger.G(ctx).WithField("mode", comp.manager.Status().Mode).Info("browser initialised")
	}()

	presenter.Success(fmt.Sprintf("siren listening on http://%s:%d", sc.Host, sc.Port))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := srv.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("server error")
		presenter.Error(err, "server failed")
		os.Exit(1)
	}
	presenter.Info("Server stopped")
}
