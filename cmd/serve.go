package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/vapormail/internal/config"
	"github.com/teemow/vapormail/internal/githubauth"
	"github.com/teemow/vapormail/internal/instrumentation"
	"github.com/teemow/vapormail/internal/logging"
	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/server"
	"github.com/teemow/vapormail/internal/session"
	"github.com/teemow/vapormail/web"
)

// serveOptions collects the serve command configuration after flags and
// environment fallbacks have been merged.
type serveOptions struct {
	Addr               string
	BaseURL            string
	MailTMURL          string
	GitHubClientID     string
	GitHubClientSecret string
	SecureCookies      bool
	LogLevel           string
	LogFormat          string
	MetricsEnabled     bool
	MetricsAddr        string
}

func defaultServeOptions() serveOptions {
	return serveOptions{
		Addr:           ":8080",
		BaseURL:        "http://localhost:8080",
		MailTMURL:      mailtm.DefaultBaseURL,
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsEnabled: true,
		MetricsAddr:    server.DefaultMetricsAddr,
	}
}

func newServeCmd() *cobra.Command {
	opts := defaultServeOptions()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vapormail web server",
		Long: `Run the vapormail web server.

Serves the browser UI and the JSON API backing it, proxying the mail.tm
public API. All mailbox state lives upstream or in browser cookies, so
the server itself is stateless.

Every flag can also be set through a VAPORMAIL_* environment variable;
the flag wins when both are given. A .env file in the working directory
is loaded on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFallbacks(cmd, &opts)
			return runServe(opts)
		},
	}

	bindServeFlags(cmd, &opts)

	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVar(&opts.Addr, "addr", opts.Addr, "Address the web server binds to. Can also use VAPORMAIL_ADDR env var.")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", opts.BaseURL, "Public base URL of the server. Must be HTTPS outside of localhost. Can also use VAPORMAIL_BASE_URL env var.")
	cmd.Flags().StringVar(&opts.MailTMURL, "mailtm-url", opts.MailTMURL, "Base URL of the mail.tm API. Can also use VAPORMAIL_MAILTM_URL env var.")
	cmd.Flags().StringVar(&opts.GitHubClientID, "github-client-id", opts.GitHubClientID, "GitHub OAuth app client ID. Leaving it empty disables GitHub login. Can also use VAPORMAIL_GITHUB_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.GitHubClientSecret, "github-client-secret", opts.GitHubClientSecret, "GitHub OAuth app client secret. Can also use VAPORMAIL_GITHUB_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&opts.SecureCookies, "secure-cookies", opts.SecureCookies, "Set the Secure flag on session cookies. Enabled automatically for HTTPS base URLs. Can also use VAPORMAIL_SECURE_COOKIES env var.")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug, info, warn, or error. Can also use VAPORMAIL_LOG_LEVEL env var.")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Log format: json or text. Can also use VAPORMAIL_LOG_FORMAT env var.")
	cmd.Flags().BoolVar(&opts.MetricsEnabled, "metrics-enabled", opts.MetricsEnabled, "Enable the metrics server on a dedicated port. Can also use VAPORMAIL_METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr, "Metrics server address. Can also use VAPORMAIL_METRICS_ADDR env var.")
}

// loadEnvFallbacks fills options from the environment for every flag
// the user did not set explicitly.
func loadEnvFallbacks(cmd *cobra.Command, opts *serveOptions) {
	if !cmd.Flags().Changed("addr") {
		opts.Addr = config.GetEnvString("ADDR", opts.Addr)
	}
	if !cmd.Flags().Changed("base-url") {
		opts.BaseURL = config.GetEnvString("BASE_URL", opts.BaseURL)
	}
	if !cmd.Flags().Changed("mailtm-url") {
		opts.MailTMURL = config.GetEnvString("MAILTM_URL", opts.MailTMURL)
	}
	if !cmd.Flags().Changed("github-client-id") {
		opts.GitHubClientID = config.GetEnvString("GITHUB_CLIENT_ID", opts.GitHubClientID)
	}
	if !cmd.Flags().Changed("github-client-secret") {
		opts.GitHubClientSecret = config.GetEnvString("GITHUB_CLIENT_SECRET", opts.GitHubClientSecret)
	}
	if !cmd.Flags().Changed("secure-cookies") {
		opts.SecureCookies = config.GetEnvBool("SECURE_COOKIES", opts.SecureCookies)
	}
	if !cmd.Flags().Changed("log-level") {
		opts.LogLevel = config.GetEnvString("LOG_LEVEL", opts.LogLevel)
	}
	if !cmd.Flags().Changed("log-format") {
		opts.LogFormat = config.GetEnvString("LOG_FORMAT", opts.LogFormat)
	}
	if !cmd.Flags().Changed("metrics-enabled") {
		opts.MetricsEnabled = config.GetEnvBool("METRICS_ENABLED", opts.MetricsEnabled)
	}
	if !cmd.Flags().Changed("metrics-addr") {
		opts.MetricsAddr = config.GetEnvString("METRICS_ADDR", opts.MetricsAddr)
	}
}

func runServe(opts serveOptions) error {
	logging.Setup(opts.LogLevel, opts.LogFormat)
	logger := slog.Default()

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// HTTPS base URLs always get secure cookies.
	if strings.HasPrefix(opts.BaseURL, "https://") {
		opts.SecureCookies = true
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	metrics := provider.Metrics()
	sessions := session.NewCookieRepository(opts.SecureCookies)
	mail := mailtm.NewClient(opts.MailTMURL,
		mailtm.WithLogger(logger),
		mailtm.WithMetrics(metrics))

	var github *githubauth.Handler
	if opts.GitHubClientID != "" && opts.GitHubClientSecret != "" {
		github = githubauth.NewHandler(githubauth.Config{
			ClientID:      opts.GitHubClientID,
			ClientSecret:  opts.GitHubClientSecret,
			RedirectURL:   strings.TrimSuffix(opts.BaseURL, "/") + "/auth/callback",
			SecureCookies: opts.SecureCookies,
		}, mail, sessions,
			githubauth.WithLogger(logger),
			githubauth.WithMetrics(metrics))
		logger.Info("github login enabled")
	} else {
		logger.Info("github login disabled, no OAuth credentials configured")
	}

	templates, err := web.Templates()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	staticFS, err := web.Static()
	if err != nil {
		return fmt.Errorf("failed to open static assets: %w", err)
	}

	health := server.NewHealthChecker()

	srv, err := server.New(server.Config{
		Addr:      opts.Addr,
		BaseURL:   opts.BaseURL,
		Sessions:  sessions,
		Mail:      mail,
		GitHub:    github,
		Templates: templates,
		StaticFS:  staticFS,
		Logger:    logger,
		Metrics:   metrics,
		Health:    health,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("vapormail running",
		slog.String("addr", opts.Addr),
		slog.String("base_url", opts.BaseURL),
		slog.String("mailtm_url", opts.MailTMURL))

	select {
	case err := <-serverErr:
		return fmt.Errorf("web server failed: %w", err)
	case <-shutdownCtx.Done():
	}

	logger.Info("shutdown signal received, stopping")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer drainCancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("web server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}
	return nil
}
