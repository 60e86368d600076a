package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oyvinds78/morningdigest/internal/budget"
	"github.com/oyvinds78/morningdigest/internal/collectors"
	"github.com/oyvinds78/morningdigest/internal/config"
	"github.com/oyvinds78/morningdigest/internal/coordinator"
	"github.com/oyvinds78/morningdigest/internal/llm"
	"github.com/oyvinds78/morningdigest/internal/llm/gemini"
	"github.com/oyvinds78/morningdigest/internal/llm/openai"
	"github.com/oyvinds78/morningdigest/internal/notify"
	"github.com/oyvinds78/morningdigest/internal/orchestrator"
	"github.com/oyvinds78/morningdigest/internal/render"
	"github.com/oyvinds78/morningdigest/internal/usage"
)

var (
	configFile string
	verbose    bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "digest",
		Short: "Morning Digest - personal news, calendar and weather briefing",
		Long: `Collects news feeds, tech articles, calendar events, newsletters and
weather, summarizes them with LLM agents under a token budget, and merges
everything into a single morning digest.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	var generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate a digest and print or save it",
		Long:  `Run the full pipeline and write the digest to stdout or a file. Degraded sections are included with their reason; the command still exits 0.`,
		RunE:  runGenerate,
	}
	generateCmd.Flags().IntP("hours", "H", 0, "lookback window in hours (default from config)")
	generateCmd.Flags().StringP("format", "f", "text", "output format: text, html or json")
	generateCmd.Flags().StringP("output", "o", "", "write the digest to a file instead of stdout")

	var sendEmailCmd = &cobra.Command{
		Use:   "send-email",
		Short: "Generate a digest and send it by email",
		RunE:  runSendEmail,
	}
	sendEmailCmd.Flags().IntP("hours", "H", 0, "lookback window in hours (default from config)")
	sendEmailCmd.Flags().StringP("format", "f", "html", "email format: text or html")

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check configuration and source reachability",
		RunE:  runHealth,
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show health, budget usage and the last run",
		RunE:  runStatus,
	}

	var testAgentsCmd = &cobra.Command{
		Use:   "test-agents",
		Short: "Run every agent once and report per-agent results",
		RunE:  runTestAgents,
	}
	testAgentsCmd.Flags().IntP("hours", "H", 0, "lookback window in hours (default from config)")

	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	var configInitCmd = &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
	var configValidateCmd = &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigValidate,
	}
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	rootCmd.AddCommand(generateCmd, sendEmailCmd, healthCmd, statusCmd, testAgentsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	orch   *orchestrator.Orchestrator
	mailer *notify.Mailer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := budget.New(budget.Ceilings{
		Daily:      cfg.Budget.Daily,
		Hourly:     cfg.Budget.Hourly,
		PerRequest: cfg.Budget.PerRequest,
	}, budget.WithStateFile(cfg.BudgetStatePath()))

	coord := coordinator.New(provider, b, logger,
		coordinator.WithRetries(cfg.Run.RetryAttempts),
		coordinator.WithRetryDelay(cfg.Run.RetryDelay),
		coordinator.WithCallTimeout(cfg.Run.AgentTimeout),
	)

	orch := orchestrator.New(newCollectors(cfg, logger), coord, b, usage.NewStore(cfg.StateDir), logger,
		orchestrator.WithRunTimeout(cfg.Run.Timeout),
		orchestrator.WithProfile(cfg.Profile),
	)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		To:       cfg.Email.To,
	}, logger)

	return &app{cfg: cfg, log: logger, orch: orch, mailer: mailer}, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewProvider(openai.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			RateLimit: cfg.LLM.RateLimit,
		})
	case "gemini":
		return gemini.NewProvider(ctx, gemini.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			RateLimit: cfg.LLM.RateLimit,
		})
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func newCollectors(cfg *config.Config, logger zerolog.Logger) []collectors.Collector {
	timeout := 30 * time.Second
	return []collectors.Collector{
		collectors.NewFeedCollector(collectors.SourceNews, cfg.Feeds.News, timeout, logger),
		collectors.NewFeedCollector(collectors.SourceTech, cfg.Feeds.Tech, timeout, logger),
		collectors.NewFeedCollector(collectors.SourceMail, cfg.Feeds.Newsletter, timeout, logger),
		collectors.NewCalendarCollector(cfg.Calendar.ICSURL, timeout, logger),
		collectors.NewWeatherCollector(cfg.Weather.APIKey, cfg.Weather.City, cfg.Weather.Country, timeout, logger),
	}
}

// signalContext cancels on SIGINT/SIGTERM so a long run shuts down cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func window(cmd *cobra.Command, cfg *config.Config) time.Duration {
	hours, _ := cmd.Flags().GetInt("hours")
	if hours <= 0 {
		hours = cfg.Run.WindowHours
	}
	return time.Duration(hours) * time.Hour
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	doc := a.orch.Generate(ctx, window(cmd, a.cfg))
	out, err := render.Render(doc, format)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write digest: %w", err)
		}
		fmt.Printf("Digest written to %s\n", path)
		return nil
	}

	fmt.Print(out)
	return nil
}

func runSendEmail(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	if format == render.FormatJSON {
		return fmt.Errorf("email format must be text or html")
	}

	doc := a.orch.Generate(ctx, window(cmd, a.cfg))
	if err := a.mailer.Send(doc, format); err != nil {
		return err
	}
	fmt.Printf("Digest sent to %s\n", a.cfg.Email.To)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	checkCtx, checkCancel := context.WithTimeout(ctx, 15*time.Second)
	defer checkCancel()

	fmt.Println("Source health:")
	for _, check := range a.orch.Health(checkCtx) {
		if check.OK {
			fmt.Printf("  %-10s ok\n", check.Name)
		} else {
			fmt.Printf("  %-10s FAIL: %s\n", check.Name, check.Err)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	checkCtx, checkCancel := context.WithTimeout(ctx, 15*time.Second)
	defer checkCancel()
	st := a.orch.Status(checkCtx)

	fmt.Println("Source health:")
	for _, check := range st.Checks {
		if check.OK {
			fmt.Printf("  %-10s ok\n", check.Name)
		} else {
			fmt.Printf("  %-10s FAIL: %s\n", check.Name, check.Err)
		}
	}

	fmt.Println("\nToken budget:")
	fmt.Printf("  daily:  %d / %d\n", st.Budget.DailyUsed, st.Budget.DailyLimit)
	fmt.Printf("  hourly: %d / %d\n", st.Budget.HourlyUsed, st.Budget.HourlyLimit)

	if st.LastRun != nil {
		fmt.Println("\nLast run:")
		fmt.Printf("  run id:   %s\n", st.LastRun.RunID)
		fmt.Printf("  finished: %s\n", st.LastRun.FinishedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  tokens:   %d\n", st.LastRun.TokensUsed)
		for name, status := range st.LastRun.Sources {
			fmt.Printf("  source %-10s %s\n", name, status)
		}
	} else {
		fmt.Println("\nNo runs recorded yet.")
	}
	return nil
}

func runTestAgents(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	results := a.orch.TestAgents(ctx, window(cmd, a.cfg))

	fmt.Println("Agent results:")
	for _, res := range results {
		fmt.Printf("  %-12s %-8s attempts=%d tokens=%d", res.Role, res.State, res.Attempts, res.Usage.TotalTokens)
		if res.Reason != "" {
			fmt.Printf(" (%s)", res.Reason)
		}
		fmt.Println()
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	filename := config.DefaultFile
	if len(args) > 0 {
		filename = args[0]
	}

	cfg := config.DefaultConfig()
	if err := cfg.SaveToFile(filename); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Printf("Default configuration saved to: %s\n", filename)
	fmt.Println("Edit this file to add your feeds, API keys and email settings.")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	filename := config.DefaultFile
	if len(args) > 0 {
		filename = args[0]
	}

	cfg, err := config.Load(filename)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Configuration file '%s' is valid!\n", filename)
	if verbose {
		fmt.Println("\nConfiguration details:")
		fmt.Println(cfg.String())
	}
	return nil
}
