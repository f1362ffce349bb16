package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memberlens/internal/analyst"
	"memberlens/internal/config"
	"memberlens/internal/embedding"
	"memberlens/internal/llm"
	"memberlens/internal/logging"
	"memberlens/internal/rulebook"
	"memberlens/internal/server"
	"memberlens/internal/warehouse"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// ask flags
	askJSON bool

	// ingest flags
	membershipCSV string
	providerCSV   string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memberlens",
	Short: "memberlens - membership impact analyst",
	Long: `memberlens answers questions about organization membership changes.

It joins warehouse membership metrics with provider configuration change
records, computes analytical signals, retrieves matching rulebook guidance
via vector search, and renders a short grounded analysis through Gemini.
When generation is unavailable it falls back to a deterministic analysis
assembled from the same metrics and signals.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so config env overrides can see it
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyst and warehouse over HTTP",
	Long: `Starts the HTTP API:

  POST /api/v1/ask             run an analyst query
  GET  /api/v1/orgs            list organizations
  GET  /api/v1/orgs/{orgCode}  membership, signals and provider changes
  GET  /healthz                health check`,
	RunE: runServe,
}

// askCmd answers a single question
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single membership question",
	Long: `Runs one query through the analyst pipeline and prints the answer.

Example:
  memberlens ask "Why did S5660_P801 drop in December?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// indexCmd rebuilds the rulebook index
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the rulebook retrieval index",
	Long: `Chunks the rulebook source, embeds every chunk and persists the
index. The serve and ask commands build the index lazily on first
use; run this after editing the rulebook to rebuild it eagerly.`,
	RunE: runIndex,
}

// ingestCmd loads warehouse CSV exports
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load membership and provider change CSV exports",
	Long: `Loads warehouse CSV exports into the local database.

Membership rows replace any existing row for the same organization;
provider change records append.

Example:
  memberlens ingest --membership impact.csv --provider-changes changes.csv`,
	RunE: runIngest,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "memberlens.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full response payload as JSON")

	ingestCmd.Flags().StringVar(&membershipCSV, "membership", "", "membership_impact CSV export")
	ingestCmd.Flags().StringVar(&providerCSV, "provider-changes", "", "provider_config_changes CSV export")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipeline bundles the wired collaborators with their cleanup.
type pipeline struct {
	analyst analyst.Analyst
	store   warehouse.Store
	index   *rulebook.Index
}

func (p *pipeline) close() {
	if p.index != nil {
		_ = p.index.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// buildPipeline wires store, embedding engine, rulebook index,
// completion client and analyst from the loaded config.
func buildPipeline() (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := warehouse.NewSQLiteStore(cfg.Warehouse.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}

	index, err := rulebook.NewIndex(cfg.Rulebook.Path, cfg.Rulebook.IndexPath, engine, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open rulebook index: %w", err)
	}

	client, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	a, err := analyst.New(cfg.Analyst.Variant, store, index, client, analyst.Options{
		Thresholds: &cfg.Analyst.Thresholds,
		TopK:       cfg.Rulebook.TopK,
		Logger:     logger,
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, err
	}

	return &pipeline{analyst: a, store: store, index: index}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	srv := server.New(cfg.Server.Addr, p.analyst, p.store, cfg.Analyst.Thresholds, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return <-errCh
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	question := strings.Join(args, " ")
	resp := p.analyst.Run(context.Background(), question)

	if askJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(resp.Text)
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}

	index, err := rulebook.NewIndex(cfg.Rulebook.Path, cfg.Rulebook.IndexPath, engine, logger)
	if err != nil {
		return fmt.Errorf("failed to open rulebook index: %w", err)
	}
	defer index.Close()

	n, err := index.Rebuild(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d rulebook chunks from %s\n", n, cfg.Rulebook.Path)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	if membershipCSV == "" && providerCSV == "" {
		return errors.New("nothing to ingest: pass --membership and/or --provider-changes")
	}

	store, err := warehouse.NewSQLiteStore(cfg.Warehouse.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if membershipCSV != "" {
		n, err := store.LoadMembershipCSV(ctx, membershipCSV)
		if err != nil {
			return fmt.Errorf("membership ingest failed: %w", err)
		}
		fmt.Printf("Loaded %d membership rows from %s\n", n, membershipCSV)
	}

	if providerCSV != "" {
		n, err := store.LoadProviderChangesCSV(ctx, providerCSV)
		if err != nil {
			return fmt.Errorf("provider change ingest failed: %w", err)
		}
		fmt.Printf("Loaded %d provider change records from %s\n", n, providerCSV)
	}

	return nil
}
