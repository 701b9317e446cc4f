package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akozyrev/hr-intake-bot/internal/candidates"
	"github.com/akozyrev/hr-intake-bot/internal/catalog"
	"github.com/akozyrev/hr-intake-bot/internal/embedding/gemini"
	"github.com/akozyrev/hr-intake-bot/internal/funnel"
	"github.com/akozyrev/hr-intake-bot/internal/logger"
	"github.com/akozyrev/hr-intake-bot/internal/matching"
	"github.com/akozyrev/hr-intake-bot/internal/secrets"
	"github.com/akozyrev/hr-intake-bot/internal/telegram"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the telegram bot",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the main command for the bot.
func run() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), viper.GetString("log-file"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the hr-intake-bot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	token, err := resolveToken(config)
	if err != nil {
		logger.Fatal(
			"loading telegram token",
			zap.Error(err),
			zap.String("hint", "set TELEGRAM_TOKEN_FILE environment variable or the 'token-file' key in the configuration file"),
		)
	}

	machine, sessions, err := buildFunnel(ctx, config, telegram.ContactMethod, logger)
	if err != nil {
		logger.Fatal("building the intake funnel", zap.Error(err))
	}

	bot, err := telegram.New(token, machine, sessions, logger)
	if err != nil {
		logger.Fatal("creating the telegram bot", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		logger.Info("shutting down", zap.String("signal", sig.String()))
		bot.Stop()
	}()

	bot.Start()
}

// buildFunnel wires the catalog, the matching engine and the candidate sink
// into a ready-to-serve state machine.
func buildFunnel(ctx context.Context, config *Config, contactMethod string, logger *zap.Logger) (*funnel.Machine, *funnel.Store, error) {
	cat, err := catalog.Load(config.CatalogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading vacancy catalog: %w", err)
	}

	logger.Info("vacancy catalog loaded",
		zap.Int("count", cat.Len()),
		zap.String("default_country", cat.DefaultCountry),
	)

	matcher, err := buildMatcher(ctx, config.Embedding, cat, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building matching engine: %w", err)
	}

	sink := candidates.NewCSVSink(config.CandidatesFile)
	machine := funnel.NewMachine(matcher, sink, contactMethod, logger)

	return machine, funnel.NewStore(), nil
}

func buildMatcher(ctx context.Context, config *EmbeddingConfig, cat *catalog.Catalog, logger *zap.Logger) (funnel.Matcher, error) {
	var (
		apiKeyFile string
		model      string
		maxRetries int
		timeout    time.Duration
	)

	if config != nil {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
		if config.Gemini != nil {
			apiKeyFile = config.Gemini.APIKeyFile
			model = config.Gemini.Model
			maxRetries = config.Gemini.MaxRetries
		}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: apiKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set embedding.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	client, err := gemini.NewClient(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}

	provider := gemini.NewProvider(client, maxRetries, timeout, logger)

	return matching.New(provider, cat, timeout, logger), nil
}

func resolveToken(config *Config) (string, error) {
	tokenFile := strings.TrimSpace(config.TokenFile)
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("token-file"))
	}

	return secrets.Load(secrets.Source{
		Name: "telegram token",
		File: tokenFile,
		Env:  "TELEGRAM_TOKEN",
	})
}
