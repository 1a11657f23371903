package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ipad-status-backend/config"
	"ipad-status-backend/internal/catalog"
)

var rootCmd = &cobra.Command{
	Use:   "ipadstatusd",
	Short: "Library iPad holding status service",
	Long:  `ipadstatusd 抓取图书馆目录中 iPad 等设备的馆藏状态，提供 JSON 接口、后台轮询与到架推送。`,
	// serve is the default command.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rootConfigPath string

// errDataReadFailure makes the process exit non-zero without another log line.
var errDataReadFailure = errors.New(catalog.MessageFailure)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "配置文件路径，覆盖 CONFIG_PATH")
	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
	)
	_ = config.EnsureEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errDataReadFailure) {
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("ipadstatusd command failed")
	}
}

// loadConfig resolves and loads the configuration, then applies its log settings.
func loadConfig() (*config.Config, error) {
	path, explicit := config.ResolvePath(rootConfigPath)
	cfg, err := config.LoadFrom(path, explicit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load configuration from %s", path)
	}
	setupLogger(cfg.Log)
	log.Info().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func newAggregator(cfg *config.Config) *catalog.Aggregator {
	fetcher := catalog.NewHTTPFetcher(catalog.FetcherOptions{
		URLTemplate: cfg.Catalog.URLTemplate,
		HTTPProxy:   cfg.Catalog.HTTPProxy,
		UserAgent:   cfg.Catalog.UserAgent,
		Timeout:     cfg.Catalog.Timeout,
	})
	return catalog.NewAggregator(fetcher, catalog.NewParser(), cfg.Catalog.Concurrency)
}
