package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alx/artbot-for-stable-diffusion/internal/config"
	"github.com/alx/artbot-for-stable-diffusion/internal/horde"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logLevel and logFormat configure logrus for every command
var logLevel string
var logFormat string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured HTTP transport (base or
// logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "artbot",
	Short: "A client for generating images on the AI Horde",
	Long: `ArtBot submits image generation requests to the AI Horde, a
crowd-sourced compute backend, and tracks their completion locally.
Create jobs, poll them until they finish, and search your history.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*horde.LoggingTransport); ok && loggingTransport != nil {
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to artbot-api.log (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")

	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags.
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadGlobalConfig loads the configuration, applies flag overrides and
// sets up the shared HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal: commands fall back to defaults and fail later if
		// they need a value that was never provided.
		log.WithError(err).Warnf("Failed to load configuration from %s, using defaults", cfgFile)
		globalConfig = config.Default()
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
	}
	if cmd.Flags().Changed("api-timeout") && apiTimeoutFlag > 0 {
		globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
	}

	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		loggingTransport, err := horde.NewLoggingTransport(http.DefaultTransport, "artbot-api.log")
		if err != nil {
			log.WithError(err).Warn("Failed to set up API logging transport, continuing without it")
		} else {
			globalHttpTransport = loggingTransport
			log.Debug("API request logging enabled (artbot-api.log)")
		}
	}

	return nil
}

// newHordeClient builds an API client from the global config and
// transport.
func newHordeClient() *horde.Client {
	httpClient := &http.Client{Transport: globalHttpTransport}
	if globalConfig.ApiClientTimeoutSec > 0 {
		httpClient.Timeout = time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second
	}
	return horde.NewClient(globalConfig, httpClient)
}
