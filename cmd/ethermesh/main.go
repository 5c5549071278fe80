package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/ethermesh"
)

var (
	configPath  string
	serviceName string
	pubSub      string
	natsURL     string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "ethermesh",
	Short: "Talk to ethermesh services from the command line.",
	Long: `ethermesh connects to the configured transport as a short-lived service
and sends tell, ask or sink requests, or runs a service that answers the
built-in instance subject.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVarP(&serviceName, "name", "n", "", "Service name (defaults to the config value or \"ethermesh-cli\")")
	flags.StringVarP(&pubSub, "transport", "t", "", "Transport: channel, nats, nats-watermill, kafka, rabbitmq, aws")
	flags.StringVar(&natsURL, "nats-url", "", "NATS server URL")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*ethermesh.Config, error) {
	conf := &ethermesh.Config{}
	if configPath != "" {
		loaded, err := ethermesh.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}
	if serviceName != "" {
		conf.ServiceName = serviceName
	}
	if conf.ServiceName == "" {
		conf.ServiceName = "ethermesh-cli"
	}
	if pubSub != "" {
		conf.PubSubSystem = pubSub
	}
	if natsURL != "" {
		conf.NATSURL = natsURL
	}
	return conf, nil
}

func newLogger() ethermesh.ServiceLogger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		level = slog.LevelWarn
	}
	return ethermesh.NewSlogServiceLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
