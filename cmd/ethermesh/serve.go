package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/ethermesh"
)

var (
	serveEcho  []string
	serveGroup string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a service until it receives a shutdown signal",
	Long: `Run a long-lived service on the configured transport.

The service answers the built-in instance subject. Each --echo subject gets
a controller that replies with the request payload, which is handy for
checking connectivity between hosts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if conf.Version == "" {
			conf.Version = Version
		}
		logger := newLogger()

		exit := &ethermesh.ExitHandler{
			Logger: logger,
			Exit:   func(int) { cancel() },
		}
		svc, err := newServeService(conf, logger, exit)
		if err != nil {
			return err
		}
		exit.Cleanup = func() { _ = svc.Close() }
		exit.Install(ctx)

		if _, err := svc.Connect(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", svc.Conf.PubSubSystem, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s\n", svc.Name(), svc.Conf.PubSubSystem)

		<-ctx.Done()
		exit.Stop("shutdown")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveEcho, "echo", nil, "Subject to answer with the request payload (repeatable)")
	serveCmd.Flags().StringVar(&serveGroup, "group", "", "Queue group for the echo controllers")
	rootCmd.AddCommand(serveCmd)
}

func newServeService(conf *ethermesh.Config, logger ethermesh.ServiceLogger, exit *ethermesh.ExitHandler) (*ethermesh.Service, error) {
	svc, err := ethermesh.NewService(conf, logger, ethermesh.ServiceDependencies{Exit: exit})
	if err != nil {
		return nil, err
	}

	echo := ethermesh.HandlerFunc(func(_ context.Context, _ *ethermesh.Ether, data json.RawMessage, _ string) (any, error) {
		return data, nil
	})
	handlers := make(map[string]ethermesh.Handler, len(serveEcho))
	for _, subject := range serveEcho {
		handlers[subject] = echo
	}
	for _, spec := range ethermesh.ControllersFromMap(handlers, nil, serveGroup) {
		if _, err := svc.Use(spec); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}
