package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/ethermesh"
)

var (
	requestTimeout time.Duration
	sinkMaxTime    time.Duration
	sinkMax        int
	headers        map[string]string
)

var tellCmd = &cobra.Command{
	Use:   "tell <subject> [data]",
	Short: "Publish a request without waiting for a reply",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, ether *ethermesh.Ether) error {
			return ether.Tell(ctx, args[0], payloadArg(args), headerOptions()...)
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <subject> [data]",
	Short: "Send a request and print the single reply",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, ether *ethermesh.Ether) error {
			return runAsk(ctx, ether, cmd.OutOrStdout(), args[0], payloadArg(args))
		})
	},
}

var sinkCmd = &cobra.Command{
	Use:   "sink <subject> [data]",
	Short: "Broadcast a request and print every reply collected in time",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, ether *ethermesh.Ether) error {
			return runSink(ctx, ether, cmd.OutOrStdout(), args[0], payloadArg(args))
		})
	},
}

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "List the running services and their load",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, ether *ethermesh.Ether) error {
			return runSink(ctx, ether, cmd.OutOrStdout(), ethermesh.InstanceSubject, nil)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{tellCmd, askCmd, sinkCmd} {
		cmd.Flags().StringToStringVarP(&headers, "header", "H", nil, "Transport header to send (key=value)")
	}
	askCmd.Flags().DurationVar(&requestTimeout, "timeout", 0, "Reply timeout (defaults to the configured request timeout)")
	for _, cmd := range []*cobra.Command{sinkCmd, instanceCmd} {
		cmd.Flags().DurationVar(&sinkMaxTime, "max-time", time.Second, "How long to collect replies")
		cmd.Flags().IntVar(&sinkMax, "max", 0, "Stop after this many successful replies (0 collects until max-time)")
	}
	rootCmd.AddCommand(tellCmd, askCmd, sinkCmd, instanceCmd)
}

// withClient connects a short-lived service without controllers of its own
// and hands its root Ether to fn.
func withClient(ctx context.Context, fn func(context.Context, *ethermesh.Ether) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	conf.InstanceDisabled = true
	svc, err := ethermesh.NewService(conf, newLogger(), ethermesh.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer svc.Close()

	ether, err := svc.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", svc.Conf.PubSubSystem, err)
	}
	return fn(ctx, ether)
}

func runAsk(ctx context.Context, ether *ethermesh.Ether, w io.Writer, subject string, data any) error {
	opts := headerOptions()
	if requestTimeout > 0 {
		opts = append(opts, ethermesh.WithTimeout(requestTimeout))
	}
	raw, err := ether.Ask(ctx, subject, data, opts...)
	if err != nil {
		return err
	}
	return printJSON(w, raw)
}

type sinkOutput struct {
	Collected []json.RawMessage        `json:"collected"`
	Errors    []*ethermesh.RemoteError `json:"errors"`
}

func runSink(ctx context.Context, ether *ethermesh.Ether, w io.Writer, subject string, data any) error {
	res, err := ether.Sink(ctx, subject, data, sinkMaxTime, sinkMax, headerOptions()...)
	if err != nil {
		return err
	}
	out := sinkOutput{
		Collected: res.Collected,
		Errors:    make([]*ethermesh.RemoteError, 0, len(res.Errors)),
	}
	if out.Collected == nil {
		out.Collected = []json.RawMessage{}
	}
	for _, replyErr := range res.Errors {
		out.Errors = append(out.Errors, ethermesh.NewRemoteError(replyErr))
	}
	return printJSON(w, out)
}

// payloadArg returns the optional data argument. Valid JSON is sent as-is,
// anything else as a JSON string.
func payloadArg(args []string) any {
	if len(args) < 2 {
		return nil
	}
	if json.Valid([]byte(args[1])) {
		return json.RawMessage(args[1])
	}
	return args[1]
}

func headerOptions() []ethermesh.RequestOption {
	opts := make([]ethermesh.RequestOption, 0, len(headers))
	for k, v := range headers {
		opts = append(opts, ethermesh.WithHeader(k, v))
	}
	return opts
}

func printJSON(w io.Writer, v any) error {
	out, err := ethermesh.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
