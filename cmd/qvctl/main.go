package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Parry-QV/sdk/go/parryqv"
)

const (
	programName   = "qvctl"
	defaultServer = "http://localhost:8080"
)

var globalFlags = struct {
	server  string
	apiKey  string
	timeout time.Duration
}{}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Command line client for the Parry-QV gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("PARRYQV_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().
		StringVarP(&globalFlags.server, "server", "s", server, "gateway base URL (env PARRYQV_SERVER)")
	root.PersistentFlags().
		StringVar(&globalFlags.apiKey, "api-key", os.Getenv("PARRYQV_API_KEY"), "API key for mutation routes (env PARRYQV_API_KEY)")
	root.PersistentFlags().
		DurationVar(&globalFlags.timeout, "timeout", parryqv.DefaultHTTPTimeout, "per-request timeout")

	root.AddCommand(projectsCommand())
	root.AddCommand(pollsCommand())
	root.AddCommand(memberCommand())
	root.AddCommand(passportCommand())
	root.AddCommand(quoteCommand())
	root.AddCommand(sessionCommand())
	root.AddCommand(connectCommand())
	root.AddCommand(switchAccountCommand())
	root.AddCommand(disconnectCommand())
	root.AddCommand(createProjectCommand())
	root.AddCommand(createPollCommand())
	root.AddCommand(joinCommand())
	root.AddCommand(voteCommand())
	root.AddCommand(actionsCommand())
	root.AddCommand(uploadCommand())
	root.AddCommand(explorerCommand())
	return root
}

func newClient() (*parryqv.Client, error) {
	client, err := parryqv.NewClient(globalFlags.server, nil)
	if err != nil {
		return nil, err
	}
	client.SetAPIKey(globalFlags.apiKey)
	return client, nil
}

// withClient builds a RunE that hands the SDK client and a bounded context
// to fn.
func withClient(fn func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, cmd, client, args)
	}
}

func requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if globalFlags.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, globalFlags.timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func describeError(err error) string {
	if apiErr, ok := err.(*parryqv.APIError); ok && apiErr.Code != "" {
		return fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return err.Error()
}
