package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/record_gateway/internal/config"
	"github.com/triage-ai/palisade/services/record_gateway/internal/dispatch"
)

// errCommandFailed makes the process exit non-zero after the failure text
// has already been printed.
var errCommandFailed = errors.New("command failed")

func newCallCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "call <command> [json-arguments]",
		Short: "Run one command and print its result",
		Long: `Run one command through the same validation, rate limiting and audit
path as the MCP tools, e.g.

  record-gateway call get_record '{"table":"TENANTS","record_id":"rec123"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			cmdArgs, err := parseArguments(raw)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return runCall(cmd.Context(), cfg, args[0], cmdArgs, cmd.OutOrStdout())
		},
	}
}

func parseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func runCall(ctx context.Context, cfg *config.Config, name string, args map[string]any, out io.Writer) error {
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.dispatcher.Dispatch(dispatch.WithSource(ctx, dispatch.SourceCLI), name, args)
	fmt.Fprintln(out, res.Text)
	if res.Failed {
		return errCommandFailed
	}
	return nil
}
