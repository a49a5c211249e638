package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/record_gateway/internal/auth"
	"github.com/triage-ai/palisade/services/record_gateway/internal/server"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tool definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := server.ToolDefinitions()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tools)
		},
	}
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an HTTP API key and its bcrypt hash",
		Long: `Generate an HTTP API key. Give the key to the client; put the hash in
RECORD_GATEWAY_HTTP_KEY_HASHES or the api_keys table (key_prefix, key_hash).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\n", key)
			fmt.Fprintf(out, "prefix: %s\n", auth.KeyID(key))
			fmt.Fprintf(out, "hash:   %s\n", hash)
			return nil
		},
	}
}
