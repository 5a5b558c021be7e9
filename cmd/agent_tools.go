package cmd

import (
	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/bootstrap"
)

// agentToolsCmd represents the agent-tools command
var agentToolsCmd = &cobra.Command{
	Use:   "agent-tools",
	Short: "Serve gateway operations as JSON-RPC tools over stdio",
	Long: `Agent-tools speaks line-delimited JSON-RPC 2.0 on stdin/stdout so agent
runtimes can call market data, analysis and order operations as tools. It
announces its capabilities on startup and logs to stderr.`,
	Run: bootstrap.StartAgentTools,
}

func init() {
	rootCmd.AddCommand(agentToolsCmd)
}
