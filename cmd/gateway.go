package cmd

import (
	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/bootstrap"
)

// gatewayCmd represents the gateway command
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the tick distribution and order execution gateway",
	Long: `Gateway connects to the trading terminal over the bridge websocket and
serves three surfaces at once:

- a websocket endpoint that pushes changed ticks to subscribers
- a REST API for session control, market data and order execution
- the shared session gate that serializes terminal access`,
	Run: bootstrap.StartGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
