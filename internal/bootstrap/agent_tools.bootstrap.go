package bootstrap

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/config"
	"github.com/avelios/terminal-gateway/internal/handler/tools"
	"github.com/avelios/terminal-gateway/internal/infrastructure"
	"github.com/avelios/terminal-gateway/internal/repository"
	"github.com/avelios/terminal-gateway/internal/service/analysis"
	"github.com/avelios/terminal-gateway/internal/service/execution"
	"github.com/avelios/terminal-gateway/internal/service/terminal"
	"github.com/avelios/terminal-gateway/internal/util"
)

// StartAgentTools runs the JSON-RPC tools server on stdio. It talks to the
// same terminal bridge as the gateway but carries no tick distribution and no
// listening ports, so an agent runtime can spawn it per conversation.
func StartAgentTools(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := terminal.NewBridgeDriver(config.Env.Terminal)
	util.ContinueOrFatal(err)
	go bridge.Run(ctx)

	gate := infrastructure.NewSessionGate(bridge, config.Env.Terminal.MaxConcurrentCalls)

	var instrumentStore *repository.InstrumentStore
	if redisConfig, ok := config.Env.Redis["gateway"]; ok && redisConfig.CacheDSN != "" {
		redisClient, err := infrastructure.NewRedisClient(ctx, redisConfig)
		util.ContinueOrFatal(err)
		defer func() { _ = redisClient.Close() }()

		instrumentStore = repository.NewInstrumentStore(redisClient, redisConfig.CacheTTL)
	}

	instruments := repository.NewCachedInstrumentSource(instrumentStore, gate)
	coordinator := execution.NewCoordinator(gate, instruments, riskOptions(config.Env.Risk)...)
	analyzer := analysis.NewAnalyzer(gate)

	server := tools.NewServer(gate, coordinator, analyzer, instruments, os.Stdin, os.Stdout)

	// Log to stderr only: stdout carries the protocol.
	logrus.SetOutput(os.Stderr)

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		logrus.Errorf("tools server stopped: %v", err)
	}
}
