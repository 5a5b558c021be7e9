package bootstrap

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/config"
	gatewayhttp "github.com/avelios/terminal-gateway/internal/handler/http"
	"github.com/avelios/terminal-gateway/internal/handler/ws"
	"github.com/avelios/terminal-gateway/internal/infrastructure"
	"github.com/avelios/terminal-gateway/internal/repository"
	"github.com/avelios/terminal-gateway/internal/service/execution"
	"github.com/avelios/terminal-gateway/internal/service/terminal"
	"github.com/avelios/terminal-gateway/internal/service/tickstream"
	"github.com/avelios/terminal-gateway/internal/util"
)

func StartGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := terminal.NewBridgeDriver(config.Env.Terminal)
	util.ContinueOrFatal(err)
	go bridge.Run(ctx)

	gate := infrastructure.NewSessionGate(bridge, config.Env.Terminal.MaxConcurrentCalls)

	shutdownOps := map[string]operation{}
	coordinatorOpts := riskOptions(config.Env.Risk)

	var orderHistoryRepo *repository.OrderHistoryRepository
	if dbConfig, ok := config.Env.Database["gateway"]; ok && dbConfig.DSN != "" {
		db, err := infrastructure.NewPostgresConnection(ctx, dbConfig)
		util.ContinueOrFatal(err)
		infrastructure.StartPostgresHealthCheck(ctx, db, dbConfig.PingInterval)

		orderHistoryRepo = repository.NewOrderHistoryRepository(db)
		coordinatorOpts = append(coordinatorOpts, execution.WithRecorder(orderHistoryRepo))
		shutdownOps["database"] = func(ctx context.Context) error {
			return db.Close()
		}
	}

	if config.Env.NatsJetstream.URL != "" {
		nc, js, err := infrastructure.NewJetstream()
		util.ContinueOrFatal(err)

		coordinatorOpts = append(coordinatorOpts, execution.WithJetstream(js))
		shutdownOps["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		}
	}

	var instrumentStore *repository.InstrumentStore
	if redisConfig, ok := config.Env.Redis["gateway"]; ok && redisConfig.CacheDSN != "" {
		redisClient, err := infrastructure.NewRedisClient(ctx, redisConfig)
		util.ContinueOrFatal(err)

		instrumentStore = repository.NewInstrumentStore(redisClient, redisConfig.CacheTTL)
		shutdownOps["redis connection"] = func(ctx context.Context) error {
			return redisClient.Close()
		}
	}

	instruments := repository.NewCachedInstrumentSource(instrumentStore, gate)
	coordinator := execution.NewCoordinator(gate, instruments, coordinatorOpts...)
	util.ContinueOrFatal(coordinator.JetstreamEventInit(ctx))

	detector := tickstream.NewDetector(gate)
	registry := tickstream.NewRegistry()
	hub := tickstream.NewHub(registry, func(consumer tickstream.Consumer) {
		if closer, ok := consumer.(interface{ Close() }); ok {
			closer.Close()
		}
	})
	poller := tickstream.NewPoller(detector, registry, hub, config.Env.Poller)
	go poller.Run(ctx)

	// The tick stream gets its own plain server: websocket upgrades need the
	// raw connection, which the instrumented server's middleware hides.
	wsMux := http.NewServeMux()
	ws.NewTickStreamHandler(registry, config.Env.Hub.ClientQueueSize).Register(wsMux)
	wsServer := &http.Server{
		Addr:    ":" + config.Env.Port["ws"],
		Handler: wsMux,
	}
	go func() {
		logrus.WithField("addr", wsServer.Addr).Info("websocket server starting")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal(err)
		}
	}()

	restMux := http.NewServeMux()
	restMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	var history gatewayhttp.OrderHistorySource
	if orderHistoryRepo != nil {
		history = orderHistoryRepo
	}
	gatewayhttp.NewGatewayHTTPHandler(gate, coordinator, instruments, history).Register(restMux)

	restServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr: ":" + config.Env.Port["http"],
	}, restMux)
	go func() {
		util.ContinueOrFatal(restServer.Start())
	}()

	shutdownOps["terminal bridge"] = func(ctx context.Context) error {
		cancel()
		return nil
	}
	shutdownOps["websocket server"] = func(ctx context.Context) error {
		return wsServer.Shutdown(ctx)
	}
	shutdownOps["http server"] = func(ctx context.Context) error {
		return restServer.Shutdown(ctx)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, shutdownOps)

	<-wait
}

func riskOptions(cfg config.RiskConfig) []execution.Option {
	opts := make([]execution.Option, 0, 4)
	if cfg.DefaultRiskPercent.IsPositive() {
		opts = append(opts, execution.WithDefaultRiskPercent(cfg.DefaultRiskPercent))
	}
	if cfg.DefaultMagic != 0 {
		opts = append(opts, execution.WithDefaultMagic(cfg.DefaultMagic))
	}
	if cfg.DefaultDeviation > 0 {
		opts = append(opts, execution.WithDefaultDeviation(cfg.DefaultDeviation))
	}
	if cfg.MaxPositions > 0 {
		opts = append(opts, execution.WithMaxPositions(cfg.MaxPositions))
	}

	return opts
}
