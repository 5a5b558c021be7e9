package bootstrap

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/config"
	"github.com/avelios/terminal-gateway/internal/infrastructure"
	"github.com/avelios/terminal-gateway/internal/repository"
	"github.com/avelios/terminal-gateway/internal/service/execution"
	"github.com/avelios/terminal-gateway/internal/util"
)

func StartAuditWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig := config.Env.Database["gateway"]
	db, err := infrastructure.NewPostgresConnection(ctx, dbConfig)
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, dbConfig.PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	auditService := execution.NewAuditService(js, repository.NewOrderHistoryRepository(db))
	util.ContinueOrFatal(auditService.JetstreamEventSubscribe(ctx))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
