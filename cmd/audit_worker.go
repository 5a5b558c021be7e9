package cmd

import (
	"github.com/spf13/cobra"

	"github.com/avelios/terminal-gateway/internal/bootstrap"
)

// auditWorkerCmd represents the audit-worker command
var auditWorkerCmd = &cobra.Command{
	Use:   "audit-worker",
	Short: "Consume order executed events and backfill the audit table",
	Long: `Audit worker subscribes to the order executed stream and makes sure every
outcome ends up in the order_histories table, covering gateway instances that
run without direct database access.`,
	Run: bootstrap.StartAuditWorker,
}

func init() {
	rootCmd.AddCommand(auditWorkerCmd)
}
