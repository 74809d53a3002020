package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var listenAddr string
	var objectName string
	var entityId string

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use: "billing-sync-connector",
	}

	// apiServerCmd runs the webhook / worker / scheduler http service
	var apiServerCmd = &cobra.Command{
		Use:   "api_server",
		Short: "Billing Sync API Server",
		Run: func(cmd *cobra.Command, args []string) {
			startBillingSyncApiServer(listenAddr)
		},
	}

	var backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Run a full backfill of every supported object type",
		Run: func(cmd *cobra.Command, args []string) {
			startBackfill(objectName)
		},
	}

	var syncEntityCmd = &cobra.Command{
		Use:   "sync_entity",
		Short: "Refresh a single entity from the billing api",
		Run: func(cmd *cobra.Command, args []string) {
			startSingleEntitySync(objectName, entityId)
		},
	}

	var tokenGeneratorCmd = &cobra.Command{
		Use:   "generate_scheduler_token",
		Short: "Generate a bearer token for the scheduler endpoint",
		Run: func(cmd *cobra.Command, args []string) {
			startSchedulerTokenGeneration()
		},
	}

	rootCmd.AddCommand(apiServerCmd)
	apiServerCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", ":8000", "Hostname:port")

	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringVarP(&objectName, "object", "o", "", "Limit the backfill to a single object type")

	rootCmd.AddCommand(syncEntityCmd)
	syncEntityCmd.Flags().StringVarP(&objectName, "object", "o", "", "Object type of the entity")
	syncEntityCmd.Flags().StringVarP(&entityId, "id", "i", "", "Remote id of the entity")

	rootCmd.AddCommand(tokenGeneratorCmd)

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
