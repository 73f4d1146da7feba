// Command router is the federation router's entrypoint: version, config
// validation, and serve subcommands over a cobra command tree.
//
// Grounded on cmd/federation-gateway/main.go's versionCmd/initCmd/serveCmd
// tree. "init" becomes "validate": the teacher's init scaffolds a new
// project, but this router has no project-scaffolding Non-goal to serve,
// while a config.LoadConfig dry-run is something every operator actually
// needs before a rollout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphql-hive/federation-router/internal/config"
	"github.com/graphql-hive/federation-router/server"
)

const routerVersion = "v0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "A federated GraphQL router",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the router's version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("federation-router " + routerVersion)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the router's configuration file without serving traffic",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := config.LoadConfig(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("configuration is valid")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the router",
	Run: func(cmd *cobra.Command, args []string) {
		server.Run(configPath)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "router.yaml", "path to the router's configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
