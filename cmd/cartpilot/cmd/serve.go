package cmd

import (
	"net/http"

	"cartpilot/lib/util/serviceutil"
	"cartpilot/server"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job API server.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		orch, config := setup(ctx)

		port := config.Port
		if port == 0 {
			port = 8460
		}

		mux := http.NewServeMux()
		server.New(orch).Register(mux)
		go serviceutil.StartHttpServer(port, mux)

		<-ctx.Done()
	},
}
