package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "pagestream",
		Short:        "pagestream serves paginated, searchable views over owner-scoped document collections",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pagestream.yaml", "path to the config file (yaml or json)")
	cmd.AddCommand(serveCmd(&configPath), seedCmd(&configPath), browseCmd(&configPath))
	return cmd
}
