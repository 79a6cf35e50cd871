package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version проставляется при сборке: -ldflags "-X .../commands.Version=v0.3.0"
var Version = "dev"

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of aasp",
		// Конфиг для версии не нужен
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aasp %s %s/%s\n", Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
