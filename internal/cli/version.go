// ABOUTME: Version command reporting build and protocol information
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/protocol"
	"github.com/unison-audio/unison-go/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if JSONOutput() {
			_ = emitJSON(map[string]interface{}{
				"version":    version.Version,
				"protocol":   protocol.Version,
				"go_version": runtime.Version(),
				"os":         runtime.GOOS,
				"arch":       runtime.GOARCH,
			})
			return
		}
		fmt.Printf("unisonctl %s\n", version.Version)
		fmt.Printf("  protocol:   %d\n", protocol.Version)
		fmt.Printf("  go version: %s\n", runtime.Version())
		fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
