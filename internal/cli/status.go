// ABOUTME: Status command showing playback state, queue position, and devices
// ABOUTME: Reads the snapshot the server pushes on connect; no command is sent
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show playback state and attached devices",
	Long:  `Shows the current playback phase, track, queue position, and every attached device with its measured latency.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, st, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if JSONOutput() {
		return emitJSON(map[string]interface{}{
			"server": c.ServerHello(),
			"state":  st,
		})
	}

	printStatus(c.ServerHello(), st)
	return nil
}

func printStatus(hello protocol.ServerHello, st protocol.State) {
	fmt.Printf("%s (%s)\n\n", hello.Name, hello.Software)

	if st.Track == nil {
		fmt.Println("Nothing playing")
	} else {
		fmt.Printf("%s %s\n", phaseIcon(st.Phase), st.Track.Name)
		if st.Track.HasDuration() {
			fmt.Printf("  %s %s / %s\n",
				progressBar(st.Position, st.Track.Duration, 30),
				formatClock(st.Position), formatClock(st.Track.Duration))
		} else {
			fmt.Printf("  at %s\n", formatClock(st.Position))
		}
	}
	if n := len(st.Queue.Tracks); n > 0 && st.Queue.CurrentIndex >= 0 {
		fmt.Printf("  Queue: track %d of %d\n", st.Queue.CurrentIndex+1, n)
	} else if n > 0 {
		fmt.Printf("  Queue: %d tracks\n", n)
	}

	if len(st.Devices) == 0 {
		fmt.Println("\nNo devices attached")
		return
	}
	fmt.Println("\nDevices:")
	for _, d := range st.Devices {
		fmt.Printf("  %s %-14s %-10s %6s  %s\n",
			connIcon(d.Connected), d.Name, d.Class, formatLatency(d.Latency), d.Quality)
	}
}
