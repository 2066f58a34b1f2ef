// ABOUTME: Events command for inspecting the server's sync event log
// ABOUTME: Values carry latency or drift magnitudes in seconds; shown as milliseconds
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/events"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent sync events",
	Long: `Shows the server's recent sync events: calibrations, drift detections,
resyncs, device churn, and stream errors. Oldest first.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "l", 20, "Maximum number of events to show")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, _, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.QueryEvents(eventsLimit); err != nil {
		return err
	}

	var evs []events.Event
	select {
	case evs = <-c.Events:
	case info := <-c.Errors:
		return commandError(info)
	case <-c.Done():
		return fmt.Errorf("server closed the connection")
	case <-time.After(replyWait):
		return fmt.Errorf("timed out waiting for events")
	}

	if JSONOutput() {
		return emitJSON(evs)
	}

	if len(evs) == 0 {
		fmt.Println("No events recorded")
		return nil
	}
	rows := make([][]string, 0, len(evs))
	for _, e := range evs {
		value := ""
		if e.Value != 0 {
			value = formatLatency(e.Value)
		}
		device := e.DeviceID
		if device == "" {
			device = "-"
		}
		rows = append(rows, []string{
			e.At.Format("15:04:05"),
			string(e.Type),
			device,
			value,
			e.Detail,
		})
	}
	printTable([]string{"TIME", "TYPE", "DEVICE", "VALUE", "DETAIL"}, rows)
	return nil
}
