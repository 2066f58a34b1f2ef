// ABOUTME: Device commands: list, discover, attach, detach
// ABOUTME: Attach waits out calibration, which takes several probe round-trips
package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/discovery"
	"github.com/unison-audio/unison-go/internal/protocol"
)

// Calibration probes a freshly attached device before it joins the group,
// so attach needs a longer window than other commands.
const attachWait = 15 * time.Second

var discoverTimeout time.Duration

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show and manage playback devices",
	RunE:  runDevicesList,
}

var devicesDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find renderer daemons on the local network",
	Long:  `Runs one mDNS query for renderer daemons and lists everything that answered, attached or not.`,
	RunE:  runDevicesDiscover,
}

var devicesAttachCmd = &cobra.Command{
	Use:   "attach <device-id>",
	Short: "Attach a discovered device to the playback group",
	Long: `Attach a discovered device. The server dials the device, measures its
latency, and brings it into the playing group at the synchronized position.

Device IDs come from 'unisonctl devices discover'.`,
	Args: cobra.ExactArgs(1),
	RunE: runDevicesAttach,
}

var devicesDetachCmd = &cobra.Command{
	Use:   "detach <device-id>",
	Short: "Detach a device from the playback group",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesDetach,
}

func init() {
	devicesDiscoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "How long to collect mDNS answers")

	devicesCmd.AddCommand(devicesDiscoverCmd)
	devicesCmd.AddCommand(devicesAttachCmd)
	devicesCmd.AddCommand(devicesDetachCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	c, st, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if JSONOutput() {
		return emitJSON(st.Devices)
	}

	if len(st.Devices) == 0 {
		fmt.Println("No devices attached")
		return nil
	}
	rows := make([][]string, 0, len(st.Devices))
	for _, d := range st.Devices {
		resync := "-"
		if d.LastResyncAt != nil {
			resync = humanize.Time(*d.LastResyncAt)
		}
		rows = append(rows, []string{
			connIcon(d.Connected) + " " + d.ID,
			d.Name,
			d.Class,
			formatLatency(d.Latency),
			d.Quality,
			resync,
		})
	}
	printTable([]string{"ID", "NAME", "CLASS", "LATENCY", "QUALITY", "LAST RESYNC"}, rows)
	return nil
}

func runDevicesDiscover(cmd *cobra.Command, args []string) error {
	cands, err := discovery.Discover(discoverTimeout)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if JSONOutput() {
		out := make([]map[string]interface{}, 0, len(cands))
		for _, cand := range cands {
			out = append(out, map[string]interface{}{
				"id":    cand.ID,
				"name":  cand.Name,
				"class": cand.Class,
				"addr":  cand.Addr,
			})
		}
		return emitJSON(out)
	}

	if len(cands) == 0 {
		fmt.Println("No renderers found")
		return nil
	}
	rows := make([][]string, 0, len(cands))
	for _, cand := range cands {
		rows = append(rows, []string{cand.ID, cand.Name, cand.Class, cand.Addr})
	}
	printTable([]string{"ID", "NAME", "CLASS", "ADDRESS"}, rows)
	return nil
}

func runDevicesAttach(cmd *cobra.Command, args []string) error {
	id := args[0]

	c, _, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Command(protocol.Command{Action: protocol.ActionAttach, DeviceID: id}); err != nil {
		return err
	}

	wait := attachWait
	if cmd.Flags().Changed("wait") {
		wait = replyWait
	}
	st, err := await(c, wait, func(st protocol.State) bool {
		d, ok := findDevice(st, id)
		return ok && d.Connected
	})
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", id, err)
	}

	d, ok := findDevice(st, id)
	if !ok {
		return fmt.Errorf("attach %s: no confirmation from server", id)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "attached", "device": d})
	}
	fmt.Printf("Attached %s (%s, %s latency)\n", d.Name, d.Class, formatLatency(d.Latency))
	return nil
}

func runDevicesDetach(cmd *cobra.Command, args []string) error {
	id := args[0]

	c, _, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Command(protocol.Command{Action: protocol.ActionDetach, DeviceID: id}); err != nil {
		return err
	}
	st, err := await(c, replyWait, func(st protocol.State) bool {
		_, ok := findDevice(st, id)
		return !ok
	})
	if err != nil {
		return fmt.Errorf("failed to detach %s: %w", id, err)
	}
	if _, present := findDevice(st, id); present {
		return fmt.Errorf("detach %s: device still attached", id)
	}

	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "detached", "device_id": id})
	}
	fmt.Printf("Detached %s\n", id)
	return nil
}

func findDevice(st protocol.State, id string) (protocol.DeviceState, bool) {
	for _, d := range st.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return protocol.DeviceState{}, false
}
