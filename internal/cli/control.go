// ABOUTME: Transport commands: play, pause, seek, next, prev, skip
// ABOUTME: Each opens a session, sends one command, and reports the resulting state
package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/protocol"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start or resume playback",
	Long:  `Start playing the current queue entry, or resume if paused.`,
	RunE:  runPlay,
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	RunE:  runPause,
}

var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Jump to a position in the current track",
	Long: `Jump to a position in the current track. Every attached device
repositions together.

Positions are seconds or clock time:
  unisonctl seek 90
  unisonctl seek 1:30`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	RunE:  runNext,
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go back to the previous track",
	Long:  `Go back to the previous track. At the front of the queue the current track restarts instead.`,
	RunE:  runPrev,
}

var skipCmd = &cobra.Command{
	Use:   "skip <position>",
	Short: "Jump to a queue position",
	Long:  `Jump straight to a queue position, as numbered by 'unisonctl queue'.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSkip,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(skipCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	st, err := control(protocol.Command{Action: protocol.ActionPlay}, func(st protocol.State) bool {
		return st.Playing
	})
	if err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "playing", "state": st})
	}
	if st.Track != nil {
		fmt.Printf("▶ Playing: %s\n", st.Track.Name)
	} else {
		fmt.Println("▶ Playing")
	}
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	st, err := control(protocol.Command{Action: protocol.ActionPause}, func(st protocol.State) bool {
		return !st.Playing
	})
	if err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "paused", "state": st})
	}
	fmt.Printf("⏸ Paused at %s\n", formatClock(st.Position))
	return nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	st, err := control(protocol.Command{Action: protocol.ActionSeek, Position: pos}, func(st protocol.State) bool {
		return math.Abs(st.Position-pos) < 1.5
	})
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "seeked", "position": st.Position})
	}
	fmt.Printf("⏩ Position %s\n", formatClock(st.Position))
	return nil
}

func runNext(cmd *cobra.Command, args []string) error {
	st, err := control(protocol.Command{Action: protocol.ActionNext}, nil)
	if err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "next", "state": st})
	}
	if st.Track != nil {
		fmt.Printf("⏭ Now: %s\n", st.Track.Name)
	} else {
		fmt.Println("⏭ End of queue")
	}
	return nil
}

func runPrev(cmd *cobra.Command, args []string) error {
	st, err := control(protocol.Command{Action: protocol.ActionPrevious}, nil)
	if err != nil {
		return fmt.Errorf("failed to go back: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "previous", "state": st})
	}
	if st.Track != nil {
		fmt.Printf("⏮ Now: %s\n", st.Track.Name)
	} else {
		fmt.Println("⏮ Previous track")
	}
	return nil
}

func runSkip(cmd *cobra.Command, args []string) error {
	pos, err := strconv.Atoi(args[0])
	if err != nil || pos < 1 {
		return fmt.Errorf("invalid queue position: %s", args[0])
	}
	index := pos - 1
	st, err := control(protocol.Command{Action: protocol.ActionSkip, Index: index}, func(st protocol.State) bool {
		return st.Queue.CurrentIndex == index
	})
	if err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}
	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "skipped", "state": st})
	}
	if st.Track != nil {
		fmt.Printf("⏭ Now: %s\n", st.Track.Name)
	} else {
		fmt.Printf("⏭ Queue position %d\n", pos)
	}
	return nil
}
