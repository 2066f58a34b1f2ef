// ABOUTME: Queue commands: list, add, remove, clear, move
// ABOUTME: Positions shown and accepted are 1-based; the wire protocol is 0-based
package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/protocol"
)

var queueAddName string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show and manage the playback queue",
	RunE:  runQueueList,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <source>",
	Short: "Add a track to the queue",
	Long: `Add a track to the queue. The source is a path relative to the server's
library directory, or a URL the devices can reach directly.

Examples:
  unisonctl queue add albums/dust-settles.mp3
  unisonctl queue add http://radio.example/stream.mp3 --name "Morning Radio"`,
	Args: cobra.ExactArgs(1),
	RunE: runQueueAdd,
}

var queueRemoveCmd = &cobra.Command{
	Use:     "remove <position>",
	Aliases: []string{"rm"},
	Short:   "Remove a track from the queue",
	Args:    cobra.ExactArgs(1),
	RunE:    runQueueRemove,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the queue and stop playback",
	RunE:  runQueueClear,
}

var queueMoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move a track to another queue position",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueueMove,
}

func init() {
	queueAddCmd.Flags().StringVar(&queueAddName, "name", "", "Display name for the track")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueMoveCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	c, st, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if JSONOutput() {
		return emitJSON(st.Queue)
	}

	if st.Queue.IsEmpty() {
		fmt.Println("Queue is empty")
		return nil
	}
	for i, t := range st.Queue.Tracks {
		prefix := "  "
		if i == st.Queue.CurrentIndex {
			prefix = "▶ "
		}
		dur := "--:--"
		if t.HasDuration() {
			dur = formatClock(t.Duration)
		}
		fmt.Printf("%s%d. %s (%s)\n", prefix, i+1, t.Name, dur)
	}
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	source := args[0]
	name := queueAddName
	if name == "" {
		base := filepath.Base(source)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	c, initial, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	before := len(initial.Queue.Tracks)
	if err := c.Command(protocol.Command{
		Action: protocol.ActionAdd,
		Track:  &protocol.TrackSpec{Name: name, Source: source},
	}); err != nil {
		return err
	}
	st, err := await(c, replyWait, func(st protocol.State) bool {
		return len(st.Queue.Tracks) > before
	})
	if err != nil {
		return fmt.Errorf("failed to add: %w", err)
	}

	if JSONOutput() {
		return emitJSON(map[string]interface{}{
			"status":   "added",
			"name":     name,
			"source":   source,
			"position": len(st.Queue.Tracks),
		})
	}
	fmt.Printf("Added to queue: %s (position %d)\n", name, len(st.Queue.Tracks))
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	pos, err := strconv.Atoi(args[0])
	if err != nil || pos < 1 {
		return fmt.Errorf("invalid queue position: %s", args[0])
	}

	c, initial, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	before := len(initial.Queue.Tracks)
	if err := c.Command(protocol.Command{Action: protocol.ActionRemove, Index: pos - 1}); err != nil {
		return err
	}
	if _, err := await(c, replyWait, func(st protocol.State) bool {
		return len(st.Queue.Tracks) < before
	}); err != nil {
		return fmt.Errorf("failed to remove: %w", err)
	}

	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "removed", "position": pos})
	}
	fmt.Printf("Removed track %d\n", pos)
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	if _, err := control(protocol.Command{Action: protocol.ActionClear}, func(st protocol.State) bool {
		return st.Queue.IsEmpty()
	}); err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}

	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "cleared"})
	}
	fmt.Println("Queue cleared")
	return nil
}

func runQueueMove(cmd *cobra.Command, args []string) error {
	from, err := strconv.Atoi(args[0])
	if err != nil || from < 1 {
		return fmt.Errorf("invalid from position: %s", args[0])
	}
	to, err := strconv.Atoi(args[1])
	if err != nil || to < 1 {
		return fmt.Errorf("invalid to position: %s", args[1])
	}

	if _, err := control(protocol.Command{
		Action: protocol.ActionMove,
		From:   from - 1,
		To:     to - 1,
	}, nil); err != nil {
		return fmt.Errorf("failed to move: %w", err)
	}

	if JSONOutput() {
		return emitJSON(map[string]interface{}{"status": "moved", "from": from, "to": to})
	}
	fmt.Printf("Moved track %d to %d\n", from, to)
	return nil
}
