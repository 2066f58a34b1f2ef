// ABOUTME: Root command and shared wiring for the unisonctl CLI
// ABOUTME: Holds persistent flags, config loading, and the control-channel session helpers
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unison-audio/unison-go/internal/client"
	"github.com/unison-audio/unison-go/internal/config"
	"github.com/unison-audio/unison-go/internal/discovery"
	"github.com/unison-audio/unison-go/internal/protocol"
)

var (
	cfgFile    string
	serverAddr string
	jsonOutput bool
	replyWait  time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "unisonctl",
	Short: "Control a Unison playback server",
	Long: `unisonctl talks to a running Unison server over its WebSocket control
channel: transport control, queue management, device attachment, and sync
event inspection.

Without --server it tries localhost on the configured port first, then
looks for a server via mDNS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Server address (host:port)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&replyWait, "wait", 3*time.Second, "How long to wait for the server's reply")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// JSONOutput returns whether JSON output is enabled.
func JSONOutput() bool {
	return jsonOutput
}

// connect dials the control channel and waits for the snapshot the server
// pushes to every controller on connect.
func connect() (*client.Client, protocol.State, error) {
	addr := serverAddr
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}

	c := newControllerClient(addr)
	err := c.Connect()
	if err != nil && serverAddr == "" {
		// Nothing local; look for a server on the network.
		found, ferr := discovery.FindServer(2 * time.Second)
		if ferr != nil {
			return nil, protocol.State{}, fmt.Errorf("connect %s: %w", addr, err)
		}
		c = newControllerClient(found)
		err = c.Connect()
	}
	if err != nil {
		return nil, protocol.State{}, err
	}

	select {
	case st := <-c.States:
		return c, st, nil
	case info := <-c.Errors:
		c.Close()
		return nil, protocol.State{}, commandError(info)
	case <-c.Done():
		return nil, protocol.State{}, fmt.Errorf("server closed the connection")
	case <-time.After(replyWait):
		c.Close()
		return nil, protocol.State{}, fmt.Errorf("timed out waiting for server state")
	}
}

func newControllerClient(addr string) *client.Client {
	host, _ := os.Hostname()
	if host == "" {
		host = "unisonctl"
	}
	return client.NewClient(client.Config{
		ServerAddr: addr,
		ClientID:   "ctl-" + uuid.New().String()[:8],
		Name:       fmt.Sprintf("unisonctl@%s", host),
	})
}

// control sends one command over a fresh session and waits for the verdict.
func control(cmd protocol.Command, pred func(protocol.State) bool) (protocol.State, error) {
	c, _, err := connect()
	if err != nil {
		return protocol.State{}, err
	}
	defer c.Close()

	if err := c.Command(cmd); err != nil {
		return protocol.State{}, err
	}
	return await(c, replyWait, pred)
}

// await collects broadcasts until one satisfies pred, a rejection arrives,
// or the window closes. Commands that change nothing are acknowledged by
// silence, so a timeout reports the freshest snapshot as success.
func await(c *client.Client, wait time.Duration, pred func(protocol.State) bool) (protocol.State, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case st := <-c.States:
			if pred == nil || pred(st) {
				return st, nil
			}
		case info := <-c.Errors:
			return protocol.State{}, commandError(info)
		case <-c.Done():
			return protocol.State{}, fmt.Errorf("server closed the connection")
		case <-timer.C:
			st, _ := c.LastState()
			return st, nil
		}
	}
}

func commandError(info protocol.ErrorInfo) error {
	return fmt.Errorf("%s (%s)", info.Message, info.Code)
}
