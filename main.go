// ABOUTME: Entry point for the Unison playback server
// ABOUTME: Wires config, engine, stream provider, discovery, and the control server together
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unison-audio/unison-go/internal/config"
	"github.com/unison-audio/unison-go/internal/control"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/discovery"
	"github.com/unison-audio/unison-go/internal/engine"
	"github.com/unison-audio/unison-go/internal/events"
	"github.com/unison-audio/unison-go/internal/renderer"
	"github.com/unison-audio/unison-go/internal/server"
	"github.com/unison-audio/unison-go/internal/stream"
)

var (
	configPath = flag.String("config", "", "Config file path (default: ~/.unisonrc, then XDG config)")
	port       = flag.Int("port", 0, "WebSocket server port (overrides config)")
	name       = flag.String("name", "", "Server friendly name (overrides config)")
	libraryDir = flag.String("dir", "", "Track library directory (overrides config)")
	logFile    = flag.String("log-file", "", "Log file path (default: unison-server.log)")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement and browsing")
	autoAttach = flag.Bool("auto-attach", false, "Attach every renderer daemon found on the network")
	simDevices = flag.Int("sim-devices", 0, "Attach N simulated devices (development)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	useTUI := !*noTUI

	// Set up logging
	logPath := *logFile
	if logPath == "" {
		logPath = cfg.Log.File
	}
	if logPath == "" {
		logPath = "unison-server.log"
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if !useTUI {
		log.Printf("Starting Unison Server: %s on port %d", cfg.Server.Name, cfg.Server.Port)
		log.Printf("Library: %s", cfg.Library.Dir)
		log.Printf("Logging to: %s", logPath)
		log.Printf("Press Ctrl-C to stop")
	}

	// Streamed files must carry an address other devices can reach, so
	// prefer a routable interface over localhost.
	host := "localhost"
	if ip, err := discovery.LocalIP(); err == nil {
		host = ip.String()
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)

	registry := device.NewRegistry(cfg.RegistryConfig())
	provider := stream.NewLocal(cfg.Library.Dir, baseURL)
	eventLog := events.NewLog(cfg.Events.Capacity)
	eng := engine.New(cfg.EngineConfig(), registry, provider, eventLog)

	commandTimeout := time.Duration(cfg.Sync.CommandTimeoutMS) * time.Millisecond
	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		Name:            cfg.Server.Name,
		EnableMDNS:      !cfg.Server.DisableMDNS,
		UseTUI:          useTUI,
		HeartbeatPeriod: cfg.HeartbeatPeriod(),
		CommandTimeout:  commandTimeout,
	}, eng, provider)

	// Renderer discovery backs attach commands; with -auto-attach every
	// daemon that appears joins the group on its own.
	if !cfg.Server.DisableMDNS {
		browser := discovery.NewBrowser(0, 0)
		browser.Start()
		defer browser.Stop()
		srv.SetResolver(func(id string) (addr, name, class string, ok bool) {
			cand, ok := browser.Resolve(id)
			return cand.Addr, cand.Name, cand.Class, ok
		})
		if *autoAttach {
			go attachDiscovered(browser, eng, commandTimeout)
		}
	}

	if *simDevices > 0 {
		go attachSimDevices(eng, *simDevices)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Server stopped")
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	// Explicit flags win over the file.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = *port
		case "name":
			cfg.Server.Name = *name
		case "dir":
			cfg.Library.Dir = *libraryDir
		case "no-mdns":
			cfg.Server.DisableMDNS = *noMDNS
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// attachDiscovered joins each newly sighted renderer daemon to the group.
func attachDiscovered(b *discovery.Browser, eng *engine.Engine, timeout time.Duration) {
	for cand := range b.Updates() {
		go func(cand discovery.Candidate) {
			class := device.ClassWeb
			if c, err := device.ParseClass(cand.Class); err == nil {
				class = c
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			ctl, err := control.Dial(ctx, cand.Addr, timeout)
			if err != nil {
				log.Printf("Auto-attach dial %s (%s) failed: %v", cand.Name, cand.Addr, err)
				return
			}
			if err := eng.Attach(ctx, cand.ID, cand.Name, class, ctl); err != nil {
				ctl.Close()
				log.Printf("Auto-attach %s failed: %v", cand.Name, err)
			}
		}(cand)
	}
}

// attachSimDevices brings up in-process simulated renderers, one per class
// in rotation, so sync behavior is observable without hardware. Every other
// device gets a slow clock to keep the drift monitor busy.
func attachSimDevices(eng *engine.Engine, n int) {
	classes := []device.Class{device.ClassCast, device.ClassWeb, device.ClassBluetooth, device.ClassMobile}

	for i := 0; i < n; i++ {
		class := classes[i%len(classes)]
		p := renderer.NewPlayer()
		if i%2 == 1 {
			p.SetDriftRate(-0.02)
		}
		latency := time.Duration(device.PriorFor(nil, class) * float64(time.Second))
		ctl := renderer.NewSimController(p, latency)

		id := fmt.Sprintf("sim-%d", i+1)
		name := fmt.Sprintf("Sim %s %d", class, i+1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := eng.Attach(ctx, id, name, class, ctl)
		cancel()
		if err != nil {
			log.Printf("Simulated device %s failed to attach: %v", id, err)
			continue
		}
		log.Printf("Simulated device attached: %s (%s)", name, class)
	}
}
