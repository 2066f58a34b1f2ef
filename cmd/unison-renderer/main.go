// ABOUTME: Entry point for the simulated Unison renderer daemon
// ABOUTME: Listens for a server by default, or dials one with -connect/-server
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

	"github.com/unison-audio/unison-go/internal/client"
	"github.com/unison-audio/unison-go/internal/device"
	"github.com/unison-audio/unison-go/internal/discovery"
	"github.com/unison-audio/unison-go/internal/renderer"
)

var (
	port        = flag.Int("port", 8932, "Control port to listen on")
	deviceID    = flag.String("id", "", "Stable device ID (default: hostname-renderer)")
	deviceName  = flag.String("name", "", "Device friendly name (default: hostname)")
	deviceClass = flag.String("class", "web", "Device class: cast, bluetooth, web, mobile")
	delay       = flag.Duration("delay", 0, "Artificial latency added to every request")
	drift       = flag.Float64("drift", 0, "Clock drift rate, e.g. -0.02 runs 2% slow")
	serverAddr  = flag.String("server", "", "Dial this server instead of listening (host:port)")
	connect     = flag.Bool("connect", false, "Dial a discovered server instead of listening")
	logFile     = flag.String("log-file", "unison-renderer.log", "Log file path")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	class, err := device.ParseClass(*deviceClass)
	if err != nil {
		log.Fatalf("Invalid class %q (want cast, bluetooth, web, or mobile)", *deviceClass)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	id := *deviceID
	if id == "" {
		id = fmt.Sprintf("%s-renderer", hostname)
	}
	name := *deviceName
	if name == "" {
		name = hostname
	}

	p := renderer.NewPlayer()
	if *drift != 0 {
		p.SetDriftRate(*drift)
	}

	log.Printf("Starting Unison Renderer: %s (%s, class %s)", name, id, class)
	if *drift != 0 {
		log.Printf("Simulating clock drift: %+.3f", *drift)
	}
	if *delay > 0 {
		log.Printf("Simulating command latency: %s", *delay)
	}

	if *serverAddr != "" || *connect {
		runConnected(p, id, name, string(class))
		return
	}
	runDaemon(p, id, name, string(class))
}

// runDaemon listens for servers and advertises over mDNS.
func runDaemon(p *renderer.Player, id, name, class string) {
	d := renderer.NewDaemon(p)
	d.SetDelay(*delay)

	if !*noMDNS {
		mgr, err := discovery.Advertise(discovery.Config{
			Instance: name,
			Service:  discovery.RendererService,
			Port:     *port,
			TXT:      discovery.RendererTXT(id, name, class),
		})
		if err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			defer mgr.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := d.ListenAndServe(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatalf("Renderer error: %v", err)
	}
	log.Printf("Renderer stopped")
}

// runConnected dials the server and serves requests on that connection, for
// devices the server cannot reach inbound.
func runConnected(p *renderer.Player, id, name, class string) {
	addr := *serverAddr
	if addr == "" {
		log.Printf("Looking for a server via mDNS...")
		found, err := discovery.FindServer(5 * time.Second)
		if err != nil {
			log.Fatalf("No server found: %v", err)
		}
		addr = found
	}

	conn, hello, err := client.DialRenderer(addr, id, name, class)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	log.Printf("Connected to %s (%s)", hello.Name, hello.Software)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, disconnecting...", sig)
		conn.Close()
	}()

	renderer.ServeConn(p, conn)
	log.Printf("Renderer stopped")
}
