// ABOUTME: mDNS advertisement and browsing for servers and renderer daemons
// ABOUTME: Renderers carry id/name/class TXT records used to build candidates
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// Service types on the local network.
const (
	ServerService   = "_unison-server._tcp"
	RendererService = "_unison-renderer._tcp"
)

// Config describes one advertised service instance.
type Config struct {
	Instance string
	Service  string
	Port     int
	TXT      []string
}

// Manager owns one mDNS advertisement.
type Manager struct {
	server *mdns.Server
}

// Advertise announces a service instance until Stop is called.
func Advertise(cfg Config) (*Manager, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("local interfaces: %w", err)
	}

	service, err := mdns.NewMDNSService(cfg.Instance, cfg.Service, "", "", cfg.Port, ips, cfg.TXT)
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	log.Printf("Advertising %s as %q on port %d", cfg.Service, cfg.Instance, cfg.Port)
	return &Manager{server: server}, nil
}

// Stop withdraws the advertisement.
func (m *Manager) Stop() {
	if m.server != nil {
		m.server.Shutdown()
	}
}

// Candidate is a renderer daemon found on the network.
type Candidate struct {
	ID    string
	Name  string
	Class string
	Addr  string
	Seen  time.Time
}

// Browser periodically queries for renderer daemons and keeps the set of
// known candidates. First sightings are pushed to Updates for auto-attach.
type Browser struct {
	interval time.Duration
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.RWMutex
	found map[string]Candidate

	updates chan Candidate
}

// NewBrowser creates a stopped browser. Non-positive interval and timeout
// fall back to 10s and 3s.
func NewBrowser(interval, timeout time.Duration) *Browser {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		found:    make(map[string]Candidate),
		updates:  make(chan Candidate, 16),
	}
}

// Start launches the browse loop.
func (b *Browser) Start() {
	go b.loop()
}

// Stop ends browsing.
func (b *Browser) Stop() {
	b.cancel()
}

// Updates delivers each renderer once, on first sighting.
func (b *Browser) Updates() <-chan Candidate {
	return b.updates
}

// Candidates returns every renderer seen so far, ordered by ID.
func (b *Browser) Candidates() []Candidate {
	b.mu.RLock()
	out := make([]Candidate, 0, len(b.found))
	for _, c := range b.found {
		out = append(out, c)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve looks up a discovered renderer by ID.
func (b *Browser) Resolve(id string) (Candidate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.found[id]
	return c, ok
}

func (b *Browser) loop() {
	// First query immediately, then on the interval.
	b.browseOnce()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.browseOnce()
		}
	}
}

func (b *Browser) browseOnce() {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			cand, ok := parseEntry(entry)
			if !ok {
				continue
			}
			b.record(cand)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: RendererService,
		Domain:  "local",
		Timeout: b.timeout,
		Entries: entries,
	})
	close(entries)
	<-done
	if err != nil {
		log.Printf("mDNS query failed: %v", err)
	}
}

func (b *Browser) record(cand Candidate) {
	cand.Seen = time.Now()

	b.mu.Lock()
	_, known := b.found[cand.ID]
	b.found[cand.ID] = cand
	b.mu.Unlock()

	if known {
		return
	}
	log.Printf("Discovered renderer: %s (%s, %s) at %s", cand.Name, cand.ID, cand.Class, cand.Addr)
	select {
	case b.updates <- cand:
	default:
	}
}

// parseEntry builds a candidate from a service entry's TXT records. Entries
// without an id record are not usable as devices.
func parseEntry(entry *mdns.ServiceEntry) (Candidate, bool) {
	cand := Candidate{}
	for _, field := range entry.InfoFields {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "id":
			cand.ID = v
		case "name":
			cand.Name = v
		case "class":
			cand.Class = v
		}
	}
	if cand.ID == "" {
		return Candidate{}, false
	}
	if cand.Name == "" {
		cand.Name = strings.TrimSuffix(entry.Name, "."+RendererService+".local.")
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = fmt.Sprintf("[%s]", entry.AddrV6.String())
	default:
		return Candidate{}, false
	}
	cand.Addr = fmt.Sprintf("%s:%d", host, entry.Port)
	return cand, true
}

// Discover runs one query for renderer daemons and returns everything that
// answered, ordered by ID.
func Discover(timeout time.Duration) ([]Candidate, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	var out []Candidate
	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for entry := range entries {
			cand, ok := parseEntry(entry)
			if !ok || seen[cand.ID] {
				continue
			}
			seen[cand.ID] = true
			cand.Seen = time.Now()
			out = append(out, cand)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: RendererService,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	})
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindServer runs one query for a playback server and returns the first
// host:port found.
func FindServer(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	entries := make(chan *mdns.ServiceEntry, 4)
	found := make(chan string, 1)

	go func() {
		for entry := range entries {
			if entry.AddrV4 == nil {
				continue
			}
			select {
			case found <- fmt.Sprintf("%s:%d", entry.AddrV4.String(), entry.Port):
			default:
			}
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: ServerService,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	})
	close(entries)
	if err != nil {
		return "", fmt.Errorf("mdns query: %w", err)
	}
	select {
	case addr := <-found:
		return addr, nil
	default:
		return "", fmt.Errorf("no server found on the local network")
	}
}

// RendererTXT builds the TXT records a renderer daemon advertises.
func RendererTXT(id, name, class string) []string {
	return []string{
		"id=" + id,
		"name=" + name,
		"class=" + class,
		"path=/ws",
	}
}

// LocalIP returns the machine's first routable IPv4 address, for building
// URLs that other devices on the network can reach.
func LocalIP() (net.IP, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no routable interface found")
	}
	return ips[0], nil
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
