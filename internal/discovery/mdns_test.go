// ABOUTME: Tests for candidate parsing from mDNS service entries
// ABOUTME: Network-dependent advertise/browse paths are exercised manually
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestParseEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Kitchen._unison-renderer._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.40"),
		Port:       8932,
		InfoFields: []string{"id=dev-1", "name=Kitchen", "class=cast", "path=/ws"},
	}

	cand, ok := parseEntry(entry)
	if !ok {
		t.Fatal("expected a usable candidate")
	}
	if cand.ID != "dev-1" || cand.Name != "Kitchen" || cand.Class != "cast" {
		t.Errorf("unexpected candidate fields: %+v", cand)
	}
	if cand.Addr != "192.168.1.40:8932" {
		t.Errorf("expected addr 192.168.1.40:8932, got %s", cand.Addr)
	}
}

func TestParseEntryWithoutIDSkipped(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Unknown._unison-renderer._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.41"),
		Port:       8932,
		InfoFields: []string{"path=/ws"},
	}
	if _, ok := parseEntry(entry); ok {
		t.Fatal("expected entry without id to be skipped")
	}
}

func TestParseEntryNameFallback(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Bedroom._unison-renderer._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.42"),
		Port:       8932,
		InfoFields: []string{"id=dev-2", "class=web"},
	}
	cand, ok := parseEntry(entry)
	if !ok {
		t.Fatal("expected a usable candidate")
	}
	if cand.Name != "Bedroom" {
		t.Errorf("expected instance name fallback, got %q", cand.Name)
	}
}

func TestParseEntryWithoutAddressSkipped(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Ghost._unison-renderer._tcp.local.",
		Port:       8932,
		InfoFields: []string{"id=dev-3"},
	}
	if _, ok := parseEntry(entry); ok {
		t.Fatal("expected entry without address to be skipped")
	}
}

func TestBrowserRecordsFirstSightingOnly(t *testing.T) {
	b := NewBrowser(0, 0)
	defer b.Stop()

	b.record(Candidate{ID: "dev-1", Name: "Kitchen", Class: "cast", Addr: "192.168.1.40:8932"})
	b.record(Candidate{ID: "dev-2", Name: "Bedroom", Class: "web", Addr: "192.168.1.41:8932"})
	// Re-sighting with a new address updates the record without a push.
	b.record(Candidate{ID: "dev-1", Name: "Kitchen", Class: "cast", Addr: "192.168.1.50:8932"})

	var pushed []string
	for len(b.Updates()) > 0 {
		pushed = append(pushed, (<-b.Updates()).ID)
	}
	if len(pushed) != 2 || pushed[0] != "dev-1" || pushed[1] != "dev-2" {
		t.Errorf("expected one push per device, got %v", pushed)
	}

	cands := b.Candidates()
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].ID != "dev-1" || cands[1].ID != "dev-2" {
		t.Errorf("expected ID ordering, got %+v", cands)
	}

	cand, ok := b.Resolve("dev-1")
	if !ok {
		t.Fatal("expected dev-1 to resolve")
	}
	if cand.Addr != "192.168.1.50:8932" {
		t.Errorf("expected refreshed address, got %s", cand.Addr)
	}
	if _, ok := b.Resolve("ghost"); ok {
		t.Error("expected unknown ID to miss")
	}
}

func TestRendererTXT(t *testing.T) {
	txt := RendererTXT("dev-9", "Office", "bluetooth")
	entry := &mdns.ServiceEntry{
		Name:       "Office._unison-renderer._tcp.local.",
		AddrV4:     net.ParseIP("10.0.0.5"),
		Port:       9000,
		InfoFields: txt,
	}
	cand, ok := parseEntry(entry)
	if !ok {
		t.Fatal("expected advertised records to parse")
	}
	if cand.ID != "dev-9" || cand.Name != "Office" || cand.Class != "bluetooth" {
		t.Errorf("TXT round trip mismatch: %+v", cand)
	}
}
