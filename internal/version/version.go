// ABOUTME: Version and product identity constants
// ABOUTME: Shared by the server hello, mDNS TXT records, and CLI output
package version

const (
	// Version is the semantic version of this build.
	Version = "0.3.1"

	// Product identifies the server in hello payloads and service records.
	Product = "unison-server"

	// Manufacturer is the project identity advertised over discovery.
	Manufacturer = "Unison Audio"
)
