// ABOUTME: Output formatting helpers for the unisonctl CLI
// ABOUTME: Media positions render as m:ss, latencies as milliseconds
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/unison-audio/unison-go/internal/core"
)

// emitJSON writes v to stdout as a single JSON document.
func emitJSON(v interface{}) error {
	return json.NewEncoder(os.Stdout).Encode(v)
}

// printTable renders rows as an aligned table on stdout.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if len(headers) > 0 {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// formatClock renders seconds of media time as m:ss, or h:mm:ss past an hour.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatLatency renders a latency in seconds as whole milliseconds.
func formatLatency(seconds float64) string {
	return fmt.Sprintf("%.0fms", seconds*1000)
}

// parsePosition accepts seconds ("90", "12.5") or clock time ("1:30",
// "1:02:03") and returns seconds.
func parsePosition(s string) (float64, error) {
	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		return v, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// progressBar renders a fixed-width position bar.
func progressBar(position, duration float64, width int) string {
	if width <= 0 {
		return ""
	}
	if duration <= 0 {
		return strings.Repeat("─", width)
	}
	filled := int(position / duration * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// phaseIcon maps a playback phase to a transport glyph.
func phaseIcon(p core.Phase) string {
	switch p {
	case core.PhasePlaying:
		return "▶"
	case core.PhasePaused:
		return "⏸"
	case core.PhaseLoading:
		return "…"
	default:
		return "■"
	}
}

// connIcon marks device connectivity.
func connIcon(connected bool) string {
	if connected {
		return "●"
	}
	return "○"
}
