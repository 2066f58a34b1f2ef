// ABOUTME: Field tool that measures a renderer's command round-trip latency
// ABOUTME: Dials the renderer directly and times status probes; validates latency priors
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/unison-audio/unison-go/internal/control"
)

var (
	addr      = flag.String("addr", "localhost:8932", "Renderer address (host:port)")
	count     = flag.Int("count", 10, "Number of status probes")
	gap       = flag.Duration("gap", 50*time.Millisecond, "Pause between probes")
	timeout   = flag.Duration("timeout", 3*time.Second, "Per-request timeout")
	cycle     = flag.Bool("cycle", false, "Run a load/play/seek/pause cycle before probing")
	streamURL = flag.String("stream", "http://localhost:8931/streams/probe", "Stream URL for -cycle")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== Unison Renderer Probe ===")
	fmt.Printf("Dialing %s...\n", *addr)

	ctx := context.Background()
	ctl, err := control.Dial(ctx, *addr, *timeout)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer ctl.Close()

	if *cycle {
		if err := runCycle(ctx, ctl); err != nil {
			log.Fatalf("Command cycle failed: %v", err)
		}
	}

	fmt.Printf("Running %d status probes, %s apart...\n\n", *count, *gap)

	samples := make([]time.Duration, 0, *count)
	failures := 0
	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(*gap)
		}
		pctx, cancel := context.WithTimeout(ctx, *timeout)
		start := time.Now()
		st, err := ctl.Status(pctx)
		rtt := time.Since(start)
		cancel()
		if err != nil {
			failures++
			log.Printf("probe %d failed: %v", i+1, err)
			continue
		}
		samples = append(samples, rtt)
		log.Printf("probe %d: %s (position %.2fs, %s)", i+1, rtt.Round(time.Microsecond), st.Position, st.State)
	}

	if len(samples) == 0 {
		log.Fatalf("All %d probes failed", *count)
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	median := samples[len(samples)/2]

	fmt.Println()
	fmt.Printf("Probes:  %d ok, %d failed\n", len(samples), failures)
	fmt.Printf("Min:     %s\n", samples[0].Round(time.Microsecond))
	fmt.Printf("Median:  %s\n", median.Round(time.Microsecond))
	fmt.Printf("Max:     %s\n", samples[len(samples)-1].Round(time.Microsecond))
}

// runCycle drives the full renderer contract once so a device can be
// validated end to end, not just pinged.
func runCycle(ctx context.Context, ctl *control.DialedController) error {
	step := func(name string, fn func(context.Context) error) error {
		sctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		start := time.Now()
		if err := fn(sctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Printf("%-6s ok in %s", name, time.Since(start).Round(time.Microsecond))
		return nil
	}

	if err := step("load", func(c context.Context) error { return ctl.Load(c, *streamURL, 0) }); err != nil {
		return err
	}
	if err := step("play", ctl.Play); err != nil {
		return err
	}
	time.Sleep(300 * time.Millisecond)
	if err := step("seek", func(c context.Context) error { return ctl.Seek(c, 1.0) }); err != nil {
		return err
	}
	if err := step("pause", ctl.Pause); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	st, err := ctl.Status(sctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	log.Printf("status ok: position %.2fs, %s", st.Position, st.State)
	return nil
}
