// Package loadtest drives a sync engine with concurrent writers and readers
// and reports latency percentiles for each side.
//
// Writers go through the engine's write path (remote write, then resync),
// so write latency includes the remote round trip. Readers hit the
// published registry and check that every snapshot they observe is
// well-formed and that versions never go backwards.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// Options configures a run.
type Options struct {
	// Writers is the number of concurrent writer goroutines.
	Writers int

	// WritesPerWriter is how many writes each writer performs. The first
	// write of each writer is an Add, the rest are Updates of that spot.
	WritesPerWriter int

	// Readers is the number of concurrent reader goroutines. Readers run
	// until every writer is done.
	Readers int

	// Center and RadiusKm bound the generated spots and the reader queries.
	CenterLat float64
	CenterLon float64
	RadiusKm  float64

	// Seed makes generated spots reproducible.
	Seed int64
}

// DefaultOptions returns a small run centered on Amsterdam.
func DefaultOptions() Options {
	return Options{
		Writers:         8,
		WritesPerWriter: 10,
		Readers:         4,
		CenterLat:       52.3676,
		CenterLon:       4.9041,
		RadiusKm:        2,
		Seed:            42,
	}
}

// LatencyStats summarizes a set of operation durations.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Ops    int           `json:"ops"`
	Errors int           `json:"errors"`
}

// Result captures one run.
type Result struct {
	Options  Options       `json:"options"`
	Writes   LatencyStats  `json:"writes"`
	Reads    LatencyStats  `json:"reads"`
	Elapsed  time.Duration `json:"elapsed"`
	Spots    int           `json:"spots"`
	Version  uint64        `json:"version"`
	MemDelta int64         `json:"mem_delta_bytes"`

	// WritesPerSecond counts successful writes only.
	WritesPerSecond float64 `json:"writes_per_second"`
}

// ErrInconsistent is returned when a reader observes a malformed snapshot
// or a written spot is missing from the final one.
var ErrInconsistent = errors.New("inconsistent snapshot")

// Run executes a load test against a started engine. Spots it creates use
// ids prefixed with "load-" and are left in place.
func Run(ctx context.Context, s spotsync.Syncer, opts Options) (*Result, error) {
	if opts.Writers <= 0 || opts.WritesPerWriter <= 0 {
		return nil, fmt.Errorf("writers and writes per writer must be positive")
	}
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = DefaultOptions().RadiusKm
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	before := heapAlloc()
	start := time.Now()

	var (
		writerWG sync.WaitGroup
		readerWG sync.WaitGroup
		writes   = make(chan sample, opts.Writers*opts.WritesPerWriter)
		reads    = make(chan sample, 1024)
		faults   = make(chan error, opts.Readers+opts.Writers)
		done     = make(chan struct{})
	)

	spots := Generate(opts)

	for i := 0; i < opts.Writers; i++ {
		writerWG.Add(1)
		go func(w int) {
			defer writerWG.Done()
			runWriter(ctx, s, spots[w], opts.WritesPerWriter, writes)
		}(i)
	}

	var readSamples []sample
	collected := make(chan struct{})
	go func() {
		for r := range reads {
			readSamples = append(readSamples, r)
		}
		close(collected)
	}()

	for i := 0; i < opts.Readers; i++ {
		readerWG.Add(1)
		go func(r int) {
			defer readerWG.Done()
			if err := runReader(s, opts, done, reads); err != nil {
				faults <- fmt.Errorf("reader %d: %w", r, err)
				cancel()
			}
		}(i)
	}

	writerWG.Wait()
	close(done)
	readerWG.Wait()
	close(reads)
	close(writes)
	close(faults)
	<-collected

	elapsed := time.Since(start)

	var writeSamples []sample
	for w := range writes {
		writeSamples = append(writeSamples, w)
	}

	var errs []error
	for err := range faults {
		errs = append(errs, err)
	}

	result := &Result{
		Options:  opts,
		Writes:   Summarize(writeSamples),
		Reads:    Summarize(readSamples),
		Elapsed:  elapsed,
		Spots:    s.Registry().Len(),
		Version:  s.Registry().Version(),
		MemDelta: int64(heapAlloc()) - int64(before),
	}
	if ok := result.Writes.Ops - result.Writes.Errors; elapsed > 0 {
		result.WritesPerSecond = float64(ok) / elapsed.Seconds()
	}

	if result.Writes.Errors == 0 {
		if err := verifyWritten(s, spots); err != nil {
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

// sample is one timed operation.
type sample struct {
	d   time.Duration
	err error
}

func runWriter(ctx context.Context, s spotsync.Syncer, sp spot.ParkingSpot, n int, out chan<- sample) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		var err error
		began := time.Now()
		if i == 0 {
			err = s.Add(ctx, sp)
		} else {
			sp.PricePerHour = float64(i) / 2
			sp.Availability = availability(i)
			err = s.Update(ctx, sp)
		}
		out <- sample{d: time.Since(began), err: err}
	}
}

func runReader(s spotsync.Syncer, opts Options, done <-chan struct{}, out chan<- sample) error {
	reg := s.Registry()
	var last uint64
	for {
		select {
		case <-done:
			return nil
		default:
		}

		began := time.Now()
		snap := reg.Snapshot()
		_ = reg.Nearby(opts.CenterLat, opts.CenterLon, opts.RadiusKm)
		out <- sample{d: time.Since(began)}

		if snap.Version < last {
			return fmt.Errorf("%w: version went from %d to %d", ErrInconsistent, last, snap.Version)
		}
		last = snap.Version
		for _, sp := range snap.Spots {
			if err := sp.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInconsistent, err)
			}
		}

		time.Sleep(time.Millisecond)
	}
}

func verifyWritten(s spotsync.Syncer, spots []spot.ParkingSpot) error {
	reg := s.Registry()
	for _, sp := range spots {
		if _, ok := reg.Lookup(sp.ID); !ok {
			return fmt.Errorf("%w: spot %s missing after run", ErrInconsistent, sp.ID)
		}
	}
	return nil
}

// Generate returns one spot per writer, scattered within the radius of the
// center. The same options always produce the same spots.
func Generate(opts Options) []spot.ParkingSpot {
	rng := rand.New(rand.NewSource(opts.Seed))
	// Roughly 111km per degree of latitude; stay inside the radius.
	spread := opts.RadiusKm / 111 * 0.7

	out := make([]spot.ParkingSpot, opts.Writers)
	for i := range out {
		lat := opts.CenterLat + (rng.Float64()*2-1)*spread
		lon := opts.CenterLon + (rng.Float64()*2-1)*spread
		sp := spot.New(fmt.Sprintf("Load spot %d", i), lat, lon, availability(i), float64(rng.Intn(8)), "")
		sp.ID = fmt.Sprintf("load-%04d", i)
		out[i] = sp
	}
	return out
}

func availability(i int) string {
	if i%3 == 0 {
		return "Occupied"
	}
	return spot.DefaultAvailability
}

// Summarize computes latency statistics; failed operations count toward
// Errors but not toward the percentiles.
func Summarize(samples []sample) LatencyStats {
	stats := LatencyStats{Ops: len(samples)}

	durations := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if s.err != nil {
			stats.Errors++
			continue
		}
		durations = append(durations, s.d)
	}
	if len(durations) == 0 {
		return stats
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	stats.Min = durations[0]
	stats.Max = durations[len(durations)-1]
	stats.Mean = sum / time.Duration(len(durations))
	stats.P50 = durations[len(durations)*50/100]
	stats.P95 = durations[len(durations)*95/100]
	stats.P99 = durations[len(durations)*99/100]
	return stats
}

func heapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// FormatDuration renders d with a unit suited to its size.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
