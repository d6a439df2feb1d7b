// Package record captures both directions of a call's audio and merges
// them into a single playable recording at call end. Appends are cheap
// and never block the real-time path; the expensive merge, expansion and
// encoding run on a background worker pool after the call stops.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/web3mammon/sonic-prism-core/pkg/core/audio"
)

// Segment is one captured audio span with its arrival or send time.
type Segment struct {
	At   time.Time
	Data []byte
}

type recording struct {
	callID   string
	started  time.Time
	mu       sync.Mutex
	active   bool
	inbound  []Segment
	outbound []Segment
}

// Recorder owns all active call recordings and the finalize worker pool.
type Recorder struct {
	dir         string
	onDebug     func(category, message string)
	onFinalized func(callID, path string, duration time.Duration)

	mu     sync.Mutex
	active map[string]*recording
	closed bool

	jobs chan *recording
	wg   sync.WaitGroup
}

// New creates a Recorder writing finalized WAV files to dir, with the
// given number of finalize workers.
func New(dir string, workers int) *Recorder {
	if workers < 1 {
		workers = 1
	}
	r := &Recorder{
		dir:    dir,
		active: make(map[string]*recording),
		jobs:   make(chan *recording, 64),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// SetCallbacks sets the diagnostics and completion callbacks. The
// completion callback receives the finalize processing time.
func (r *Recorder) SetCallbacks(
	onDebug func(category, message string),
	onFinalized func(callID, path string, duration time.Duration),
) {
	r.onDebug = onDebug
	r.onFinalized = onFinalized
}

// Start opens recording for a call. Idempotent per call id.
func (r *Recorder) Start(callID string) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating recordings dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[callID]; exists {
		return nil
	}
	r.active[callID] = &recording{callID: callID, started: time.Now(), active: true}
	r.debug("RECORD", "recording started for "+callID)
	return nil
}

// Active reports whether a call is currently being recorded.
func (r *Recorder) Active(callID string) bool {
	r.mu.Lock()
	rec := r.active[callID]
	r.mu.Unlock()
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.active
}

// AddInbound appends caller audio. The data is copied, so the caller may
// reuse its buffer.
func (r *Recorder) AddInbound(callID string, at time.Time, data []byte) {
	r.append(callID, at, data, true)
}

// AddOutbound appends assistant audio tagged with its send time.
func (r *Recorder) AddOutbound(callID string, at time.Time, data []byte) {
	r.append(callID, at, data, false)
}

func (r *Recorder) append(callID string, at time.Time, data []byte, inbound bool) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	rec := r.active[callID]
	r.mu.Unlock()
	if rec == nil {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.active {
		return
	}
	seg := Segment{At: at, Data: append([]byte(nil), data...)}
	if inbound {
		rec.inbound = append(rec.inbound, seg)
	} else {
		rec.outbound = append(rec.outbound, seg)
	}
}

// Stop marks the recording inactive and enqueues finalization. Late
// appends after Stop are dropped. A Stop that lands after Close
// finalizes on the calling goroutine instead of enqueuing.
func (r *Recorder) Stop(callID string) {
	r.mu.Lock()
	rec := r.active[callID]
	delete(r.active, callID)
	r.mu.Unlock()
	if rec == nil {
		return
	}

	rec.mu.Lock()
	rec.active = false
	rec.mu.Unlock()

	// The enqueue holds r.mu so it cannot race the channel close. The
	// workers never take r.mu, so a full queue only delays the caller.
	r.mu.Lock()
	closed := r.closed
	if !closed {
		r.jobs <- rec
	}
	r.mu.Unlock()

	if closed {
		if err := r.finalize(rec); err != nil {
			r.debug("RECORD", fmt.Sprintf("finalize failed for %s: %v", rec.callID, err))
		}
	}
}

// Close drains the queue and waits for all finalizations to complete.
// Stops arriving after Close still finalize, synchronously.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for rec := range r.jobs {
		if err := r.finalize(rec); err != nil {
			// A lost recording never affects the live call path.
			r.debug("RECORD", fmt.Sprintf("finalize failed for %s: %v", rec.callID, err))
		}
	}
}

func (r *Recorder) finalize(rec *recording) error {
	start := time.Now()
	merged := Merge(rec.inbound, rec.outbound)
	if len(merged) == 0 {
		return fmt.Errorf("no audio captured for %s", rec.callID)
	}

	var total int
	for _, seg := range merged {
		total += len(seg.Data)
	}
	encoded := make([]byte, 0, total)
	for _, seg := range merged {
		encoded = append(encoded, seg.Data...)
	}

	samples := audio.ExpandMuLaw(encoded)
	audio.Normalize(samples)

	path := filepath.Join(r.dir, fmt.Sprintf("call_%s_%s.wav", rec.callID, rec.started.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating recording file: %w", err)
	}
	if err := audio.WriteWAV(f, samples); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing recording file: %w", err)
	}

	r.debug("RECORD", fmt.Sprintf("finalized %s (%d bytes in %v)", path, total, time.Since(start)))
	if r.onFinalized != nil {
		r.onFinalized(rec.callID, path, time.Since(start))
	}
	return nil
}

// Merge interleaves the two direction buffers into one timestamp-sorted
// sequence. The sort is stable: segments with equal timestamps keep
// inbound-before-outbound order.
func Merge(inbound, outbound []Segment) []Segment {
	merged := make([]Segment, 0, len(inbound)+len(outbound))
	merged = append(merged, inbound...)
	merged = append(merged, outbound...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].At.Before(merged[j].At)
	})
	return merged
}

func (r *Recorder) debug(category, message string) {
	if r.onDebug != nil {
		r.onDebug(category, message)
	}
}
