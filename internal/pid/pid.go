// Package pid samples the memory of a running process from procfs. It is
// used by the runner inside the sandbox container to report peak memory.
//
// PROC Reference - https://man7.org/linux/man-pages/man5/proc.5.html
package pid

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/memory"
)

type ProcPidState string

const (
	ProcPidRunning  ProcPidState = "R"
	ProcPidSleeping ProcPidState = "S"
	ProcPidWaiting  ProcPidState = "D"
	ProcPidZombie   ProcPidState = "Z"
	ProcPidStopped  ProcPidState = "T"
	ProcPidDead     ProcPidState = "X"
)

// fields after the command name, counted from the state field.
const (
	stateField = 0
	rssField   = 21
)

const sampleInterval = 10 * time.Millisecond

var ErrUnsupportedPlatform = errors.New("process statistics need procfs")

// PageSize is the size of a memory page, rss is reported in pages.
var PageSize = int64(os.Getpagesize())

// SysInfo is a single sample of a process.
type SysInfo struct {
	State  ProcPidState
	Memory memory.Memory
}

// ParseStat reads the content of /proc/<pid>/stat. The command name may hold
// spaces and parentheses so fields are counted from the last ')'.
func ParseStat(content string) (*SysInfo, error) {
	end := strings.LastIndexByte(content, ')')

	if end < 0 {
		return nil, errors.New("malformed stat: missing command name")
	}

	fields := strings.Fields(content[end+1:])

	if len(fields) <= rssField {
		return nil, errors.Errorf("malformed stat: %d fields", len(fields))
	}

	rss, err := strconv.ParseInt(fields[rssField], 10, 64)

	if err != nil {
		return nil, errors.Wrap(err, "malformed stat: rss")
	}

	return &SysInfo{
		State:  ProcPidState(fields[stateField]),
		Memory: memory.Memory(rss * PageSize),
	}, nil
}

// GetStat will return the current memory of the process.
func GetStat(pid int) (*SysInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, ErrUnsupportedPlatform
	}

	content, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))

	if err != nil {
		return nil, err
	}

	return ParseStat(string(content))
}

// StreamPid samples the process until done is closed or the process is gone.
func StreamPid(done <-chan any, pid int) <-chan *SysInfo {
	value := make(chan *SysInfo)

	go func() {
		defer close(value)

		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()

		for {
			state, err := GetStat(pid)

			if err != nil {
				log.Debug().Err(err).Int("pid", pid).Msg("stopped sampling pid")
				return
			}

			select {
			case <-done:
				return
			case value <- state:
			}

			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	return value
}

// PeakTracker records the highest memory seen while streaming a process.
type PeakTracker struct {
	peak     atomic.Int64
	stop     chan any
	stopOnce sync.Once
	done     chan struct{}
}

// TrackPeak starts sampling pid in the background.
func TrackPeak(pid int) *PeakTracker {
	tracker := &PeakTracker{stop: make(chan any), done: make(chan struct{})}

	go func() {
		defer close(tracker.done)

		for sample := range StreamPid(tracker.stop, pid) {
			tracker.Observe(sample.Memory)
		}
	}()

	return tracker
}

// Stop ends the sampling and returns the peak.
func (p *PeakTracker) Stop() memory.Memory {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done

	return p.Peak()
}

// Observe records a sample, keeping it when it is the highest so far.
func (p *PeakTracker) Observe(sample memory.Memory) {
	for {
		current := p.peak.Load()

		if int64(sample) <= current || p.peak.CompareAndSwap(current, int64(sample)) {
			return
		}
	}
}

func (p *PeakTracker) Peak() memory.Memory {
	return memory.Memory(p.peak.Load())
}
