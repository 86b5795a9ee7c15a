package prof

import (
	"errors"
	"os"
	"sync"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates another session is sampling the CPU.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an unknown profile name.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a runtime/pprof profile.
type Profile string

// Snapshot profiles.
const (
	ProfileHeap      Profile = "heap"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// Config selects what a Session records. Empty paths are skipped.
type Config struct {
	CPU  string // CPU profile output path
	Heap string // heap snapshot written at Stop

	// Contention enables block and mutex sampling for the session, for
	// inspecting queue lock contention over /debug/pprof.
	Contention bool
}

// Session is one profiling run.
type Session struct {
	config Config
	cpu    *os.File
	once   sync.Once
}
