//go:build profile

package prof

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"

	"github.com/ardnew/softnic/pkg"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	// active guards against two sessions profiling the CPU at once.
	activeMu sync.Mutex
	active   bool
)

// Start begins a profiling session. CPU sampling starts immediately when
// c.CPU is set; snapshot profiles are written by Stop.
func Start(c Config) (*Session, error) {
	s := &Session{config: c}
	if c.Contention {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(1)
	}
	if c.CPU == "" {
		return s, nil
	}

	activeMu.Lock()
	defer activeMu.Unlock()
	if active {
		return nil, ErrCPUProfileActive
	}

	f, err := os.Create(c.CPU)
	if err != nil {
		return nil, err
	}
	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	active = true
	s.cpu = f

	pkg.LogDebug(pkg.ComponentAdapter, "cpu profile started", "path", c.CPU)
	return s, nil
}

// Stop ends CPU sampling and writes the configured snapshot profiles.
// Calling it more than once is a no-op.
func (s *Session) Stop() error {
	var errs []error
	s.once.Do(func() {
		if s.cpu != nil {
			rpprof.StopCPUProfile()
			errs = append(errs, s.cpu.Close())
			activeMu.Lock()
			active = false
			activeMu.Unlock()
		}
		if s.config.Heap != "" {
			runtime.GC()
			errs = append(errs, write(ProfileHeap, s.config.Heap))
		}
		if s.config.Contention {
			runtime.SetBlockProfileRate(0)
			runtime.SetMutexProfileFraction(0)
		}
	})
	return errors.Join(errs...)
}

func write(p Profile, path string) error {
	sp := rpprof.Lookup(string(p))
	if sp == nil {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, p)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sp.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Register adds the pprof handlers under /debug/pprof/ on mux.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
