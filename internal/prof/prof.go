// Package prof wraps pprof for the duration of one command.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// Paths names the profile outputs; empty paths are skipped.
type Paths struct {
	CPU  string
	Heap string
}

// Session is a running set of profiles. Stop is safe to call more than once.
type Session struct {
	paths   Paths
	cpuFile *os.File
	stopped bool
}

// Start begins CPU profiling when p.CPU is set.
func Start(p Paths) (*Session, error) {
	s := &Session{paths: p}
	if p.CPU == "" {
		return s, nil
	}
	f, err := os.Create(p.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to start cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start cpu profile: %w", err)
	}
	s.cpuFile = f
	return s, nil
}

// Stop ends CPU profiling and writes the heap profile.
func (s *Session) Stop() error {
	if s == nil || s.stopped {
		return nil
	}
	s.stopped = true

	var errs []error
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := s.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cpu profile: %w", err))
		}
		s.cpuFile = nil
	}
	if s.paths.Heap != "" {
		if err := writeHeap(s.paths.Heap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return f.Close()
}
