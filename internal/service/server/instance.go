package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"
)

// errAlreadyRunning is returned when another server process is found.
var errAlreadyRunning = errors.New("another alarm core server is already running")

// processLister lists the processes of the host.
type processLister func() ([]ps.Process, error)

// ensureSingleInstance fails when another process runs the same executable.
func ensureSingleInstance(list processLister, executable string) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%w (pid %d)", errAlreadyRunning, process.Pid())
	}

	return nil
}

// executableName returns the base name of the running binary.
func executableName() string {
	path, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}

	return filepath.Base(path)
}
