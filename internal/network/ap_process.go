package network

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/oht50/firmware/internal/timeutil"
)

// ProcessHandle is a running daemon process (hostapd, dnsmasq). Stop
// escalates from SIGTERM to SIGKILL the way the teacher's main.go
// escalates shutdown via signal.NotifyContext, adapted here to a
// single child process instead of the whole service.
type ProcessHandle interface {
	Pid() int
	Signal(sig os.Signal) error
	Wait() error
}

// ProcessLauncher starts a daemon and returns a handle to it. Tests
// substitute MockProcessLauncher so the AP controller's lifecycle
// logic runs without a real hostapd binary.
type ProcessLauncher interface {
	Launch(name string, args []string, configPath string) (ProcessHandle, error)
}

type realProcessHandle struct {
	cmd *exec.Cmd
}

func (h *realProcessHandle) Pid() int { return h.cmd.Process.Pid }

func (h *realProcessHandle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}

func (h *realProcessHandle) Wait() error {
	return h.cmd.Wait()
}

// RealProcessLauncher launches daemons via os/exec.
type RealProcessLauncher struct{}

func NewRealProcessLauncher() *RealProcessLauncher {
	return &RealProcessLauncher{}
}

func (RealProcessLauncher) Launch(name string, args []string, configPath string) (ProcessHandle, error) {
	cmd := exec.Command(name, append(args, configPath)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: launch %s: %v", ErrApManagerFailed, name, err)
	}
	return &realProcessHandle{cmd: cmd}, nil
}

// StopProcess sends SIGTERM, waits up to gracePeriod, and escalates
// to SIGKILL if the process has not exited by then. The wait is driven
// by clock.NewTimer rather than time.After so tests can advance a
// MockClock instead of sleeping in wall-clock time, the same pattern
// the facade's Reset and the fallback supervisor's HandleTick use.
func StopProcess(clock timeutil.Clock, h ProcessHandle, gracePeriod time.Duration) error {
	if err := h.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("%w: SIGTERM: %v", ErrApManagerFailed, err)
	}

	done := make(chan error, 1)
	go func() { done <- h.Wait() }()

	timer := clock.NewTimer(gracePeriod)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C():
		if err := h.Signal(syscall.SIGKILL); err != nil {
			return fmt.Errorf("%w: SIGKILL: %v", ErrApManagerFailed, err)
		}
		return <-done
	}
}

// MockProcessHandle implements ProcessHandle for tests. ExitOnTerm
// controls whether SIGTERM alone is enough to make Wait return, or
// whether the test wants to force the SIGKILL escalation path.
type MockProcessHandle struct {
	PidValue  int
	ExitOnTerm bool
	Signals   []os.Signal
	WaitErr   error
	ExitAfter chan struct{}
}

func NewMockProcessHandle(pid int) *MockProcessHandle {
	return &MockProcessHandle{PidValue: pid, ExitOnTerm: true, ExitAfter: make(chan struct{})}
}

func (m *MockProcessHandle) Pid() int { return m.PidValue }

func (m *MockProcessHandle) Signal(sig os.Signal) error {
	m.Signals = append(m.Signals, sig)
	shouldExit := sig == syscall.SIGKILL || (sig == syscall.SIGTERM && m.ExitOnTerm)
	if shouldExit {
		select {
		case <-m.ExitAfter:
		default:
			close(m.ExitAfter)
		}
	}
	return nil
}

func (m *MockProcessHandle) Wait() error {
	<-m.ExitAfter
	return m.WaitErr
}

// MockProcessLauncher records Launch calls and returns a scripted handle.
type MockProcessLauncher struct {
	Handle  *MockProcessHandle
	LaunchErr error
	Launches []struct {
		Name       string
		Args       []string
		ConfigPath string
	}
}

func (m *MockProcessLauncher) Launch(name string, args []string, configPath string) (ProcessHandle, error) {
	m.Launches = append(m.Launches, struct {
		Name       string
		Args       []string
		ConfigPath string
	}{name, args, configPath})
	if m.LaunchErr != nil {
		return nil, m.LaunchErr
	}
	if m.Handle == nil {
		m.Handle = NewMockProcessHandle(1)
	}
	return m.Handle, nil
}
