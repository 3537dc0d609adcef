package lidar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oht50/firmware/internal/monitoring"
	"github.com/oht50/firmware/internal/timeutil"
)

// State is the facade's lifecycle state (spec.md §4.E).
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateScanning
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateScanning:
		return "scanning"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// maxConsecutiveErrors bounds the scan loop's tolerance for transient
// transport errors before the facade transitions to StateError
// (spec.md §4.E "Failure semantics").
const maxConsecutiveErrors = 20

// DeviceInfo is the parsed 20-byte GET_INFO response (spec.md §6.1).
type DeviceInfo struct {
	Model           uint8
	FirmwareVersion uint8
	HardwareVersion uint8
	Serial          [4]byte
	HealthStatus    uint8
}

// Facade owns the Serial Transport, the scratch/published Scan pair,
// the quality pipeline configuration, and the scan loop's goroutine —
// mirroring the teacher's SerialMux ownership shape, generalized from
// "fan lines out to subscribers" to "run B→C→D and publish under
// lock" (spec.md §4.E, §5).
type Facade struct {
	clock   timeutil.Clock
	factory TransportFactory

	mu    sync.Mutex
	state State

	cfg        Config
	calib      Calibration
	msCfg      MultiSampleConfig
	pipeline   Pipeline
	calibTrack *calibrationDriftTracker

	transport Transport

	published      Scan
	haveScan       bool
	verdict        SafetyVerdict
	errorCount     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFacade returns a facade using clock for timestamps and factory to
// open transports. Production code passes OpenSerialTransport; tests
// pass a factory that returns a *SimulatedTransport.
func NewFacade(clock timeutil.Clock, factory TransportFactory) *Facade {
	return &Facade{
		clock:   clock,
		factory: factory,
		state:   StateUninitialized,
		calib:   DefaultCalibration(),
		msCfg:   DefaultMultiSampleConfig(),
	}
}

// Init validates cfg, opens the transport, and installs default
// pipeline/calibration state.
func (f *Facade) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	transport, err := f.factory(cfg.DevicePath, cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportIO, err)
	}

	f.transport = transport
	f.cfg = cfg
	f.pipeline, f.calibTrack = BuildPipeline(f.calib, f.msCfg)
	f.verdict = EvaluateSafety(Scan{}, cfg)
	f.state = StateInitialized
	monitoring.Logf("lidar: initialized on %s", cfg.DevicePath)
	return nil
}

// Configure replaces the quality-pipeline configuration. Per spec.md
// §5's ordering guarantee, it takes effect on the next scan, never
// mid-scan, because it only runs while the facade lock is held and
// the scan loop only reads f.pipeline while holding the same lock to
// publish.
func (f *Facade) Configure(calib Calibration, ms MultiSampleConfig) error {
	if err := ms.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calib = calib
	f.msCfg = ms
	f.pipeline, f.calibTrack = BuildPipeline(calib, ms)
	return nil
}

// RecordCalibrationCheck feeds one (reference, measured) observation
// from an operator calibration check into the drift tracker backing
// the current pipeline's calibration stage (spec.md §4.C). It takes
// effect starting with the next completed scan.
func (f *Facade) RecordCalibrationCheck(point CalibrationPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateUninitialized {
		return ErrNotInitialized
	}
	f.calibTrack.recordCheck(point)
	return nil
}

// StartScanning launches the dedicated scan loop goroutine.
func (f *Facade) StartScanning() error {
	f.mu.Lock()
	if f.state == StateUninitialized {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	if f.state == StateScanning {
		f.mu.Unlock()
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.state = StateScanning
	f.errorCount = 0
	transport := f.transport
	f.mu.Unlock()

	if err := transport.SendCommand(commandFrame(cmdStartScan)); err != nil {
		f.mu.Lock()
		f.state = StateInitialized
		f.mu.Unlock()
		return fmt.Errorf("%w: start scan: %v", ErrTransportIO, err)
	}

	f.wg.Add(1)
	go f.scanLoop(ctx, transport)
	return nil
}

// scanLoop reads into a thread-local buffer and only acquires the
// facade lock to swap in a newly published scan — it never holds the
// lock across a blocking read (spec.md §5, §9).
func (f *Facade) scanLoop(ctx context.Context, transport Transport) {
	defer f.wg.Done()

	assembler := NewAssembler(f.clock)
	buf := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := transport.ReadBytes(buf)
		if err != nil {
			f.recordError(err)
			if f.enteredErrorState() {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		scan := assembler.Feed(buf[:n])
		if !scan.ScanComplete {
			continue
		}

		f.mu.Lock()
		processed := f.pipeline.Apply(scan)
		f.published = processed
		f.haveScan = true
		f.verdict = EvaluateSafety(processed, f.cfg)
		f.errorCount = 0
		f.mu.Unlock()
	}
}

func (f *Facade) recordError(err error) {
	f.mu.Lock()
	f.errorCount++
	monitoring.Logf("lidar: scan loop read error: %v (count=%d)", err, f.errorCount)
	f.mu.Unlock()
}

func (f *Facade) enteredErrorState() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errorCount >= maxConsecutiveErrors {
		f.state = StateError
		monitoring.Logf("lidar: facade entered error state after %d consecutive errors", f.errorCount)
		return true
	}
	return false
}

// StopScanning joins the scan thread and returns to StateInitialized.
// It always succeeds if scanning is not active.
func (f *Facade) StopScanning() error {
	f.mu.Lock()
	if f.state != StateScanning {
		f.mu.Unlock()
		return nil
	}
	cancel := f.cancel
	transport := f.transport
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
	if transport != nil {
		transport.SendCommand(commandFrame(cmdStopScan))
	}

	f.mu.Lock()
	if f.state == StateScanning {
		f.state = StateInitialized
	}
	f.mu.Unlock()
	return nil
}

// GetScanData copies out the last published scan.
func (f *Facade) GetScanData() (Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateUninitialized {
		return Scan{}, ErrNotInitialized
	}
	if !f.haveScan {
		return Scan{}, nil
	}
	return f.published.Clone(), nil
}

// CheckSafety returns the latest verdict.
func (f *Facade) CheckSafety() (SafetyVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateUninitialized {
		return SafetyVerdict{}, ErrNotInitialized
	}
	return f.verdict, nil
}

// GetDeviceInfo issues GET_INFO and parses the 20-byte response.
func (f *Facade) GetDeviceInfo() (DeviceInfo, error) {
	f.mu.Lock()
	if f.state == StateUninitialized {
		f.mu.Unlock()
		return DeviceInfo{}, ErrNotInitialized
	}
	transport := f.transport
	f.mu.Unlock()

	if err := transport.SendCommand(commandFrame(cmdGetInfo)); err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}

	buf := make([]byte, 20)
	n, err := transport.ReadBytes(buf)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	if n < 8 {
		return DeviceInfo{}, ErrProtocolShortResponse
	}

	info := DeviceInfo{
		Model:           buf[0],
		FirmwareVersion: buf[1],
		HardwareVersion: buf[2],
		HealthStatus:    buf[7],
	}
	copy(info.Serial[:], buf[3:7])
	return info, nil
}

// HealthCheck issues GET_HEALTH and returns ErrUnhealthy unless the
// device reports health byte 0.
func (f *Facade) HealthCheck() error {
	f.mu.Lock()
	if f.state == StateUninitialized {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	transport := f.transport
	f.mu.Unlock()

	if err := transport.SendCommand(commandFrame(cmdGetHealth)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	buf := make([]byte, 1)
	n, err := transport.ReadBytes(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	if n < 1 {
		return ErrProtocolShortResponse
	}
	if buf[0] != 0 {
		return ErrUnhealthy
	}
	return nil
}

// Reset issues a reset command, waits 2s via the injected clock, and
// rearms. It may be issued from Initialized or Scanning; if scanning,
// scanning is stopped first.
func (f *Facade) Reset() error {
	f.mu.Lock()
	if f.state == StateUninitialized {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	wasScanning := f.state == StateScanning
	transport := f.transport
	f.mu.Unlock()

	if wasScanning {
		if err := f.StopScanning(); err != nil {
			return err
		}
	}

	if err := transport.SendCommand(commandFrame(cmdReset)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	f.clock.Sleep(2 * time.Second)

	f.mu.Lock()
	f.state = StateInitialized
	f.errorCount = 0
	f.mu.Unlock()
	return nil
}

// Deinit stops scanning, closes the transport, and resets state —
// preserving the lock primitive, per spec.md §4.E.
func (f *Facade) Deinit() error {
	f.mu.Lock()
	if f.state == StateUninitialized {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	f.mu.Unlock()

	f.StopScanning()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transport != nil {
		f.transport.Close()
	}
	f.transport = nil
	f.haveScan = false
	f.published = Scan{}
	f.verdict = SafetyVerdict{}
	f.errorCount = 0
	f.state = StateUninitialized
	return nil
}

// State returns the facade's current lifecycle state.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
