package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/oht50/firmware/internal/fsutil"
	"github.com/oht50/firmware/internal/monitoring"
	"github.com/oht50/firmware/internal/timeutil"
)

// APState is the hosted access point's lifecycle state (spec.md §4.G).
type APState int

const (
	APDisabled APState = iota
	APStarting
	APRunning
	APStopping
	APError
)

func (s APState) String() string {
	switch s {
	case APDisabled:
		return "disabled"
	case APStarting:
		return "starting"
	case APRunning:
		return "running"
	case APStopping:
		return "stopping"
	case APError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	hostapdGracePeriod = 3 * time.Second
	hostapdBinary      = "hostapd"
)

// APController brings up and tears down a hosted access point using a
// generated hostapd.conf and an injected ProcessLauncher, mirroring
// the shell-out isolation already used by StationController: the
// controller never calls os/exec directly.
type APController struct {
	fs       fsutil.FileSystem
	launcher ProcessLauncher
	confDir  string
	iface    string

	mu      sync.Mutex
	state   APState
	cfg     APConfig
	handle  ProcessHandle
	clients map[string]APClient
	addr    AddrConfigurator
}

// NewAPController builds a controller that writes its hostapd.conf
// under confDir and hosts the AP on the given wireless interface.
func NewAPController(fs fsutil.FileSystem, launcher ProcessLauncher, confDir, iface string) *APController {
	return &APController{
		fs:       fs,
		launcher: launcher,
		confDir:  confDir,
		iface:    iface,
		state:    APDisabled,
		clients:  make(map[string]APClient),
	}
}

func (a *APController) State() APState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetAddrConfigurator installs the interface-addressing backend Start
// uses to bring the wireless interface up with its static IPv4
// address before hostapd is launched (spec.md §4.G, §6.3). The
// default, nil, skips interface addressing — used by tests that drive
// a simulated interface with no real kernel link to configure.
func (a *APController) SetAddrConfigurator(addr AddrConfigurator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addr = addr
}

// Start validates cfg, renders hostapd.conf, and launches hostapd.
// The controller refuses to start twice and moves to APError if
// interface addressing, writing hostapd.conf or launching hostapd
// fails. It enters APRunning as soon as the launch returns; hostapd
// exiting after that is not detected.
func (a *APController) Start(cfg APConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.state != APDisabled {
		a.mu.Unlock()
		return fmt.Errorf("%w: ap controller already %s", ErrAlreadyRunning, a.state)
	}
	a.state = APStarting
	a.cfg = cfg
	addr := a.addr
	a.mu.Unlock()

	if addr != nil {
		cidr, err := cidrFor(cfg.IPAddress, cfg.Netmask)
		if err != nil {
			a.setError()
			return err
		}
		if err := addr.LinkUp(a.iface); err != nil {
			a.setError()
			return fmt.Errorf("%w: bring up %s: %v", ErrApManagerFailed, a.iface, err)
		}
		if err := addr.SetAddress(a.iface, cidr); err != nil {
			a.setError()
			return err
		}
	}

	confPath := a.confDir + "/hostapd.conf"
	rendered, err := renderHostapdConf(a.iface, cfg)
	if err != nil {
		a.setError()
		return err
	}
	if err := a.fs.WriteFile(confPath, []byte(rendered), 0644); err != nil {
		a.setError()
		return fmt.Errorf("%w: write hostapd.conf: %v", ErrApManagerFailed, err)
	}

	handle, err := a.launcher.Launch(hostapdBinary, []string{"-B"}, confPath)
	if err != nil {
		a.setError()
		return err
	}

	a.mu.Lock()
	a.handle = handle
	a.state = APRunning
	a.mu.Unlock()

	monitoring.Logf("network: hostapd started on %s (ssid=%s pid=%d)", a.iface, cfg.SSID, handle.Pid())
	return nil
}

func (a *APController) setError() {
	a.mu.Lock()
	a.state = APError
	a.mu.Unlock()
}

// Stop gracefully shuts down hostapd, escalating to SIGKILL if it
// does not exit within hostapdGracePeriod. clock drives the grace
// period wait, so tests can advance a MockClock instead of sleeping in
// wall-clock time.
func (a *APController) Stop(clock timeutil.Clock) error {
	a.mu.Lock()
	if a.state != APRunning && a.state != APError {
		a.mu.Unlock()
		return fmt.Errorf("%w: ap controller not running", ErrNotRunning)
	}
	handle := a.handle
	addr := a.addr
	a.state = APStopping
	a.mu.Unlock()

	var stopErr error
	if handle != nil {
		stopErr = StopProcess(clock, handle, hostapdGracePeriod)
	}

	if addr != nil {
		if err := addr.LinkDown(a.iface); err != nil {
			monitoring.Logf("network: ap stop: link down %s failed: %v", a.iface, err)
		}
	}

	a.mu.Lock()
	a.state = APDisabled
	a.handle = nil
	a.clients = make(map[string]APClient)
	a.mu.Unlock()

	monitoring.Logf("network: hostapd stopped on %s", a.iface)
	return stopErr
}

// Clients returns the currently associated stations.
func (a *APController) Clients() []APClient {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]APClient, 0, len(a.clients))
	for _, c := range a.clients {
		out = append(out, c)
	}
	return out
}

// noteClient is called by the status poller (spec.md §4.G client
// enumeration) as clients associate or refresh their signal reading.
func (a *APController) noteClient(c APClient) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[c.MAC] = c
}

// forgetClient removes a client that has disassociated.
func (a *APController) forgetClient(mac string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, mac)
}

// Kick deauthenticates one client by MAC address via a CommandBuilder
// shell-out to hostapd_cli, the same abstraction the station
// controller uses for nmcli.
func (a *APController) Kick(builder CommandBuilder, mac string) error {
	a.mu.Lock()
	_, known := a.clients[mac]
	a.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrClientNotFound, mac)
	}

	out, err := builder.BuildCommand("hostapd_cli", "-i", a.iface, "deauthenticate", mac).Run()
	if err != nil {
		return fmt.Errorf("%w: kick %s: %v", ErrApManagerFailed, mac, err)
	}
	_ = out

	a.forgetClient(mac)
	monitoring.Logf("network: kicked client %s from %s", mac, a.iface)
	return nil
}

// DHCPRange returns the lease range hostapd's dnsmasq companion
// should serve, derived from the AP's own address per spec.md §4.G.
func (a *APController) DHCPRange() (start, end string, err error) {
	a.mu.Lock()
	ip := a.cfg.IPAddress
	a.mu.Unlock()
	return dhcpRangeFor(ip)
}
