// Command oht50d is the OHT-50 firmware's process root: it owns one
// *lidar.Facade and one *network.Supervisor and joins their
// goroutines on a single sync.WaitGroup, matching the teacher's root
// main.go (signal.NotifyContext + wg.Wait shutdown shape). No
// process-global singleton exists anywhere in this tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/oht50/firmware/internal/config"
	"github.com/oht50/firmware/internal/fsutil"
	"github.com/oht50/firmware/internal/lidar"
	"github.com/oht50/firmware/internal/monitoring"
	"github.com/oht50/firmware/internal/network"
	"github.com/oht50/firmware/internal/timeutil"
	"github.com/oht50/firmware/internal/version"
)

var (
	lidarDevice = flag.String("lidar-device", "/dev/ttyUSB0", "LiDAR serial device path")
	simulate    = flag.Bool("simulate", false, "Use a simulated LiDAR transport instead of a real device")
	configDir   = flag.String("config-dir", "/etc/oht50", "Persistent config directory")
	wifiIface   = flag.String("wifi-iface", "wlan0", "Station Wi-Fi interface")
	apIface     = flag.String("ap-iface", "wlan1", "Hosted access point interface")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("oht50d %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	runID := uuid.New().String()
	monitoring.Logf("oht50d: starting run %s version=%s", runID, version.Version)

	clock := timeutil.RealClock{}

	store := config.NewStore(fsutil.OSFileSystem{}, *configDir)
	netCfg, err := store.LoadNetwork()
	if err != nil {
		log.Fatalf("oht50d: load network.conf: %v", err)
	}
	roamingCfg, err := store.LoadRoaming()
	if err != nil {
		log.Fatalf("oht50d: load roaming.conf: %v", err)
	}

	facade, err := startLidar(clock)
	if err != nil {
		log.Fatalf("oht50d: %v", err)
	}

	supervisor, err := startNetwork(clock, netCfg, roamingCfg)
	if err != nil {
		log.Fatalf("oht50d: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runFallbackTicker(ctx, clock, supervisor)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		monitoring.Logf("oht50d: signal received, shutting down")
		if err := supervisor.Disable(); err != nil {
			monitoring.Logf("oht50d: disable supervisor: %v", err)
		}
		if err := facade.Deinit(); err != nil {
			monitoring.Logf("oht50d: lidar deinit: %v", err)
		}
	}()

	wg.Wait()
	monitoring.Logf("oht50d: graceful shutdown complete, run %s", runID)
}

// startLidar wires the Serial Transport (real or simulated), the
// Lidar Facade, and starts the scan loop.
func startLidar(clock timeutil.Clock) (*lidar.Facade, error) {
	var factory lidar.TransportFactory
	if *simulate {
		sim := lidar.NewSimulatedTransport()
		factory = func(string, int) (lidar.Transport, error) { return sim, nil }
	} else {
		factory = lidar.OpenSerialTransport
	}

	facade := lidar.NewFacade(clock, factory)
	cfg := lidar.DefaultConfig(*lidarDevice)
	if err := facade.Init(cfg); err != nil {
		return nil, fmt.Errorf("lidar init: %w", err)
	}
	if err := facade.StartScanning(); err != nil {
		return nil, fmt.Errorf("lidar start scanning: %w", err)
	}
	monitoring.Logf("oht50d: lidar scanning on %s", cfg.DevicePath)
	return facade, nil
}

// startNetwork wires the Station and AP controllers and the Fallback
// Supervisor, installing the roaming policy loaded from roaming.conf.
func startNetwork(clock timeutil.Clock, netCfg config.NetworkFileConfig, roamingCfg config.RoamingFileConfig) (*network.Supervisor, error) {
	builder := network.NewRealCommandBuilder()
	wifiCap := network.NewNMCLICapability(builder, *wifiIface)
	station := network.NewStationController(clock, wifiCap)
	if err := station.SetRoamingConfig(roamingCfg.ToRoamingConfig()); err != nil {
		return nil, fmt.Errorf("apply roaming config: %w", err)
	}

	ap := network.NewAPController(fsutil.OSFileSystem{}, network.NewRealProcessLauncher(), *configDir, *apIface)
	ap.SetAddrConfigurator(network.NewShellAddrConfigurator(builder))

	apCfg := network.APConfig{
		SSID:              "oht50-fallback",
		Password:          "Change-Me-123",
		Security:          network.SecurityWPA2,
		IPAddress:         "192.168.50.1",
		Netmask:           "255.255.255.0",
		Channel:           6,
		MaxClients:        8,
		AutoFallback:      true,
		FallbackTimeoutMS: 15000,
	}

	supervisor, err := network.NewSupervisor(clock, station, ap, network.DefaultFallbackConfig(), apCfg, netCfg.WifiSSID, netCfg.WifiPassword)
	if err != nil {
		return nil, fmt.Errorf("new supervisor: %w", err)
	}
	if err := supervisor.Enable(); err != nil {
		return nil, fmt.Errorf("enable supervisor: %w", err)
	}
	monitoring.Logf("oht50d: fallback supervisor monitoring ssid=%s", netCfg.WifiSSID)
	return supervisor, nil
}

// runFallbackTicker drives the supervisor's HandleTick at the
// configured retry interval until ctx is cancelled, the same
// ticker-plus-select shape the scan loop uses internally.
func runFallbackTicker(ctx context.Context, clock timeutil.Clock, supervisor *network.Supervisor) {
	interval := time.Duration(network.DefaultFallbackConfig().RetryIntervalMS) * time.Millisecond
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("oht50d: fallback ticker stopping")
			return
		case now := <-ticker.C():
			if err := supervisor.HandleTick(now); err != nil {
				monitoring.Logf("oht50d: supervisor tick error: %v", err)
			}
		}
	}
}
