// Command lidarctl is a single-purpose operator tool: it brings up a
// *lidar.Facade against either a real serial device or a simulated
// one, runs it for a bounded duration, and prints the safety verdict
// stream to stdout. Grounded on the teacher's cmd/lidar single-binary
// CLI shape, trimmed to the one device this firmware drives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/oht50/firmware/internal/lidar"
	"github.com/oht50/firmware/internal/timeutil"
)

var (
	devicePath = flag.String("device", "/dev/ttyUSB0", "LiDAR serial device path")
	simulate   = flag.Bool("simulate", false, "Use a simulated LiDAR transport instead of a real device")
	duration   = flag.Duration("duration", 30*time.Second, "How long to run before exiting")
	interval   = flag.Duration("interval", 1*time.Second, "Safety verdict poll interval")
)

func main() {
	flag.Parse()

	clock := timeutil.RealClock{}

	var factory lidar.TransportFactory
	if *simulate {
		sim := lidar.NewSimulatedTransport()
		// Queue an all-zero GET_INFO reply (health 0) so the device-info
		// step below succeeds against the simulated device.
		sim.Feed(make([]byte, 20))
		factory = func(string, int) (lidar.Transport, error) { return sim, nil }
	} else {
		factory = lidar.OpenSerialTransport
	}

	facade := lidar.NewFacade(clock, factory)

	cfg := lidar.DefaultConfig(*devicePath)
	if err := facade.Init(cfg); err != nil {
		log.Fatalf("lidarctl: init: %v", err)
	}
	defer func() {
		if err := facade.Deinit(); err != nil {
			log.Printf("lidarctl: deinit: %v", err)
		}
	}()

	info, err := facade.GetDeviceInfo()
	if err != nil {
		log.Fatalf("lidarctl: get device info: %v", err)
	}
	fmt.Printf("device: model=%d firmware=%d hardware=%d health=%d\n",
		info.Model, info.FirmwareVersion, info.HardwareVersion, info.HealthStatus)

	if err := facade.StartScanning(); err != nil {
		log.Fatalf("lidarctl: start scanning: %v", err)
	}
	defer func() {
		if err := facade.StopScanning(); err != nil {
			log.Printf("lidarctl: stop scanning: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	ticker := clock.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			fmt.Println("lidarctl: run duration elapsed, shutting down")
			return
		case <-ticker.C():
			verdict, err := facade.CheckSafety()
			if err != nil {
				log.Printf("lidarctl: check safety: %v", err)
				continue
			}
			printVerdict(verdict)
		}
	}
}

func printVerdict(v lidar.SafetyVerdict) {
	switch {
	case v.EmergencyStopTriggered:
		fmt.Printf("[EMERGENCY STOP] min=%dmm@%d max=%dmm@%d\n", v.MinDistanceMM, v.MinDistanceAngle, v.MaxDistanceMM, v.MaxDistanceAngle)
	case v.WarningTriggered:
		fmt.Printf("[WARNING]        min=%dmm@%d max=%dmm@%d\n", v.MinDistanceMM, v.MinDistanceAngle, v.MaxDistanceMM, v.MaxDistanceAngle)
	case v.ObstacleDetected:
		fmt.Printf("[obstacle]       min=%dmm@%d max=%dmm@%d\n", v.MinDistanceMM, v.MinDistanceAngle, v.MaxDistanceMM, v.MaxDistanceAngle)
	default:
		fmt.Printf("[clear]          min=%dmm max=%dmm\n", v.MinDistanceMM, v.MaxDistanceMM)
	}
}
