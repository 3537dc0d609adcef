package network

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// WifiCapability is the abstract OS Wi-Fi utility named in spec.md
// §6.3: "list visible networks", "connect with SSID+passphrase",
// "disconnect", "query active link". Keeping it an interface (rather
// than hardcoding a specific CLI) is what lets the Station Controller
// be tested without a real network stack, per spec.md §9's shell-out
// isolation note.
type WifiCapability interface {
	ScanNetworks() ([]ScanResult, error)
	Connect(ssid, password string) error
	Disconnect() error
	QueryActiveLink() (Status, error)
}

// nmcliCapability shells out to nmcli via a CommandBuilder. nmcli's
// terse machine-readable output (`nmcli -t -f ... dev wifi list`) is
// the concrete instance of spec.md §6.3's abstract capability; any
// other OS utility could implement WifiCapability the same way.
type nmcliCapability struct {
	builder  CommandBuilder
	iface    string
}

// NewNMCLICapability returns a WifiCapability backed by nmcli on the
// given wireless interface.
func NewNMCLICapability(builder CommandBuilder, iface string) WifiCapability {
	return &nmcliCapability{builder: builder, iface: iface}
}

func (c *nmcliCapability) ScanNetworks() ([]ScanResult, error) {
	out, err := c.builder.BuildCommand("nmcli", "-t", "-f",
		"SSID,BSSID,SIGNAL,FREQ,SECURITY,ACTIVE", "dev", "wifi", "list", "ifname", c.iface).Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWifiScanFailed, err)
	}
	return parseNMCLIScan(string(out)), nil
}

func parseNMCLIScan(output string) []ScanResult {
	var results []ScanResult
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 6 {
			continue
		}
		percent, _ := strconv.Atoi(fields[2])
		freq, _ := strconv.Atoi(strings.TrimSuffix(fields[3], " MHz"))
		dbm := PercentToDBm(percent)

		results = append(results, ScanResult{
			SSID:         fields[0],
			BSSID:        fields[1],
			SignalDBm:    dbm,
			Quality:      ClassifySignal(dbm),
			FrequencyMHz: freq,
			Band:         bandForFrequency(freq),
			Security:     securityFromNMCLI(fields[4]),
			Connected:    fields[5] == "yes",
			Hidden:       fields[0] == "",
		})
	}

	sortScanResultsBySignalDesc(results)
	return results
}

func bandForFrequency(freqMHz int) Band {
	if freqMHz >= 4900 {
		return Band5GHz
	}
	return Band2_4GHz
}

func securityFromNMCLI(s string) Security {
	switch {
	case strings.Contains(s, "WPA3"):
		return SecurityWPA3
	case strings.Contains(s, "WPA2"):
		return SecurityWPA2
	case strings.Contains(s, "WPA"):
		return SecurityWPA
	case strings.Contains(s, "WEP"):
		return SecurityWEP
	default:
		return SecurityOpen
	}
}

func sortScanResultsBySignalDesc(results []ScanResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j-1].SignalDBm < results[j].SignalDBm; j-- {
			results[j-1], results[j] = results[j], results[j-1]
		}
	}
}

func (c *nmcliCapability) Connect(ssid, password string) error {
	out, err := c.builder.BuildCommand("nmcli", "dev", "wifi", "connect", ssid,
		"password", password, "ifname", c.iface).Run()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWifiConnectFailed, err)
	}
	text := string(out)
	if strings.HasPrefix(text, "Error:") || strings.HasPrefix(text, "error:") {
		if strings.Contains(strings.ToLower(text), "auth") {
			return fmt.Errorf("%w: %s", ErrWifiAuthFailed, text)
		}
		return fmt.Errorf("%w: %s", ErrWifiConnectFailed, text)
	}
	if !strings.Contains(text, "successfully activated") {
		return fmt.Errorf("%w: unexpected response %q", ErrWifiConnectFailed, text)
	}
	return nil
}

func (c *nmcliCapability) Disconnect() error {
	_, err := c.builder.BuildCommand("nmcli", "dev", "disconnect", c.iface).Run()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWifiManagerFailed, err)
	}
	return nil
}

func (c *nmcliCapability) QueryActiveLink() (Status, error) {
	out, err := c.builder.BuildCommand("nmcli", "-t", "-f",
		"GENERAL.CONNECTION,IP4.ADDRESS,IP4.GATEWAY,IP4.DNS,GENERAL.STATE",
		"dev", "show", c.iface).Run()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrWifiManagerFailed, err)
	}

	var st Status
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "GENERAL.CONNECTION:"):
			ssid := strings.TrimPrefix(line, "GENERAL.CONNECTION:")
			st.CurrentSSID = ssid
			st.Connected = ssid != "" && ssid != "--"
		case strings.HasPrefix(line, "IP4.ADDRESS"):
			st.IPAddress = strings.TrimPrefix(line, "IP4.ADDRESS[1]:")
		case strings.HasPrefix(line, "IP4.GATEWAY:"):
			st.Gateway = strings.TrimPrefix(line, "IP4.GATEWAY:")
		case strings.HasPrefix(line, "IP4.DNS"):
			st.DNS = strings.TrimPrefix(line, "IP4.DNS[1]:")
		}
	}
	return st, nil
}
