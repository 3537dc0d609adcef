package network

import (
	"bytes"
	"fmt"
	"text/template"
)

// hostapdConfTemplate mirrors the handful of hostapd.conf directives
// this controller actually drives (interface, SSID, channel, security,
// client cap). Grounded on the Brightgate wifid hostapd.conf.got
// text/template approach for generating daemon config from a Go
// struct rather than string-concatenating it.
var hostapdConfTemplate = template.Must(template.New("hostapd.conf").Parse(
	`interface={{.Interface}}
driver=nl80211
ssid={{.SSID}}
hw_mode=g
channel={{.Channel}}
ieee80211n=1
wmm_enabled=1
max_num_sta={{.MaxClients}}
ctrl_interface=/var/run/hostapd
ctrl_interface_group=0
{{if .Open -}}
# open network, no auth directives
{{else -}}
wpa={{.WPAVersion}}
wpa_passphrase={{.Password}}
wpa_key_mgmt=WPA-PSK
wpa_pairwise=CCMP
rsn_pairwise=CCMP
{{end -}}
`))

// hostapdConfData is the template input built from an APConfig.
type hostapdConfData struct {
	Interface  string
	SSID       string
	Channel    int
	MaxClients int
	Open       bool
	WPAVersion int
	Password   string
}

func newHostapdConfData(iface string, cfg APConfig) hostapdConfData {
	data := hostapdConfData{
		Interface:  iface,
		SSID:       cfg.SSID,
		Channel:    cfg.Channel,
		MaxClients: cfg.MaxClients,
		Open:       cfg.Security == SecurityOpen,
		Password:   cfg.Password,
	}
	switch cfg.Security {
	case SecurityWPA3:
		data.WPAVersion = 2
	default:
		data.WPAVersion = 2
	}
	return data
}

// renderHostapdConf renders a complete hostapd.conf for cfg hosted on
// the given wireless interface.
func renderHostapdConf(iface string, cfg APConfig) (string, error) {
	var buf bytes.Buffer
	if err := hostapdConfTemplate.Execute(&buf, newHostapdConfData(iface, cfg)); err != nil {
		return "", fmt.Errorf("network: render hostapd.conf: %w", err)
	}
	return buf.String(), nil
}

// dhcpRangeFor derives the DHCP lease range from the AP's own address,
// per spec.md §4.G: host addresses ip+2 through ip+20.
func dhcpRangeFor(ip string) (start, end string, err error) {
	base, err := parseIPv4(ip)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], base[3]+2),
		fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], base[3]+20), nil
}

func parseIPv4(ip string) ([4]byte, error) {
	var out [4]byte
	var a, b, c, d int
	n, err := fmt.Sscanf(ip, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return out, fmt.Errorf("%w: invalid IPv4 address %q", ErrInvalidParameter, ip)
	}
	for i, v := range []int{a, b, c, d} {
		if v < 0 || v > 255 {
			return out, fmt.Errorf("%w: invalid IPv4 address %q", ErrInvalidParameter, ip)
		}
		out[i] = byte(v)
	}
	return out, nil
}
