//go:build rp2040

package main

import (
	"errors"
	"time"

	"tinygo.org/x/drivers/netlink"
	"tinygo.org/x/drivers/netlink/probe"

	"goclock/core"
	"goclock/sntp"
)

// Build-time fallback credentials for the out-of-box experience.
// Provisioned values in the settings store win once set. Inject with
//
//	tinygo flash -ldflags="-X main.wifiSSID=home -X main.wifiPass=secret"
var (
	wifiSSID string
	wifiPass string
)

var (
	netLink    netlink.Netlinker
	errOffline = errors.New("network down")
)

// connectNetwork brings up the NINA-W102 radio. A failed association
// is not fatal; the clock free-runs on the RTC and the daily sync
// retries whenever the network comes back.
func connectNetwork(pa *core.Persist) {
	ssid, pass := wifiSSID, wifiPass
	if pa.WifiValid() {
		ssid, pass = pa.WifiSSID(), pa.WifiPassword()
	}
	if ssid == "" {
		core.DebugPrintln("[NET] no credentials, running offline")
		return
	}

	link, _ := probe.Probe()
	err := link.NetConnect(&netlink.ConnectParams{
		Ssid:       ssid,
		Passphrase: pass,
	})
	if err != nil {
		core.DebugPrintln("[NET] wifi join failed: " + err.Error())
		return
	}

	netLink = link
	core.DebugPrintln("[NET] wifi up, ssid " + ssid)
}

// NinaTimeQuery resolves and queries one time server over the radio
type NinaTimeQuery struct{}

func (NinaTimeQuery) Query(server string, timeoutMillis uint32) (core.TimeSample, error) {
	if netLink == nil {
		return core.TimeSample{}, errOffline
	}

	res, err := sntp.Query(server, time.Duration(timeoutMillis)*time.Millisecond)
	if err != nil {
		return core.TimeSample{}, err
	}
	return core.TimeSample{
		Instant:        res.Time,
		RTTMillis:      uint32(res.RTT / time.Millisecond),
		ReceivedMillis: core.Millis(),
	}, nil
}
