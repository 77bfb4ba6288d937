package api

import (
	"context"
	"net/http"
	"time"

	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/telemetry"
	"github.com/radio-control/wifid/internal/wifi"
)

// WiFiPort is the part of the Wi-Fi manager the API drives.
type WiFiPort interface {
	Status(ctx context.Context) wifi.Status
	SetAPMode(ctx context.Context, mode wifi.APMode) error
	SetAPIdleTimeout(d time.Duration) error
	DemandStartAP(ctx context.Context)
	StopOnDemandAP(ctx context.Context)
	MaintainOnDemandAP()
	SetStationMode(ctx context.Context, mode wifi.StationMode) error
	SetStationReconnectInterval(d time.Duration) error
	ProvisionStationNetwork(ctx context.Context, ssid, key string) error
	ClearStationProvision(ctx context.Context) error
	StartScan(ctx context.Context) error
}

// DiagnosticsPort reads interface counters and Wi-Fi link parameters.
type DiagnosticsPort interface {
	EthernetStats() (netdiag.EthernetStats, error)
	WiFiStats() (netdiag.WiFiStats, error)
	WiFiInterfaceName() (string, error)
	WiFiChannel(ifname string) (int, error)
	WiFiRSSI(ifname string) (int8, error)
	WiFiBeaconLostCount(ifname string) (uint32, error)
	WiFiCurrentMaxRate(ifname string) (uint64, error)
	ResetWiFiCounts() error
}

// TelemetryPort serves the SSE stream.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	ClientCount() int
}

// Compile-time assertions for port conformance
var _ WiFiPort = (*wifi.Manager)(nil)
var _ DiagnosticsPort = (*netdiag.System)(nil)
var _ TelemetryPort = (*telemetry.Hub)(nil)
