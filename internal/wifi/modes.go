package wifi

import (
	"fmt"
	"strings"

	"github.com/radio-control/wifid/internal/errcode"
)

// StationMode is the requested station (client) mode.
type StationMode int

const (
	StationModeNotSupported StationMode = iota
	StationModeApplicationControlled
	StationModeDisabled
	StationModeEnabled
)

var stationModeNames = map[StationMode]string{
	StationModeNotSupported:          "not-supported",
	StationModeApplicationControlled: "application-controlled",
	StationModeDisabled:              "disabled",
	StationModeEnabled:               "enabled",
}

func (m StationMode) String() string {
	if s, ok := stationModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("StationMode(%d)", int(m))
}

// ParseStationMode parses a station mode name.
func ParseStationMode(s string) (StationMode, error) {
	for m, name := range stationModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return StationModeNotSupported, fmt.Errorf("unknown station mode %q: %w", s, errcode.ErrInvalidArgument)
}

// APMode is the AP activation policy.
type APMode int

const (
	APModeNotSupported APMode = iota
	APModeApplicationControlled
	APModeDisabled
	APModeEnabled
	APModeOnDemand
	APModeOnDemandNoStationProvision
)

var apModeNames = map[APMode]string{
	APModeNotSupported:               "not-supported",
	APModeApplicationControlled:      "application-controlled",
	APModeDisabled:                   "disabled",
	APModeEnabled:                    "enabled",
	APModeOnDemand:                   "on-demand",
	APModeOnDemandNoStationProvision: "on-demand-no-station-provision",
}

func (m APMode) String() string {
	if s, ok := apModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("APMode(%d)", int(m))
}

// OnDemand reports whether m is one of the on-demand policies.
func (m APMode) OnDemand() bool {
	return m == APModeOnDemand || m == APModeOnDemandNoStationProvision
}

// ParseAPMode parses an AP mode name.
func ParseAPMode(s string) (APMode, error) {
	for m, name := range apModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return APModeNotSupported, fmt.Errorf("unknown AP mode %q: %w", s, errcode.ErrInvalidArgument)
}

// APState is the last confirmed radio state of the AP.
type APState int

const (
	APStateNotActive APState = iota
	APStateActive
)

func (s APState) String() string {
	if s == APStateActive {
		return "active"
	}
	return "not-active"
}
