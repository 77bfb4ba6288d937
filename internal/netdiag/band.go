package netdiag

import (
	"fmt"
	"strings"

	"github.com/radio-control/wifid/internal/errcode"
)

// Band is a Wi-Fi frequency band.
type Band int

const (
	BandUnknown Band = iota
	Band2G4
	Band5G
	Band6G
)

func (b Band) String() string {
	switch b {
	case Band2G4:
		return "2.4GHz"
	case Band5G:
		return "5GHz"
	case Band6G:
		return "6GHz"
	default:
		return "unknown"
	}
}

// ParseBand accepts "2.4", "2.4GHz", "5", "5GHz", "6" or "6GHz", case-insensitively.
func ParseBand(s string) (Band, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "ghz") {
	case "2.4":
		return Band2G4, nil
	case "5":
		return Band5G, nil
	case "6":
		return Band6G, nil
	default:
		return BandUnknown, fmt.Errorf("unknown band %q: %w", s, errcode.ErrInvalidArgument)
	}
}

// ChannelToFrequency maps a channel number in band to its centre frequency in MHz.
func ChannelToFrequency(b Band, channel int) (int, error) {
	switch b {
	case Band2G4:
		switch {
		case channel >= 1 && channel <= 13:
			return 2407 + 5*channel, nil
		case channel == 14:
			return 2484, nil
		}
	case Band5G:
		if channel >= 32 && channel <= 177 {
			return 5000 + 5*channel, nil
		}
	case Band6G:
		switch {
		case channel == 2:
			return 5935, nil
		case channel >= 1 && channel <= 233:
			return 5950 + 5*channel, nil
		}
	}
	return 0, fmt.Errorf("channel %d not valid in band %s: %w", channel, b, errcode.ErrInvalidArgument)
}

// FrequencyToChannel maps a centre frequency in MHz back to its channel number.
func FrequencyToChannel(freqMHz int) (int, error) {
	switch {
	case freqMHz == 2484:
		return 14, nil
	case freqMHz >= 2412 && freqMHz <= 2472:
		return (freqMHz - 2407) / 5, nil
	case freqMHz == 5935:
		return 2, nil
	case freqMHz >= 5160 && freqMHz <= 5885:
		return (freqMHz - 5000) / 5, nil
	case freqMHz >= 5955 && freqMHz <= 7115:
		return (freqMHz - 5950) / 5, nil
	}
	return 0, fmt.Errorf("frequency %d MHz: %w", freqMHz, errcode.ErrReadFailed)
}
