package supplicant

import "fmt"

// ConnState is the position of a Session in the discovery chain.
type ConnState int

const (
	Init ConnState = iota
	NotConnected
	ConnectedToService
	GotInterfacePath
	NotInterfacePath
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Init:
		return "Init"
	case NotConnected:
		return "NotConnected"
	case ConnectedToService:
		return "ConnectedToService"
	case GotInterfacePath:
		return "GotInterfacePath"
	case NotInterfacePath:
		return "NotInterfacePath"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// ScanState tracks whether a scan request is outstanding.
type ScanState int

const (
	ScanIdle ScanState = iota
	Scanning
)

func (s ScanState) String() string {
	if s == Scanning {
		return "Scanning"
	}
	return "Idle"
}

// Owner tags a network entry with the flow that created it.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerAP
	OwnerStation
)

func (o Owner) String() string {
	switch o {
	case OwnerAP:
		return "ap"
	case OwnerStation:
		return "station"
	default:
		return "none"
	}
}
