package wifi

// Connectivity is the direction of an internet connectivity change.
type Connectivity int

const (
	ConnectivityNoChange Connectivity = iota
	ConnectivityEstablished
	ConnectivityLost
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityEstablished:
		return "established"
	case ConnectivityLost:
		return "lost"
	default:
		return "no-change"
	}
}

// AddressFamily of a connectivity change.
type AddressFamily int

const (
	FamilyIPv4 AddressFamily = 4
	FamilyIPv6 AddressFamily = 6
)

// ConnectivityChange is posted when an address shows up on the station interface.
type ConnectivityChange struct {
	Interface string
	Address   string
	Family    AddressFamily
	IPv4      Connectivity
	IPv6      Connectivity
}

// Event types posted through EventSink.PostEvent.
const (
	EventAPModeChanged      = "apModeChanged"
	EventAPStateChanged     = "apStateChanged"
	EventStationModeChanged = "stationModeChanged"
	EventStationProvisioned = "stationProvisioned"
	EventSupplicantState    = "supplicantState"
	EventFault              = "fault"
)

// Event is a state change notification.
type Event struct {
	Type string
	Data map[string]interface{}
}

// EventSink receives notifications. Implementations must not block.
type EventSink interface {
	PostConnectivityChange(ConnectivityChange)
	PostEvent(Event)
}

// MultiSink fans notifications out to every member.
type MultiSink []EventSink

func (m MultiSink) PostConnectivityChange(c ConnectivityChange) {
	for _, s := range m {
		if s != nil {
			s.PostConnectivityChange(c)
		}
	}
}

func (m MultiSink) PostEvent(e Event) {
	for _, s := range m {
		if s != nil {
			s.PostEvent(e)
		}
	}
}
