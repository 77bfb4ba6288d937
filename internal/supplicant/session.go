package supplicant

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/errcode"
)

var log = logging.Logger("supplicant")

// DefaultCallTimeout bounds each RPC, including the discovery calls.
const DefaultCallTimeout = 5 * time.Second

// StateListener is told about every discovery state change. It runs with the session lock
// released and must not block.
type StateListener func(ConnState)

type networkEntry struct {
	path  string
	owner Owner
}

// Session owns the connection state to the supplicant service.
type Session struct {
	dialer      Dialer
	ifname      string
	callTimeout time.Duration
	listener    StateListener

	mu         sync.Mutex
	gen        uint64
	state      ConnState
	scan       ScanState
	service    Service
	ifacePath  string
	iface      Interface
	network    *networkEntry
	connCtx    context.Context
	connCancel context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithCallTimeout bounds every RPC issued by the session.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithStateListener registers fn for discovery state changes.
func WithStateListener(fn StateListener) Option {
	return func(s *Session) {
		s.listener = fn
	}
}

// NewSession creates a session for the station interface ifname.
func NewSession(dialer Dialer, ifname string, opts ...Option) *Session {
	s := &Session{
		dialer:      dialer,
		ifname:      ifname,
		callTimeout: DefaultCallTimeout,
		state:       Init,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resets the session and begins discovery. Completions arrive asynchronously;
// observe progress through State or a StateListener.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.resetLocked()
	s.gen++
	gen := s.gen
	s.connCtx, s.connCancel = context.WithCancel(ctx)
	connCtx := s.connCtx
	s.mu.Unlock()

	s.notify(Init)

	go func() {
		callCtx, cancel := context.WithTimeout(connCtx, s.callTimeout)
		svc, err := s.dialer.Dial(callCtx, s)
		cancel()
		s.onServiceReady(connCtx, gen, svc, err)
	}()
}

// Close releases every handle and cancels outstanding discovery.
func (s *Session) Close() error {
	s.mu.Lock()
	s.gen++
	s.resetLocked()
	s.mu.Unlock()
	return nil
}

// resetLocked takes and releases all transport handles.
func (s *Session) resetLocked() {
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	s.releaseInterfaceLocked()
	if svc := s.service; svc != nil {
		s.service = nil
		if err := svc.Close(); err != nil {
			log.Debugf("wpa_supplicant: close service: %v", err)
		}
	}
	s.ifacePath = ""
	s.network = nil
	s.scan = ScanIdle
	s.state = Init
}

func (s *Session) releaseInterfaceLocked() {
	if iface := s.iface; iface != nil {
		s.iface = nil
		if err := iface.Close(); err != nil {
			log.Debugf("wpa_supplicant: close interface proxy: %v", err)
		}
	}
}

func (s *Session) setStateLocked(st ConnState) bool {
	if s.state == st {
		return false
	}
	s.state = st
	return true
}

func (s *Session) notify(st ConnState) {
	if s.listener != nil {
		s.listener(st)
	}
}

func (s *Session) onServiceReady(ctx context.Context, gen uint64, svc Service, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if svc != nil {
			svc.Close()
		}
		return
	}

	if err != nil || svc == nil {
		log.Infof("wpa_supplicant: failed to create wpa_supplicant proxy %s", errcode.Detail(err))
		changed := s.setStateLocked(NotConnected)
		s.mu.Unlock()
		if changed {
			s.notify(NotConnected)
		}
		return
	}

	s.service = svc
	s.setStateLocked(ConnectedToService)
	s.mu.Unlock()

	log.Info("wpa_supplicant: connected to wpa_supplicant proxy")
	s.notify(ConnectedToService)

	go func() {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		path, err := svc.GetInterface(callCtx, s.ifname)
		cancel()
		if err != nil {
			path, err = s.createInterface(ctx, gen, svc, err)
		}
		s.onInterfacePath(ctx, gen, svc, path, err)
	}()
}

// createInterface falls back to CreateInterface after GetInterface failed. It runs without
// the session lock.
func (s *Session) createInterface(ctx context.Context, gen uint64, svc Service, lookupErr error) (string, error) {
	if !s.discovering(gen, svc) {
		return "", lookupErr
	}
	log.Infof("wpa_supplicant: can't find interface %s: %s", s.ifname, errcode.Detail(lookupErr))
	log.Infof("wpa_supplicant: try to create interface %s", s.ifname)

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	path, err := svc.CreateInterface(callCtx, s.ifname)
	if err != nil {
		log.Infof("wpa_supplicant: failed to create interface %s: %s", s.ifname, errcode.Detail(err))
		return "", err
	}
	return path, nil
}

// discovering reports whether gen and svc are still current and no interface path is tracked.
func (s *Session) discovering(gen uint64, svc Service) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && s.service == svc && s.ifacePath == ""
}

func (s *Session) onInterfacePath(ctx context.Context, gen uint64, svc Service, path string, err error) {
	s.mu.Lock()
	if gen != s.gen || s.service != svc {
		s.mu.Unlock()
		return
	}
	if s.ifacePath != "" {
		// An InterfaceAdded signal won the race.
		s.mu.Unlock()
		return
	}

	if err != nil {
		changed := s.setStateLocked(NotConnected)
		s.mu.Unlock()
		if changed {
			s.notify(NotConnected)
		}
		return
	}

	s.ifacePath = path
	s.setStateLocked(GotInterfacePath)
	s.mu.Unlock()

	log.Infof("wpa_supplicant: WiFi interface: %s", path)
	s.notify(GotInterfacePath)
	s.bindInterface(ctx, gen, svc, path)
}

func (s *Session) bindInterface(ctx context.Context, gen uint64, svc Service, path string) {
	go func() {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		iface, err := svc.Interface(callCtx, path)
		cancel()
		s.onInterfaceProxy(gen, path, iface, err)
	}()
}

func (s *Session) onInterfaceProxy(gen uint64, path string, iface Interface, err error) {
	s.mu.Lock()
	if gen != s.gen || s.ifacePath != path {
		s.mu.Unlock()
		if iface != nil {
			iface.Close()
		}
		return
	}

	s.releaseInterfaceLocked()

	if err != nil || iface == nil {
		log.Infof("wpa_supplicant: failed to create wpa_supplicant1 interface proxy %s: %s", path, errcode.Detail(err))
		changed := s.setStateLocked(NotConnected)
		s.mu.Unlock()
		if changed {
			s.notify(NotConnected)
		}
		return
	}

	s.iface = iface
	s.setStateLocked(Connected)
	s.mu.Unlock()

	log.Info("wpa_supplicant: connected to wpa_supplicant interface proxy")
	s.notify(Connected)
}

// InterfaceAdded handles the service's InterfaceAdded signal. The first path wins; later
// signals are ignored while a path is tracked.
func (s *Session) InterfaceAdded(path string) {
	s.mu.Lock()
	if s.ifacePath != "" || s.service == nil || path == "" {
		s.mu.Unlock()
		return
	}
	s.ifacePath = path
	s.setStateLocked(GotInterfacePath)
	gen, svc, ctx := s.gen, s.service, s.connCtx
	s.mu.Unlock()

	log.Infof("wpa_supplicant: WiFi interface added: %s", path)
	s.notify(GotInterfacePath)
	s.bindInterface(ctx, gen, svc, path)
}

// InterfaceRemoved handles the service's InterfaceRemoved signal. Only the tracked path
// has an effect.
func (s *Session) InterfaceRemoved(path string) {
	s.mu.Lock()
	if s.ifacePath == "" || s.ifacePath != path {
		s.mu.Unlock()
		return
	}

	s.ifacePath = ""
	s.releaseInterfaceLocked()
	s.network = nil
	s.scan = ScanIdle
	s.setStateLocked(NotInterfacePath)
	s.mu.Unlock()

	log.Infof("wpa_supplicant: WiFi interface removed: %s", path)
	s.notify(NotInterfacePath)
}

// ScanDone handles the interface's ScanDone signal. Only the tracked path has an effect.
func (s *Session) ScanDone(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ifacePath == "" || s.ifacePath != path {
		return
	}
	if s.scan == Scanning {
		log.Debugf("wpa_supplicant: scan done on %s", path)
	}
	s.scan = ScanIdle
}

// State returns the discovery state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether an interface proxy is ready for use.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected && s.iface != nil
}

// HasInterface reports whether an interface proxy is held.
func (s *Session) HasInterface() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iface != nil
}

// InterfacePath returns the tracked interface object path, if any.
func (s *Session) InterfacePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ifacePath
}

// NetworkPath returns the tracked network entry and its owner.
func (s *Session) NetworkPath() (string, Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network == nil {
		return "", OwnerNone
	}
	return s.network.path, s.network.owner
}

// ScanState returns the scan bookkeeping flag.
func (s *Session) ScanState() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan
}

// Exec runs fn while holding the session lock. The session must be Connected.
func (s *Session) Exec(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected || s.iface == nil {
		return errcode.ErrNotReady
	}
	tx := &Tx{s: s, ctx: ctx}
	defer func() { tx.s = nil }()
	return fn(tx)
}
