// Package fake provides an in-process wpa_supplicant for testing.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/radio-control/wifid/internal/supplicant"
)

// Method names accepted by FailOn and recorded in Calls.
const (
	MethodDial              = "Dial"
	MethodGetInterface      = "GetInterface"
	MethodCreateInterface   = "CreateInterface"
	MethodInterface         = "Interface"
	MethodAddNetwork        = "AddNetwork"
	MethodSelectNetwork     = "SelectNetwork"
	MethodRemoveNetwork     = "RemoveNetwork"
	MethodRemoveAllNetworks = "RemoveAllNetworks"
	MethodSaveConfig        = "SaveConfig"
	MethodScan              = "Scan"
	MethodState             = "State"
	MethodCurrentBSS        = "CurrentBSS"
)

// ErrUnknownInterface mirrors the supplicant's reply for an unmanaged interface.
var ErrUnknownInterface = errors.New("wpa_supplicant couldn't find this interface")

// Call is one recorded request.
type Call struct {
	Method string
	Arg    string
	Params supplicant.NetworkParams
}

// Supplicant is a fake supplicant service. It implements supplicant.Dialer.
type Supplicant struct {
	mu sync.Mutex

	// managed interfaces by name
	interfaces map[string]string
	nextIface  int

	networks    map[string]supplicant.NetworkParams
	selected    string
	nextNetwork int

	state      string
	currentBSS string

	failures map[string]error
	blocked  map[string]bool
	calls    []Call

	handler     supplicant.SignalHandler
	dials       int
	openProxies int
}

var _ supplicant.Dialer = (*Supplicant)(nil)

// New creates a fake supplicant with no managed interfaces.
func New() *Supplicant {
	return &Supplicant{
		interfaces: make(map[string]string),
		networks:   make(map[string]supplicant.NetworkParams),
		failures:   make(map[string]error),
		blocked:    make(map[string]bool),
		state:      "disconnected",
	}
}

// AddInterface makes ifname known to the service, as if it had been created externally.
// It returns the interface object path.
func (f *Supplicant) AddInterface(ifname string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addInterfaceLocked(ifname)
}

func (f *Supplicant) addInterfaceLocked(ifname string) string {
	if p, ok := f.interfaces[ifname]; ok {
		return p
	}
	p := fmt.Sprintf("/fi/w1/wpa_supplicant1/Interfaces/%d", f.nextIface)
	f.nextIface++
	f.interfaces[ifname] = p
	return p
}

// FailOn makes every subsequent call to method fail with err. A nil err clears the failure.
func (f *Supplicant) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// BlockOn makes every subsequent call to method wait until its context ends, as an
// unresponsive service would. The call then fails with the context error.
func (f *Supplicant) BlockOn(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[method] = true
}

// SetState sets the interface State property.
func (f *Supplicant) SetState(state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

// SetCurrentBSS sets the interface CurrentBSS property.
func (f *Supplicant) SetCurrentBSS(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentBSS = path
}

// Calls returns a copy of the recorded calls.
func (f *Supplicant) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times method was called.
func (f *Supplicant) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (f *Supplicant) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Networks returns the configured network entries by path.
func (f *Supplicant) Networks() map[string]supplicant.NetworkParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]supplicant.NetworkParams, len(f.networks))
	for k, v := range f.networks {
		out[k] = v
	}
	return out
}

// Selected returns the selected network path.
func (f *Supplicant) Selected() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Dials returns how many times Dial was called.
func (f *Supplicant) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// OpenProxies returns the number of interface proxies handed out and not yet closed.
func (f *Supplicant) OpenProxies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openProxies
}

// EmitInterfaceAdded delivers an InterfaceAdded signal to the dialed handler.
func (f *Supplicant) EmitInterfaceAdded(path string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.InterfaceAdded(path)
	}
}

// EmitInterfaceRemoved delivers an InterfaceRemoved signal to the dialed handler.
func (f *Supplicant) EmitInterfaceRemoved(path string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.InterfaceRemoved(path)
	}
}

// EmitScanDone delivers a ScanDone signal for the interface at path.
func (f *Supplicant) EmitScanDone(path string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.ScanDone(path)
	}
}

// record logs a call and returns the injected failure, if any. Caller holds f.mu; a blocked
// method releases it while waiting.
func (f *Supplicant) record(ctx context.Context, c Call) error {
	f.calls = append(f.calls, c)
	if f.blocked[c.Method] {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return f.failures[c.Method]
}

// Dial implements supplicant.Dialer.
func (f *Supplicant) Dial(ctx context.Context, h supplicant.SignalHandler) (supplicant.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if err := f.record(ctx, Call{Method: MethodDial}); err != nil {
		return nil, err
	}
	f.handler = h
	return &service{f: f, h: h}, nil
}

type service struct {
	f *Supplicant
	h supplicant.SignalHandler
}

func (s *service) GetInterface(ctx context.Context, ifname string) (string, error) {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodGetInterface, Arg: ifname}); err != nil {
		return "", err
	}
	p, ok := f.interfaces[ifname]
	if !ok {
		return "", ErrUnknownInterface
	}
	return p, nil
}

func (s *service) CreateInterface(ctx context.Context, ifname string) (string, error) {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodCreateInterface, Arg: ifname}); err != nil {
		return "", err
	}
	return f.addInterfaceLocked(ifname), nil
}

func (s *service) Interface(ctx context.Context, path string) (supplicant.Interface, error) {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodInterface, Arg: path}); err != nil {
		return nil, err
	}
	f.openProxies++
	return &iface{f: f, path: path}, nil
}

func (s *service) Close() error {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler == s.h {
		f.handler = nil
	}
	return nil
}

type iface struct {
	f      *Supplicant
	path   string
	closed bool
}

func (i *iface) AddNetwork(ctx context.Context, params supplicant.NetworkParams) (string, error) {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodAddNetwork, Arg: params.SSID, Params: params}); err != nil {
		return "", err
	}
	p := fmt.Sprintf("%s/Networks/%d", i.path, f.nextNetwork)
	f.nextNetwork++
	f.networks[p] = params
	return p, nil
}

func (i *iface) SelectNetwork(ctx context.Context, path string) error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodSelectNetwork, Arg: path}); err != nil {
		return err
	}
	if _, ok := f.networks[path]; !ok {
		return fmt.Errorf("unknown network %s", path)
	}
	f.selected = path
	return nil
}

func (i *iface) RemoveNetwork(ctx context.Context, path string) error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodRemoveNetwork, Arg: path}); err != nil {
		return err
	}
	if _, ok := f.networks[path]; !ok {
		return fmt.Errorf("unknown network %s", path)
	}
	delete(f.networks, path)
	if f.selected == path {
		f.selected = ""
	}
	return nil
}

func (i *iface) RemoveAllNetworks(ctx context.Context) error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodRemoveAllNetworks}); err != nil {
		return err
	}
	f.networks = make(map[string]supplicant.NetworkParams)
	f.selected = ""
	return nil
}

func (i *iface) SaveConfig(ctx context.Context) error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(ctx, Call{Method: MethodSaveConfig})
}

func (i *iface) Scan(ctx context.Context) error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(ctx, Call{Method: MethodScan})
}

func (i *iface) State(ctx context.Context) (string, error) {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodState}); err != nil {
		return "", err
	}
	return f.state, nil
}

func (i *iface) CurrentBSS(ctx context.Context) (string, error) {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(ctx, Call{Method: MethodCurrentBSS}); err != nil {
		return "", err
	}
	return f.currentBSS, nil
}

func (i *iface) Close() error {
	f := i.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if !i.closed {
		i.closed = true
		f.openProxies--
	}
	return nil
}
