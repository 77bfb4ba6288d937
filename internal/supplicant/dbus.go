package supplicant

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	dbusService       = "fi.w1.wpa_supplicant1"
	dbusObjectPath    = "/fi/w1/wpa_supplicant1"
	dbusInterfaceName = dbusService + ".Interface"

	signalInterfaceAdded   = dbusService + ".InterfaceAdded"
	signalInterfaceRemoved = dbusService + ".InterfaceRemoved"
	signalScanDone         = dbusInterfaceName + ".ScanDone"

	propertiesGet = "org.freedesktop.DBus.Properties.Get"
)

// Bus names accepted by DBusDialer.
const (
	SystemBus  = "system"
	SessionBus = "session"
)

// DBusDialer reaches wpa_supplicant over D-Bus.
type DBusDialer struct {
	// Bus selects the system or session bus. Empty means system.
	Bus string
}

var _ Dialer = DBusDialer{}

// Dial connects a private bus connection, checks that the supplicant owns its well-known name
// and subscribes h to the interface lifecycle and ScanDone signals. ctx bounds the handshake;
// the connection lives until the returned Service is closed.
func (d DBusDialer) Dial(ctx context.Context, h SignalHandler) (Service, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch d.Bus {
	case "", SystemBus:
		conn, err = dbus.ConnectSystemBus()
	case SessionBus:
		conn, err = dbus.ConnectSessionBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", d.Bus)
	}
	if err != nil {
		return nil, err
	}

	var owned bool
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, dbusService).Store(&owned); err != nil {
		conn.Close()
		return nil, err
	}
	if !owned {
		conn.Close()
		return nil, fmt.Errorf("%s is not running", dbusService)
	}

	if err := conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(dbusObjectPath),
		dbus.WithMatchInterface(dbusService),
	); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.AddMatchSignalContext(ctx,
		dbus.WithMatchOption("path_namespace", dbusObjectPath),
		dbus.WithMatchInterface(dbusInterfaceName),
		dbus.WithMatchMember("ScanDone"),
	); err != nil {
		conn.Close()
		return nil, err
	}

	svc := &busService{
		conn:    conn,
		root:    conn.Object(dbusService, dbusObjectPath),
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
	conn.Signal(svc.signals)
	go svc.dispatch(h)
	return svc, nil
}

type busService struct {
	conn    *dbus.Conn
	root    dbus.BusObject
	signals chan *dbus.Signal
	done    chan struct{}
	once    sync.Once
}

func (s *busService) dispatch(h SignalHandler) {
	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			dispatchSignal(h, sig)
		}
	}
}

func dispatchSignal(h SignalHandler, sig *dbus.Signal) {
	if sig.Name == signalScanDone {
		h.ScanDone(string(sig.Path))
		return
	}
	if sig.Path != dbusObjectPath || len(sig.Body) == 0 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	switch sig.Name {
	case signalInterfaceAdded:
		h.InterfaceAdded(string(path))
	case signalInterfaceRemoved:
		h.InterfaceRemoved(string(path))
	}
}

func (s *busService) GetInterface(ctx context.Context, ifname string) (string, error) {
	var path dbus.ObjectPath
	if err := s.root.CallWithContext(ctx, dbusService+".GetInterface", 0, ifname).Store(&path); err != nil {
		return "", err
	}
	return string(path), nil
}

func (s *busService) CreateInterface(ctx context.Context, ifname string) (string, error) {
	args := map[string]dbus.Variant{
		"Ifname": dbus.MakeVariant(ifname),
	}
	var path dbus.ObjectPath
	if err := s.root.CallWithContext(ctx, dbusService+".CreateInterface", 0, args).Store(&path); err != nil {
		return "", err
	}
	return string(path), nil
}

func (s *busService) Interface(ctx context.Context, path string) (Interface, error) {
	op := dbus.ObjectPath(path)
	if !op.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	obj := s.conn.Object(dbusService, op)

	// Bind only once the object answers.
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, dbusInterfaceName, "Ifname").Store(&v); err != nil {
		return nil, err
	}
	return &busInterface{obj: obj}, nil
}

func (s *busService) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.RemoveSignal(s.signals)
		err = s.conn.Close()
	})
	return err
}

type busInterface struct {
	obj dbus.BusObject
}

func (i *busInterface) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return i.obj.CallWithContext(ctx, dbusInterfaceName+"."+method, 0, args...)
}

func (i *busInterface) AddNetwork(ctx context.Context, params NetworkParams) (string, error) {
	var path dbus.ObjectPath
	if err := i.call(ctx, "AddNetwork", networkArgs(params)).Store(&path); err != nil {
		return "", err
	}
	return string(path), nil
}

func (i *busInterface) SelectNetwork(ctx context.Context, path string) error {
	return i.call(ctx, "SelectNetwork", dbus.ObjectPath(path)).Err
}

func (i *busInterface) RemoveNetwork(ctx context.Context, path string) error {
	return i.call(ctx, "RemoveNetwork", dbus.ObjectPath(path)).Err
}

func (i *busInterface) RemoveAllNetworks(ctx context.Context) error {
	return i.call(ctx, "RemoveAllNetworks").Err
}

func (i *busInterface) SaveConfig(ctx context.Context) error {
	return i.call(ctx, "SaveConfig").Err
}

func (i *busInterface) Scan(ctx context.Context) error {
	args := map[string]dbus.Variant{
		"Type": dbus.MakeVariant("active"),
	}
	return i.call(ctx, "Scan", args).Err
}

func (i *busInterface) State(ctx context.Context) (string, error) {
	var v dbus.Variant
	if err := i.obj.CallWithContext(ctx, propertiesGet, 0, dbusInterfaceName, "State").Store(&v); err != nil {
		return "", err
	}
	st, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected State type %s", v.Signature())
	}
	return st, nil
}

func (i *busInterface) CurrentBSS(ctx context.Context) (string, error) {
	var v dbus.Variant
	if err := i.obj.CallWithContext(ctx, propertiesGet, 0, dbusInterfaceName, "CurrentBSS").Store(&v); err != nil {
		return "", err
	}
	bss, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("unexpected CurrentBSS type %s", v.Signature())
	}
	return string(bss), nil
}

// Close is a no-op: interface proxies share the service connection.
func (i *busInterface) Close() error {
	return nil
}

func networkArgs(p NetworkParams) map[string]dbus.Variant {
	args := map[string]dbus.Variant{
		"ssid":     dbus.MakeVariant(p.SSID),
		"key_mgmt": dbus.MakeVariant(p.KeyMgmt),
	}
	if p.PSK != "" {
		args["psk"] = dbus.MakeVariant(p.PSK)
	}
	if p.Mode != ModeInfrastructure {
		args["mode"] = dbus.MakeVariant(p.Mode)
	}
	if p.Frequency != 0 {
		args["frequency"] = dbus.MakeVariant(int32(p.Frequency))
	}
	return args
}
