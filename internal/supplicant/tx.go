package supplicant

import (
	"context"
	"fmt"

	"github.com/radio-control/wifid/internal/errcode"
)

// Tx issues interface-scoped calls while the session lock is held. It is valid only inside
// the function passed to Session.Exec.
type Tx struct {
	s   *Session
	ctx context.Context
}

func (tx *Tx) call(op string, fn func(ctx context.Context, iface Interface) error) error {
	s := tx.s
	if s == nil || s.iface == nil {
		return errcode.ErrNotReady
	}
	ctx, cancel := context.WithTimeout(tx.ctx, s.callTimeout)
	defer cancel()
	if err := fn(ctx, s.iface); err != nil {
		return errcode.NewCallError(op, err)
	}
	return nil
}

// NetworkPath returns the tracked network entry and its owner.
func (tx *Tx) NetworkPath() (string, Owner, bool) {
	if tx.s.network == nil {
		return "", OwnerNone, false
	}
	return tx.s.network.path, tx.s.network.owner, true
}

// AddNetwork creates a network entry and tracks it for owner. On failure nothing is tracked.
func (tx *Tx) AddNetwork(owner Owner, params NetworkParams) (string, error) {
	var path string
	err := tx.call("AddNetwork", func(ctx context.Context, iface Interface) error {
		var err error
		path, err = iface.AddNetwork(ctx, params)
		return err
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to add network: %s: %s", params.SSID, errcode.Detail(err))
		return "", err
	}

	tx.s.network = &networkEntry{path: path, owner: owner}
	log.Infof("wpa_supplicant: added network: SSID: %s: %s", params.SSID, path)
	return path, nil
}

// SelectNetwork asks the supplicant to use the network entry at path.
func (tx *Tx) SelectNetwork(path string) error {
	err := tx.call("SelectNetwork", func(ctx context.Context, iface Interface) error {
		return iface.SelectNetwork(ctx, path)
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to select network: %s: %s", path, errcode.Detail(err))
		return err
	}
	log.Infof("wpa_supplicant: selected network: %s", path)
	return nil
}

// RemoveNetwork removes the tracked network entry and stops tracking it. Without a tracked
// entry it succeeds without a call. On failure the entry stays tracked.
func (tx *Tx) RemoveNetwork() error {
	entry := tx.s.network
	if entry == nil {
		return nil
	}
	err := tx.call("RemoveNetwork", func(ctx context.Context, iface Interface) error {
		return iface.RemoveNetwork(ctx, entry.path)
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to remove network: %s: %s", entry.path, errcode.Detail(err))
		return err
	}
	tx.s.network = nil
	log.Infof("wpa_supplicant: removed network: %s", entry.path)
	return nil
}

// RemoveAllNetworks removes every configured network and forgets the tracked entry.
func (tx *Tx) RemoveAllNetworks() error {
	err := tx.call("RemoveAllNetworks", func(ctx context.Context, iface Interface) error {
		return iface.RemoveAllNetworks(ctx)
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to remove all networks with error: %s", errcode.Detail(err))
		return err
	}
	tx.s.network = nil
	log.Info("wpa_supplicant: removed all networks")
	return nil
}

// SaveConfig asks the supplicant to persist its configuration.
func (tx *Tx) SaveConfig() error {
	err := tx.call("SaveConfig", func(ctx context.Context, iface Interface) error {
		return iface.SaveConfig(ctx)
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to save config: %s", errcode.Detail(err))
		return err
	}
	log.Info("wpa_supplicant: save config succeeded")
	return nil
}

// Scan requests an active scan and marks the session as scanning until the matching
// ScanDone signal arrives.
func (tx *Tx) Scan() error {
	if tx.s.scan == Scanning {
		return fmt.Errorf("scan already in progress: %w", errcode.ErrNotReady)
	}
	err := tx.call("Scan", func(ctx context.Context, iface Interface) error {
		return iface.Scan(ctx)
	})
	if err != nil {
		log.Errorf("wpa_supplicant: failed to start scan: %s", errcode.Detail(err))
		return err
	}
	tx.s.scan = Scanning
	log.Info("wpa_supplicant: scan started")
	return nil
}

// State reads the interface's supplicant state string.
func (tx *Tx) State() (string, error) {
	var st string
	err := tx.call("State", func(ctx context.Context, iface Interface) error {
		var err error
		st, err = iface.State(ctx)
		return err
	})
	return st, err
}

// CurrentBSS reads the object path of the associated BSS.
func (tx *Tx) CurrentBSS() (string, error) {
	var bss string
	err := tx.call("CurrentBSS", func(ctx context.Context, iface Interface) error {
		var err error
		bss, err = iface.CurrentBSS(ctx)
		return err
	})
	return bss, err
}
