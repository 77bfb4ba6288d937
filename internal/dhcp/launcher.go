package dhcp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/errcode"
)

var log = logging.Logger("dhcp")

// DefaultCommand is the client command. %s is replaced by the interface name.
const DefaultCommand = "dhclient -nw %s"

// Launcher starts the DHCP client and does not wait for it.
type Launcher struct {
	template string
}

// NewLauncher returns a launcher for template. An empty template means DefaultCommand.
func NewLauncher(template string) *Launcher {
	if template == "" {
		template = DefaultCommand
	}
	return &Launcher{template: template}
}

func (l *Launcher) command(ifname string) ([]string, error) {
	if ifname == "" || strings.ContainsAny(ifname, " \t\n/") {
		return nil, fmt.Errorf("interface name %q: %w", ifname, errcode.ErrInvalidArgument)
	}
	argv := strings.Fields(fmt.Sprintf(l.template, ifname))
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty dhcp command: %w", errcode.ErrInvalidArgument)
	}
	return argv, nil
}

// Launch starts the client for ifname. The process outlives ctx; it is reaped in the
// background.
func (l *Launcher) Launch(ctx context.Context, ifname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv, err := l.command(ifname)
	if err != nil {
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	log.Debugf("started %s (pid %d)", strings.Join(argv, " "), cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warnf("%s exited: %v", argv[0], err)
		}
	}()
	return nil
}
