package dhcp

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
)

func TestCommand(t *testing.T) {
	l := NewLauncher("")
	got, err := l.command("wlan0")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"dhclient", "-nw", "wlan0"}; !slices.Equal(got, want) {
		t.Errorf("command = %v, want %v", got, want)
	}

	custom := NewLauncher("udhcpc -b -i %s")
	got, _ = custom.command("wlan1")
	if want := []string{"udhcpc", "-b", "-i", "wlan1"}; !slices.Equal(got, want) {
		t.Errorf("command = %v, want %v", got, want)
	}
}

func TestCommandRejectsBadInterface(t *testing.T) {
	l := NewLauncher("")
	for _, name := range []string{"", "wlan0 -x", "../eth0"} {
		if _, err := l.command(name); !errors.Is(err, errcode.ErrInvalidArgument) {
			t.Errorf("command(%q) error = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestLaunchRunsInBackground(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}
	marker := filepath.Join(t.TempDir(), "launched")
	script := filepath.Join(t.TempDir(), "fake-dhclient")
	if err := os.WriteFile(script, []byte("#!"+sh+"\necho \"$1\" > "+marker+"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewLauncher(script + " %s")
	if err := l.Launch(context.Background(), "wlan0"); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(marker)
		if err == nil && string(data) == "wlan0\n" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("client did not run: %q, %v", data, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLaunchMissingBinary(t *testing.T) {
	l := NewLauncher(filepath.Join(t.TempDir(), "no-such-client") + " %s")
	if err := l.Launch(context.Background(), "wlan0"); err == nil {
		t.Error("expected an error for a missing binary")
	}
}

func TestLaunchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLauncher("").Launch(ctx, "wlan0"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
