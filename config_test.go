package kcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kcp.json")
	body := `{"mtu": 1200, "nodelay": true, "interval": 20, "resend": 2, "nc": true, "rcv_wnd": 512, "dead_link": 20}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.MTU != 1200 || !c.NoDelay || c.Interval != 20 || c.RcvWnd != 512 {
		t.Fatalf("got %+v", c)
	}
	// unset keys keep the defaults
	if c.SndWnd != IKCP_WND_SND || c.FastLimit != IKCP_FASTACK_LIMIT {
		t.Errorf("defaults lost: %+v", c)
	}

	k := NewIKcp(1, nil, nil)
	if err := c.Apply(k); err != nil {
		t.Fatal(err)
	}
	if k.Mss() != 1176 || k.interval != 20 || k.fastresend != 2 || !k.nocwnd {
		t.Errorf("apply: mss %d interval %d resend %d nc %v", k.Mss(), k.interval, k.fastresend, k.nocwnd)
	}
	if k.rcv_wnd != 512 || k.dead_link != 20 || k.rx_minrto != IKCP_RTO_NDL {
		t.Errorf("apply: rcv_wnd %d dead_link %d minrto %d", k.rcv_wnd, k.dead_link, k.rx_minrto)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"mtu": 10}`), 0o644)
	if _, err := LoadConfig(bad); !errors.Is(err, ErrMtuInvalid) {
		t.Errorf("small mtu: %v", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte(`{"mtu":`), 0o644)
	if _, err := LoadConfig(garbage); err == nil {
		t.Error("truncated json accepted")
	}
}

func TestConfigProfiles(t *testing.T) {
	for name, c := range map[string]Config{
		"default": DefaultConfig(),
		"normal":  NormalConfig(),
		"fast":    FastConfig(),
		"fastest": FastestConfig(),
	} {
		k := NewIKcp(1, nil, nil)
		if err := c.Apply(k); err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if k.interval != uint32(c.Interval) || k.nodelay != c.NoDelay {
			t.Errorf("%s: interval %d nodelay %v", name, k.interval, k.nodelay)
		}
	}

	c := DefaultConfig()
	c.Resend = -1
	if err := c.Validate(); err == nil {
		t.Error("negative resend accepted")
	}
}
