package kcp

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config collects the engine tunables so they can be loaded from a file
// and applied to every session.
type Config struct {
	MTU        int  `json:"mtu"`
	SndWnd     int  `json:"snd_wnd"`
	RcvWnd     int  `json:"rcv_wnd"`
	NoDelay    bool `json:"nodelay"`
	Interval   int  `json:"interval"`
	Resend     int  `json:"resend"`
	NoCwnd     bool `json:"nc"`
	Stream     bool `json:"stream"`
	DeadLink   int  `json:"dead_link"`
	FastLimit  int  `json:"fast_limit"`
	MinRTO     int  `json:"min_rto"`
	LogMask    int  `json:"log_mask"`
	ReadBuffer int  `json:"read_buffer"` // UDP socket buffer, 0 keeps the OS default
}

// DefaultConfig matches a freshly created engine.
func DefaultConfig() Config {
	return Config{
		MTU:       IKCP_MTU_DEF,
		SndWnd:    IKCP_WND_SND,
		RcvWnd:    IKCP_WND_RCV,
		Interval:  IKCP_INTERVAL,
		DeadLink:  IKCP_DEADLINK,
		FastLimit: IKCP_FASTACK_LIMIT,
	}
}

// NormalConfig keeps congestion control and disables no-delay.
func NormalConfig() Config {
	c := DefaultConfig()
	c.Interval = 40
	return c
}

func FastConfig() Config {
	c := DefaultConfig()
	c.NoDelay = true
	c.Interval = 30
	c.Resend = 2
	c.NoCwnd = true
	return c
}

func FastestConfig() Config {
	c := DefaultConfig()
	c.NoDelay = true
	c.Interval = 10
	c.Resend = 2
	c.NoCwnd = true
	return c
}

// LoadConfig reads a JSON file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return c, errors.Wrap(err, "open config")
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return c, errors.Wrapf(err, "decode config %s", path)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.MTU < IKCP_MTU_MIN || c.MTU > 1<<maxBufferShift {
		return errors.Wrapf(ErrMtuInvalid, "mtu %d", c.MTU)
	}
	if c.SndWnd < 0 || c.RcvWnd < 0 {
		return errors.Errorf("kcp: negative window %d/%d", c.SndWnd, c.RcvWnd)
	}
	if c.Resend < 0 {
		return errors.Errorf("kcp: negative resend %d", c.Resend)
	}
	return nil
}

// Apply configures k. Zero windows, interval, dead link and min rto keep the
// engine's values.
func (c Config) Apply(k *IKcp) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := k.SetMtu(c.MTU); err != nil {
		return err
	}
	k.SetWndSize(c.SndWnd, c.RcvWnd)
	interval := c.Interval
	if interval == 0 {
		interval = -1
	}
	k.NoDelay(c.NoDelay, interval, c.Resend, c.NoCwnd)
	k.SetStreamMode(c.Stream)
	k.SetDeadLink(c.DeadLink)
	k.SetFastLimit(c.FastLimit)
	k.SetMinRTO(c.MinRTO)
	if c.LogMask != 0 {
		k.SetLogMask(KcpLogType(c.LogMask))
	}
	return nil
}
