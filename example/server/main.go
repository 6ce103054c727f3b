package main

import (
	"flag"
	"net"

	"github.com/gorustyt/kcp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("listen", ":8080", "udp address to listen on")
	configPath := flag.String("config", "", "json config file")
	profile := flag.String("profile", "fast", "default, normal, fast or fastest")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if *debug {
		kcp.SetLogLevel(kcp.LogLevelDebug)
	} else {
		kcp.SetLogLevel(kcp.LogLevelInfo)
	}
	config, err := loadConfig(*configPath, *profile)
	if err != nil {
		kcp.Error("config", zap.Error(err))
		return
	}

	l, err := kcp.ListenWithConfig("udp", *addr, config)
	if err != nil {
		kcp.Error("listen", zap.Error(err))
		return
	}
	defer l.Close()
	for {
		c, err := l.AcceptKCP()
		if err != nil {
			kcp.Error("accept", zap.Error(err))
			return
		}
		go echo(c)
	}
}

func echo(c *kcp.Conn) {
	defer c.Close()
	kcp.Info("session", zap.Uint32("conv", c.Conv()), zap.Stringer("remote", c.RemoteAddr()))
	buf := make([]byte, 64*1024)
	for {
		n, err := c.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				kcp.Warn("read", zap.Error(err), zap.Uint32("conv", c.Conv()))
			}
			return
		}
		if _, err := c.Write(buf[:n]); err != nil {
			kcp.Warn("write", zap.Error(err), zap.Uint32("conv", c.Conv()))
			return
		}
	}
}

func loadConfig(path, profile string) (kcp.Config, error) {
	if path != "" {
		return kcp.LoadConfig(path)
	}
	switch profile {
	case "normal":
		return kcp.NormalConfig(), nil
	case "fast":
		return kcp.FastConfig(), nil
	case "fastest":
		return kcp.FastestConfig(), nil
	}
	return kcp.DefaultConfig(), nil
}
