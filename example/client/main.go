package main

import (
	"flag"
	"strconv"
	"time"

	"github.com/gorustyt/kcp"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("server", "127.0.0.1:8080", "server udp address")
	configPath := flag.String("config", "", "json config file")
	count := flag.Int("count", 10, "messages to send")
	every := flag.Duration("every", time.Second, "delay between messages")
	flag.Parse()

	kcp.SetLogLevel(kcp.LogLevelInfo)
	config := kcp.FastConfig()
	if *configPath != "" {
		var err error
		if config, err = kcp.LoadConfig(*configPath); err != nil {
			kcp.Error("config", zap.Error(err))
			return
		}
	}

	c, err := kcp.DialWithConfig("udp", *addr, config)
	if err != nil {
		kcp.Error("dial", zap.Error(err))
		return
	}
	defer c.Close()

	buf := make([]byte, 64*1024)
	for i := 0; i < *count; i++ {
		msg := "client send to server " + strconv.Itoa(i)
		start := time.Now()
		if _, err := c.Write([]byte(msg)); err != nil {
			kcp.Error("write", zap.Error(err))
			return
		}
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := c.Read(buf)
		if err != nil {
			kcp.Error("read", zap.Error(err))
			return
		}
		kcp.Info("echo", zap.String("msg", string(buf[:n])), zap.Duration("rtt", time.Since(start)))
		time.Sleep(*every)
	}
	s := kcp.DefaultSnmp.Copy()
	kcp.Info("snmp", zap.Strings("header", s.Header()), zap.Strings("values", s.ToSlice()))
}
