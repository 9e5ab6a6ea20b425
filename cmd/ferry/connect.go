package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/transport"
	"github.com/bamsammich/ferry/internal/transport/proto"
)

// connectFlags are the connection flags every client subcommand accepts.
type connectFlags struct {
	mode             string
	interval         time.Duration
	attempts         int
	timeout          time.Duration
	handshakeTimeout time.Duration
	trafficClass     int
}

func (f *connectFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.mode, "connect", "oneshot", "connection mode: oneshot or poll")
	fs.DurationVar(&f.interval, "interval", time.Second, "delay between poll attempts")
	fs.IntVar(&f.attempts, "attempts", 0, "poll: give up after N attempts")
	fs.DurationVar(&f.timeout, "timeout", 0, "poll: give up after this long")
	fs.DurationVar(&f.handshakeTimeout, "handshake-timeout", proto.HandshakeTimeout, "handshake deadline")
	fs.IntVar(&f.trafficClass, "traffic-class", 0, "IP TOS / traffic class byte for the socket")
}

// applyConfig fills flags not set on the command line from the config file.
func (f *connectFlags) applyConfig(fs *pflag.FlagSet, c config.ConnectConfig) {
	if !fs.Changed("connect") && c.Mode != nil {
		f.mode = *c.Mode
	}
	if !fs.Changed("interval") && c.Interval != nil {
		f.interval = c.Interval.Duration
	}
	if !fs.Changed("attempts") && c.Attempts != nil {
		f.attempts = *c.Attempts
	}
	if !fs.Changed("timeout") && c.Timeout != nil {
		f.timeout = c.Timeout.Duration
	}
	if !fs.Changed("handshake-timeout") && c.HandshakeTimeout != nil {
		f.handshakeTimeout = c.HandshakeTimeout.Duration
	}
	if !fs.Changed("traffic-class") && c.TrafficClass != nil {
		f.trafficClass = *c.TrafficClass
	}
}

func (f *connectFlags) options() (transport.ClientOptions, error) {
	mode, err := transport.ParseConnectMode(f.mode, f.interval, f.attempts, f.timeout)
	if err != nil {
		return transport.ClientOptions{}, err
	}
	if f.trafficClass < 0 || f.trafficClass > 255 {
		return transport.ClientOptions{}, fmt.Errorf("--traffic-class must be in [0, 255], got %d", f.trafficClass)
	}
	return transport.ClientOptions{
		Mode: mode,
		Establish: transport.EstablishOptions{
			HandshakeTimeout: f.handshakeTimeout,
			TrafficClass:     f.trafficClass,
		},
	}, nil
}

// dialLocation parses a destination argument and opens a session to it.
func (f *connectFlags) dialLocation(
	ctx context.Context,
	fs *pflag.FlagSet,
	cfg config.Config,
	arg string,
) (*transport.Session, transport.Location, error) {
	f.applyConfig(fs, cfg.Connect)
	loc, err := transport.ParseLocation(arg)
	if err != nil {
		return nil, loc, err
	}
	opts, err := f.options()
	if err != nil {
		return nil, loc, err
	}
	s, err := transport.Dial(ctx, loc.Addr(), opts)
	if err != nil {
		return nil, loc, err
	}
	return s, loc, nil
}
