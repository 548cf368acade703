package main

import (
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/lab47/gemnet/gem"
	"github.com/lab47/gemnet/gemsim"
	"github.com/lab47/gemnet/macb"
	"github.com/lab47/gemnet/pkg/dma"
	"github.com/lab47/gemnet/pkg/pmap"
	"github.com/lab47/gemnet/vhostuser"
	"github.com/lab47/lsvd/logger"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	fSocketPath = flag.String("socket-path", "", "path to listen on")
	fRegs       = flag.String("regs", "/dev/mem", "device exposing the GEM register window")
	fRegsOffset = flag.Int64("regs-offset", 0, "offset of the register window within -regs")
	fSim        = flag.Bool("sim", false, "drive a simulated MAC instead of hardware")
	fTap        = flag.String("tap", "", "with -sim, carry frames over this tap interface")
	fPoll       = flag.Duration("poll", time.Millisecond, "interrupt poll interval")
	fMAC        = flag.String("mac", "", "MAC address to program at startup")
)

func main() {
	flag.Parse()

	if *fSocketPath == "" {
		panic("provide a socket path")
	}

	log := logger.New(logger.Trace)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer cancel()

	drv, err := setupDevice(ctx, log)
	if err != nil {
		log.Error("error setting up device", "error", err)
		os.Exit(1)
	}

	addr, err := net.ResolveUnixAddr("unix", *fSocketPath)
	if err != nil {
		panic(err)
	}

	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		panic(err)
	}

	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	log.Info("listening for vhost-user front-ends", "path", *fSocketPath)

	for {
		c, err := l.AcceptUnix()
		if err != nil {
			if ctx.Err() == nil {
				log.Error("error accepting connection", "error", err)
			}
			return
		}

		d := vhostuser.NewDevice(log, c, drv, *fPoll)

		err = d.Process()
		if err != nil && !errors.Is(err, io.EOF) {
			log.Error("error processing requests", "error", err)
		}

		c.Close()

		log.Info("front-end disconnected", "stats", drv.PollStats())

		drv.Reset()
	}
}

func setupDevice(ctx context.Context, log logger.Logger) (*macb.Driver, error) {
	var (
		drv *macb.Driver
		err error
	)

	if *fSim {
		drv, err = setupSim(ctx, log)
	} else {
		drv, err = setupHardware(log)
	}

	if err != nil {
		return nil, err
	}

	drv.Reset()

	if *fMAC != "" {
		hw, err := net.ParseMAC(*fMAC)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing -mac")
		}

		var a gem.HardwareAddr
		if len(hw) != len(a) {
			return nil, errors.Errorf("-mac %s is not a 48-bit address", *fMAC)
		}

		copy(a[:], hw)
		drv.SetMAC(a)
	}

	return drv, nil
}

func setupHardware(log logger.Logger) (*macb.Driver, error) {
	bank, err := gem.OpenMapBank(*fRegs, *fRegsOffset)
	if err != nil {
		return nil, err
	}

	arena, err := dma.Map(macb.ArenaSize)
	if err != nil {
		return nil, err
	}

	pm := pmap.NewPagemap()

	err = pm.Pin(arena.Mem())
	if err != nil {
		return nil, errors.Wrapf(err, "pinning dma arena")
	}

	return macb.New(log, gem.NewRegs(bank), arena, pm)
}

func setupSim(ctx context.Context, log logger.Logger) (*macb.Driver, error) {
	arena := dma.New(macb.ArenaSize)

	var tr pmap.Identity

	sim := gemsim.New(log, arena, tr)

	if *fTap != "" {
		link, iface, err := gemsim.OpenTapLink(ctx, log, *fTap, sim)
		if err != nil {
			return nil, err
		}

		go func() {
			<-ctx.Done()
			iface.Close()
		}()

		go func() {
			err := link.ReceiveFrames(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error("error reading tap", "error", err)
			}
		}()
	}

	drv, err := macb.New(log, gem.NewRegs(sim), arena, tr)
	if err != nil {
		return nil, err
	}

	if log.IsTrace() {
		log.Trace("simulated mac registers", "regs", sim.Dump())
	}

	return drv, nil
}
