// Command dpmasterd is the packaged PROFIBUS-DP class-1 master driver:
// it reads a YAML config file, opens the configured PHY, registers the
// configured slaves, and runs the scheduler loop until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mbuesch/godp/internal/config"
	"github.com/mbuesch/godp/internal/dp"
	"github.com/mbuesch/godp/internal/dplog"
	"github.com/mbuesch/godp/internal/fdl"
	"github.com/mbuesch/godp/internal/gsd"
	"github.com/mbuesch/godp/internal/gsd/gsdsim"
	"github.com/mbuesch/godp/internal/phy"
)

var log = dplog.For("main")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("dpmasterd", pflag.ContinueOnError)
	loglevel := flags.Int("loglevel", -1, "logging verbosity 0/1/2, overrides PROFIBUS.debug")
	nice := flags.Int("nice", 0, "process nice level")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dpmasterd [options] config-file\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 1
	}

	cfg, err := config.Load(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := dplog.Level(cfg.Profibus.Debug)
	if *loglevel >= 0 {
		level = dplog.Level(*loglevel)
	}
	dplog.SetLevel(level)
	_ = nice // process priority is a deployment concern, not exercised in-process

	master, cleanup, err := buildMaster(cfg)
	if err != nil {
		log.Error("setup failed", "err", err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runScheduler(ctx, master)
	return 0
}

func buildMaster(cfg *config.Config) (*dp.Master, func(), error) {
	t, err := openPHY(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	if err := t.Open(context.Background(), cfg.PHY.Baud); err != nil {
		return nil, func() {}, err
	}
	if sp, ok := t.(*phy.Serial); ok {
		go sp.ReadPump(context.Background())
	}

	profile := fdl.NewProfile(cfg.PHY.Baud)
	master := dp.NewMaster(byte(cfg.DP.MasterAddr), t, profile)

	gsdConsumer := &gsd.Cache{Inner: gsdsim.New()}
	for _, s := range cfg.Slaves {
		desc, err := gsdConsumer.Parse(s.GSD)
		if err != nil {
			_ = t.Close()
			return nil, func() {}, fmt.Errorf("slave %d: %w", s.Addr, err)
		}
		if err := gsd.Validate(desc); err != nil {
			_ = t.Close()
			return nil, func() {}, err
		}
		master.AddSlave(&dp.SlaveDesc{
			Addr:          byte(s.Addr),
			IdentNumber:   desc.IdentNumber,
			UserPrmData:   desc.DefaultUserPrmData,
			InputSize:     s.InputSize,
			OutputSize:    s.OutputSize,
			WatchdogMs:    s.WatchdogMs,
			GroupMask:     byte(s.GroupMask),
			SyncCapable:   desc.Attrs.SyncCapable,
			FreezeCapable: desc.Attrs.FreezeCapable,
			DiagPeriod:    s.DiagPeriod,
		})
	}

	cleanup := func() {
		master.Shutdown()
		_ = t.Close()
	}
	return master, cleanup, nil
}

func openPHY(cfg *config.Config) (phy.Transceiver, error) {
	switch cfg.PHY.Type {
	case config.PHYSerial:
		var line phy.GPIOLine
		if cfg.PHY.TxEnablePin != "" {
			l, err := phy.OpenTxEnableGPIO(cfg.PHY.TxEnablePin)
			if err != nil {
				return nil, err
			}
			line = l
		}
		return phy.NewSerial(cfg.PHY.Dev, line), nil
	case config.PHYDummy, config.PHYDummySlave:
		return phy.NewDummy(2 * time.Millisecond)
	case config.PHYFPGA:
		return phy.FPGA{}, nil
	default:
		return nil, fmt.Errorf("unhandled PHY.type %q", cfg.PHY.Type)
	}
}

func runScheduler(ctx context.Context, master *dp.Master) {
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			master.Shutdown()
			return
		default:
		}
		if rt := master.Tick(ctx); rt != nil {
			log.Debug("slave state", "addr", rt.Desc.Addr, "state", rt.State.String())
		}
	}
}
