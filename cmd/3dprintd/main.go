// Command 3dprintd is the daemon process: it loads configuration,
// wires every subsystem together in dependency order, serves the HTTP
// API, and performs orderly shutdown on SIGINT/SIGTERM.
//
// Grounded on host/cmd/gopper-host/main.go: plain flag-based CLI, no
// framework, straight-line construction with early os.Exit(1) on setup
// failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PS-3D/3dprintd/internal/api"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/conf"
	"github.com/PS-3D/3dprintd/internal/errbus"
	"github.com/PS-3D/3dprintd/internal/estop"
	"github.com/PS-3D/3dprintd/internal/executor"
	"github.com/PS-3D/3dprintd/internal/gcode"
	"github.com/PS-3D/3dprintd/internal/hal"
	"github.com/PS-3D/3dprintd/internal/hwctrl"
	"github.com/PS-3D/3dprintd/internal/kinematics"
	applog "github.com/PS-3D/3dprintd/internal/log"
	"github.com/PS-3D/3dprintd/internal/motors"
	"github.com/PS-3D/3dprintd/internal/nanotec"
	"github.com/PS-3D/3dprintd/internal/revpi"
	"github.com/PS-3D/3dprintd/internal/settings"
	"github.com/PS-3D/3dprintd/internal/thermal"
	"go.uber.org/zap"
)

var configPath = flag.String("config", "/etc/3dprintd/3dprintd.toml", "path to the TOML configuration file")

// processImageLayout is the Revolution Pi I/O map this daemon targets.
// Pinout is fixed board wiring, not an operator-tunable value, so it
// lives here rather than in internal/conf.
var processImageLayout = hal.Config{
	ProcessImageSize: 256,
	Endstop: [3]hal.IOPoint{
		axis.X: {Byte: 0, Bit: 0},
		axis.Y: {Byte: 0, Bit: 1},
		axis.Z: {Byte: 0, Bit: 2},
	},
	EStopLine:        hal.IOPoint{Byte: 0, Bit: 3},
	HotendHeater:     hal.IOPoint{Byte: 1, Bit: 0},
	BedHeater:        hal.IOPoint{Byte: 1, Bit: 1},
	Fan:              hal.IOPoint{Byte: 1, Bit: 2},
	HotendThermistor: hal.AnalogPoint{Byte: 2},
	BedThermistor:    hal.AnalogPoint{Byte: 4},
}

func main() {
	flag.Parse()
	fl := conf.NewFlags("3dprintd")
	if err := fl.Parse(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "3dprintd: parse flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "3dprintd: load config: %v\n", err)
		os.Exit(1)
	}
	fl.Apply(cfg)

	logger, err := applog.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "3dprintd: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Named("main").Errorw("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *conf.Config, logger *zap.SugaredLogger) error {
	log := logger.Named("main")

	st, err := settings.Load(cfg.General.SettingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	img, err := revpi.Open(processImageLayout.ProcessImageSize)
	if err != nil {
		return fmt.Errorf("open process image: %w", err)
	}
	defer img.Close()

	layout := processImageLayout
	layout.MotorAddress = [3]uint8{cfg.Motors.X.Address, cfg.Motors.Y.Address, cfg.Motors.Z.Address}
	layout.ExtruderAddress = cfg.Motors.E.Address

	driver, err := nanotec.Open(nanotec.PortConfig{
		Port:     cfg.Motors.Port,
		BaudRate: cfg.Motors.BaudRate,
		Timeout:  time.Duration(cfg.Motors.TimeoutS * float64(time.Second)),
	})
	if err != nil {
		return fmt.Errorf("open motor bus: %w", err)
	}

	h := hal.New(layout, img, driver)

	xDir, err := cfg.Motors.X.Direction()
	if err != nil {
		return err
	}
	yDir, err := cfg.Motors.Y.Direction()
	if err != nil {
		return err
	}
	zDir, err := cfg.Motors.Z.Direction()
	if err != nil {
		return err
	}
	eDir, err := cfg.Motors.E.Direction()
	if err != nil {
		return err
	}

	m := motors.New(driver, motors.Config{
		X: motors.AxisConfig{
			Address: cfg.Motors.X.Address, StepMode: nanotec.StepMode(cfg.Motors.X.StepSize),
			QuickStopRamp: nanotec.QuickStopRamp(cfg.Motors.X.QuickstopRamp), EndstopDirection: xDir,
			DefaultReferenceSpeed: cfg.Motors.X.DefaultRefSpeed, DefaultReferenceAccelDecel: cfg.Motors.X.DefaultRefAccelDecel,
			DefaultReferenceJerk: cfg.Motors.X.DefaultRefJerk,
		},
		Y: motors.AxisConfig{
			Address: cfg.Motors.Y.Address, StepMode: nanotec.StepMode(cfg.Motors.Y.StepSize),
			QuickStopRamp: nanotec.QuickStopRamp(cfg.Motors.Y.QuickstopRamp), EndstopDirection: yDir,
			DefaultReferenceSpeed: cfg.Motors.Y.DefaultRefSpeed, DefaultReferenceAccelDecel: cfg.Motors.Y.DefaultRefAccelDecel,
			DefaultReferenceJerk: cfg.Motors.Y.DefaultRefJerk,
		},
		Z: motors.AxisConfig{
			Address: cfg.Motors.Z.Address, StepMode: nanotec.StepMode(cfg.Motors.Z.StepSize),
			QuickStopRamp: nanotec.QuickStopRamp(cfg.Motors.Z.QuickstopRamp), EndstopDirection: zDir,
			DefaultReferenceSpeed: cfg.Motors.Z.DefaultRefSpeed, DefaultReferenceAccelDecel: cfg.Motors.Z.DefaultRefAccelDecel,
			DefaultReferenceJerk: cfg.Motors.Z.DefaultRefJerk,
		},
		E: motors.ExtruderConfig{
			Address: cfg.Motors.E.Address, StepMode: nanotec.StepMode(cfg.Motors.E.StepSize),
			QuickStopRamp: nanotec.QuickStopRamp(cfg.Motors.E.QuickstopRamp), PositiveDirection: eDir,
		},
	})
	if err := m.Init(); err != nil {
		return fmt.Errorf("init motors: %w", err)
	}

	limits := kinematics.Limits{
		X: axisLimits(cfg.Motors.X),
		Y: axisLimits(cfg.Motors.Y),
		Z: axisLimits(cfg.Motors.Z),
		E: extruderLimits(cfg.Motors.E),
	}

	th := thermal.New(h, thermal.Config{
		CheckInterval: time.Duration(cfg.Pi.CheckIntervalMS) * time.Millisecond,
		Hysteresis:    2,
		Epsilon:       1,
	})

	bus := errbus.New()
	es := estop.New(h)
	exec := executor.New(m, th, bus)

	hw := hwctrl.New(exec, th, es, bus, hwctrl.Config{
		Limits: limits,
		GCode: gcode.Config{
			Limits: limits,
			XLimit: cfg.Motors.X.Limit,
			YLimit: cfg.Motors.Y.Limit,
			Hotend: gcode.HeaterBounds{Lower: cfg.Hotend.LowerLimit, Upper: cfg.Hotend.UpperLimit},
			Bed:    gcode.HeaterBounds{Lower: cfg.Bed.LowerLimit, Upper: cfg.Bed.UpperLimit},
			ZHotendLocation: func() float64 {
				return kinematics.StepsToMM(exec.ZHotendOrigin(), limits.Z) - kinematics.StepsToMM(exec.Position().Get(axis.Z), limits.Z)
			},
		},
		AxisDefaults: [3]hwctrl.ReferenceDefaults{
			axis.X: {Speed: cfg.Motors.X.DefaultRefSpeed, AccelDecel: cfg.Motors.X.DefaultRefAccelDecel, Jerk: cfg.Motors.X.DefaultRefJerk},
			axis.Y: {Speed: cfg.Motors.Y.DefaultRefSpeed, AccelDecel: cfg.Motors.Y.DefaultRefAccelDecel, Jerk: cfg.Motors.Y.DefaultRefJerk},
			axis.Z: {Speed: cfg.Motors.Z.DefaultRefSpeed, AccelDecel: cfg.Motors.Z.DefaultRefAccelDecel, Jerk: cfg.Motors.Z.DefaultRefJerk},
		},
	})

	router := api.New(hw, bus, st, logger.Named("api"))
	mux := http.NewServeMux()
	mux.Handle("/v0/", http.StripPrefix("/v0", router))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.API.Address, cfg.API.Port),
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case s := <-sig:
		log.Infow("shutting down", "signal", s)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}

	if err := hw.Exit(); err != nil {
		return fmt.Errorf("hwctrl exit: %w", err)
	}
	if err := m.Close(); err != nil {
		log.Warnw("close motor bus", "error", err)
	}
	return nil
}

func axisLimits(m conf.AxisMotor) kinematics.AxisLimits {
	return kinematics.AxisLimits{
		TranslationMMPerRev: m.Translation,
		Microsteps:          uint32(m.StepSize),
		MinFrequency:        1,
		SpeedLimit:          m.SpeedLimit,
		AccelLimit:          m.AccelLimit,
		DecelLimit:          m.DecelLimit,
		AccelJerkLimit:      m.AccelJerkLimit,
		DecelJerkLimit:      m.DecelJerkLimit,
	}
}

func extruderLimits(m conf.ExtruderMotor) kinematics.AxisLimits {
	return kinematics.AxisLimits{
		TranslationMMPerRev: m.Translation,
		Microsteps:          uint32(m.StepSize),
		MinFrequency:        1,
		SpeedLimit:          m.SpeedLimit,
		AccelLimit:          m.AccelLimit,
		DecelLimit:          m.DecelLimit,
		AccelJerkLimit:      m.AccelJerkLimit,
		DecelJerkLimit:      m.DecelJerkLimit,
	}
}
