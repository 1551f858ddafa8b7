package main

import (
	"flag"

	"github.com/alejandrodnm/riskadapt/config"
)

// overrides son los flags que pisan valores del config. Solo se aplican los
// que aparecen en la línea de comandos.
type overrides struct {
	baseURL       *string
	size          *float64
	tpMin         *float64
	tpMax         *float64
	tpStep        *float64
	slQuantile    *float64
	slFloor       *float64
	windows       *string
	applyFlag     *bool
	dryRun        *bool
	hysteresisBps *float64
	cooldown      *int
	reevaluate    *int
	poll          *int
	logCSV        *string
}

func registerOverrides(fs *flag.FlagSet) *overrides {
	return &overrides{
		baseURL:       fs.String("base-url", "", "engine API base URL"),
		size:          fs.Float64("size", 0, "notional trade size for the TP optimizer"),
		tpMin:         fs.Float64("tp-min", 0, "TP grid lower bound (fraction)"),
		tpMax:         fs.Float64("tp-max", 0, "TP grid upper bound (fraction)"),
		tpStep:        fs.Float64("tp-step", 0, "TP grid step (fraction)"),
		slQuantile:    fs.Float64("sl-quantile", 0, "loss quantile for the SL, clamped to [0.5, 0.99]"),
		slFloor:       fs.Float64("sl-floor", 0, "minimum SL (fraction)"),
		windows:       fs.String("windows", "", `trailing windows "size[:weight],..."`),
		applyFlag:     fs.Bool("apply", false, "push TP/SL updates to the engine"),
		dryRun:        fs.Bool("dry-run", false, "compute and log decisions but never push"),
		hysteresisBps: fs.Float64("hysteresis-bps", 0, "minimum change in bps before pushing a field"),
		cooldown:      fs.Int("cooldown", 0, "minimum seconds between pushes"),
		reevaluate:    fs.Int("reevaluate", 0, "periodic reevaluation interval in seconds"),
		poll:          fs.Int("poll", 0, "poll interval in seconds"),
		logCSV:        fs.String("log-csv", "", "evaluation CSV log path"),
	}
}

// apply copia al config los flags presentes en la línea de comandos.
func (o *overrides) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.Engine.BaseURL = *o.baseURL
		case "size":
			cfg.Optimizer.PrimarySize = *o.size
		case "tp-min":
			cfg.Optimizer.TPMin = *o.tpMin
		case "tp-max":
			cfg.Optimizer.TPMax = *o.tpMax
		case "tp-step":
			cfg.Optimizer.TPStep = *o.tpStep
		case "sl-quantile":
			cfg.Optimizer.SLQuantile = *o.slQuantile
		case "sl-floor":
			cfg.Optimizer.SLFloor = *o.slFloor
		case "windows":
			cfg.Optimizer.Windows = *o.windows
		case "apply":
			cfg.Apply.Enabled = *o.applyFlag
		case "dry-run":
			cfg.Apply.DryRun = *o.dryRun
		case "hysteresis-bps":
			cfg.Apply.HysteresisBps = *o.hysteresisBps
		case "cooldown":
			cfg.Apply.CooldownSeconds = *o.cooldown
		case "reevaluate":
			cfg.Loop.ReevaluateSeconds = *o.reevaluate
		case "poll":
			cfg.Loop.PollSeconds = *o.poll
		case "log-csv":
			cfg.Storage.LogCSV = *o.logCSV
		}
	})
}
