package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/settings"
)

// SettingsCmd groups the settings subcommands.
type SettingsCmd struct {
	Show SettingsShowCmd `cmd:"" default:"1" help:"Show the current settings"`
	Set  SettingsSetCmd  `cmd:"" help:"Change settings; out-of-range values are clamped"`
}

type SettingsShowCmd struct{}

func (c *SettingsShowCmd) Run(g *Global, root *CLI) error {
	s, err := root.Client().Settings(context.Background())
	if err != nil {
		return err
	}
	return printSettings(g, root, s)
}

// SettingsSetCmd changes only the flags given; zero values keep the stored setting.
type SettingsSetCmd struct {
	Vibration   string `help:"Vibrate while ringing (on|off)"`
	Steps       int    `help:"Steps to walk"`
	Hold        int    `help:"Seconds to hold the device upright"`
	Delay       int    `help:"Seconds to wait before dismiss unlocks"`
	Snooze      int    `help:"Snooze length in minutes"`
	MaxSnoozes  int    `name:"max-snoozes" help:"Snoozes allowed per alarm"`
	DefaultTask string `name:"default-task" help:"Task for new alarms: steps, hold or delay"`
	Sound       string `help:"Default sound file reference"`
}

func (c *SettingsSetCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	cl := root.Client()
	s, err := cl.Settings(ctx)
	if err != nil {
		return err
	}
	switch c.Vibration {
	case "":
	case "on", "off":
		on := c.Vibration == "on"
		s.VibrationEnabled = &on
	default:
		return errors.ValidationError("vibration must be on or off").WithContext("value", c.Vibration).Build()
	}
	if c.Steps != 0 {
		s.StepTarget = c.Steps
	}
	if c.Hold != 0 {
		s.HoldSeconds = c.Hold
	}
	if c.Delay != 0 {
		s.DelaySeconds = c.Delay
	}
	if c.Snooze != 0 {
		s.SnoozeMinutes = c.Snooze
	}
	if c.MaxSnoozes != 0 {
		s.MaxSnoozeCount = c.MaxSnoozes
	}
	if c.DefaultTask != "" {
		if s.DefaultTaskKind, err = alarm.ParseTaskKind(c.DefaultTask); err != nil {
			return err
		}
	}
	if c.Sound != "" {
		s.DefaultSound = c.Sound
	}
	saved, err := cl.SaveSettings(ctx, s)
	if err != nil {
		return err
	}
	return printSettings(g, root, saved)
}

func printSettings(g *Global, root *CLI, s settings.Settings) error {
	if root.JSON {
		return printJSON(g.out(), s)
	}
	out := g.out()
	_, _ = fmt.Fprintf(out, "vibration:         %t\n", s.Vibration())
	_, _ = fmt.Fprintf(out, "step target:       %d\n", s.StepTarget)
	_, _ = fmt.Fprintf(out, "hold seconds:      %d\n", s.HoldSeconds)
	_, _ = fmt.Fprintf(out, "delay seconds:     %d\n", s.DelaySeconds)
	_, _ = fmt.Fprintf(out, "snooze minutes:    %d\n", s.SnoozeMinutes)
	_, _ = fmt.Fprintf(out, "max snoozes:       %d\n", s.MaxSnoozeCount)
	_, _ = fmt.Fprintf(out, "default task:      %s\n", s.DefaultTaskKind)
	if s.DefaultSound != "" {
		_, _ = fmt.Fprintf(out, "default sound:     %s\n", s.DefaultSound)
	}
	return nil
}
