package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/api"
	"git.home.luguber.info/inful/alarmd/internal/registry"
)

// AlarmCmd groups the alarm management subcommands.
type AlarmCmd struct {
	List    AlarmListCmd    `cmd:"" default:"1" help:"List alarms"`
	Add     AlarmAddCmd     `cmd:"" help:"Create an alarm"`
	Edit    AlarmEditCmd    `cmd:"" help:"Change an alarm"`
	Enable  AlarmEnableCmd  `cmd:"" help:"Enable an alarm"`
	Disable AlarmDisableCmd `cmd:"" help:"Disable an alarm"`
	Rm      AlarmRemoveCmd  `cmd:"" aliases:"delete" help:"Delete an alarm"`
}

type AlarmListCmd struct{}

func (c *AlarmListCmd) Run(g *Global, root *CLI) error {
	alarms, err := root.Client().ListAlarms(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), alarms)
	}
	if len(alarms) == 0 {
		_, _ = fmt.Fprintln(g.out(), "No alarms")
		return nil
	}
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTIME\tREPEAT\tTASK\tENABLED\tNEXT\tLABEL")
	for _, a := range alarms {
		next := "-"
		if !a.NextTrigger.IsZero() {
			next = "in " + a.TimeUntil
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n",
			a.ID, a.TimeString(), a.Repeat, a.TaskKind, a.Enabled, next, a.Label)
	}
	return tw.Flush()
}

type AlarmAddCmd struct {
	Time     string `arg:"" help:"Wall-clock time as HH:MM"`
	Days     string `short:"d" help:"Repeat days: mon,wed,fri or daily, weekdays, weekends (empty = one time)"`
	Task     string `short:"t" help:"Dismiss task: steps, hold or delay (default from settings)"`
	Sound    string `short:"s" help:"Sound file reference"`
	Label    string `short:"l" help:"Alarm label"`
	Disabled bool   `help:"Create the alarm disabled"`
}

func (c *AlarmAddCmd) Run(g *Global, root *CLI) error {
	req := api.AlarmRequest{SoundRef: c.Sound, Label: c.Label}
	var err error
	if req.Hour, req.Minute, err = alarm.ParseClock(c.Time); err != nil {
		return err
	}
	if req.RepeatDays, err = parseDays(c.Days); err != nil {
		return err
	}
	if c.Task != "" {
		if req.TaskKind, err = alarm.ParseTaskKind(c.Task); err != nil {
			return err
		}
	}
	if c.Disabled {
		enabled := false
		req.Enabled = &enabled
	}
	saved, err := root.Client().CreateAlarm(context.Background(), req)
	if err != nil {
		return err
	}
	return printSaved(g.out(), root.JSON, "Created", saved)
}

type AlarmEditCmd struct {
	ID         int64  `arg:"" help:"Alarm id"`
	Time       string `help:"New wall-clock time as HH:MM"`
	Days       string `short:"d" help:"New repeat days (\"once\" clears them)"`
	Task       string `short:"t" help:"New dismiss task"`
	Sound      string `short:"s" help:"New sound file reference"`
	Label      string `short:"l" help:"New label"`
	ClearLabel bool   `help:"Remove the label"`
}

// Run fetches the alarm and replaces it with the flags overlaid; unset flags keep
// their stored values.
func (c *AlarmEditCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	cl := root.Client()
	cur, err := cl.GetAlarm(ctx, c.ID)
	if err != nil {
		return err
	}
	req := api.AlarmRequest{
		Hour:       cur.Hour,
		Minute:     cur.Minute,
		RepeatDays: cur.RepeatDays,
		TaskKind:   cur.TaskKind,
		SoundRef:   cur.SoundRef,
		Label:      cur.Label,
	}
	if c.Time != "" {
		if req.Hour, req.Minute, err = alarm.ParseClock(c.Time); err != nil {
			return err
		}
	}
	if c.Days != "" {
		if req.RepeatDays, err = parseDays(c.Days); err != nil {
			return err
		}
	}
	if c.Task != "" {
		if req.TaskKind, err = alarm.ParseTaskKind(c.Task); err != nil {
			return err
		}
	}
	if c.Sound != "" {
		req.SoundRef = c.Sound
	}
	switch {
	case c.ClearLabel:
		req.Label = ""
	case c.Label != "":
		req.Label = c.Label
	}
	saved, err := cl.UpdateAlarm(ctx, c.ID, req)
	if err != nil {
		return err
	}
	return printSaved(g.out(), root.JSON, "Updated", saved)
}

type AlarmEnableCmd struct {
	ID int64 `arg:"" help:"Alarm id"`
}

func (c *AlarmEnableCmd) Run(g *Global, root *CLI) error {
	return setEnabled(g, root, c.ID, true)
}

type AlarmDisableCmd struct {
	ID int64 `arg:"" help:"Alarm id"`
}

func (c *AlarmDisableCmd) Run(g *Global, root *CLI) error {
	return setEnabled(g, root, c.ID, false)
}

func setEnabled(g *Global, root *CLI, id int64, enabled bool) error {
	saved, err := root.Client().SetEnabled(context.Background(), id, enabled)
	if err != nil {
		return err
	}
	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	return printSaved(g.out(), root.JSON, verb, saved)
}

type AlarmRemoveCmd struct {
	ID int64 `arg:"" help:"Alarm id"`
}

func (c *AlarmRemoveCmd) Run(g *Global, root *CLI) error {
	if err := root.Client().DeleteAlarm(context.Background(), c.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Deleted alarm %d\n", c.ID)
	return nil
}

func parseDays(s string) (alarm.Weekdays, error) {
	days, err := alarm.ParseWeekdayNames(s)
	if err != nil {
		return 0, alarm.ErrInvalidDefinition.Wrap(err).WithContext("days", s)
	}
	return days, nil
}

func printSaved(w io.Writer, asJSON bool, verb string, s registry.Saved) error {
	if asJSON {
		return printJSON(w, s)
	}
	a := s.Alarm
	_, _ = fmt.Fprintf(w, "%s alarm %d at %s (%s)\n", verb, a.ID, a.TimeString(), a.RepeatDays.Describe())
	if !s.NextTrigger.IsZero() {
		_, _ = fmt.Fprintf(w, "Next ring: %s\n", s.NextTrigger.Local().Format("Mon 2006-01-02 15:04"))
	}
	if s.Warning != "" {
		_, _ = fmt.Fprintf(w, "Warning: %s\n", s.Warning)
	}
	return nil
}
