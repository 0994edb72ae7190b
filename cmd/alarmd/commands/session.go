package commands

import (
	"context"
	"fmt"
	"time"
)

// SessionCmd groups the ringing-session subcommands.
type SessionCmd struct {
	Status  SessionStatusCmd  `cmd:"" default:"1" help:"Show the ringing session"`
	Dismiss SessionDismissCmd `cmd:"" help:"Dismiss the ringing alarm (its task must be complete)"`
	Snooze  SessionSnoozeCmd  `cmd:"" help:"Snooze the ringing alarm"`
	Tap     SessionTapCmd     `cmd:"" help:"Tap the emergency stop control"`
	Show    SessionShowCmd    `cmd:"" help:"Bring the ringing surface back"`
}

type SessionStatusCmd struct{}

func (c *SessionStatusCmd) Run(g *Global, root *CLI) error {
	snap, err := root.Client().Session(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), snap)
	}
	out := g.out()
	if !snap.Active() {
		_, _ = fmt.Fprintf(out, "No alarm ringing (%s)\n", snap.State)
		if snap.LastOutcome != "" {
			_, _ = fmt.Fprintf(out, "Last session: alarm %d, %s\n", snap.AlarmID, snap.LastOutcome)
		}
		return nil
	}
	_, _ = fmt.Fprintf(out, "Alarm %d ringing since %s (%s)\n",
		snap.AlarmID, snap.StartedAt.Local().Format("15:04:05"), snap.State)
	if snap.Label != "" {
		_, _ = fmt.Fprintf(out, "Label: %s\n", snap.Label)
	}
	p := snap.Progress
	_, _ = fmt.Fprintf(out, "Task: %s %d/%d", snap.TaskKind, p.Current, p.Target)
	switch {
	case p.Complete:
		_, _ = fmt.Fprint(out, " complete, ready to dismiss")
	case p.Unavailable:
		_, _ = fmt.Fprint(out, " (sensor unavailable)")
	}
	_, _ = fmt.Fprintln(out)
	if snap.EmergencyTaps > 0 {
		_, _ = fmt.Fprintf(out, "Emergency taps: %d\n", snap.EmergencyTaps)
	}
	if snap.SnoozeCount > 0 {
		_, _ = fmt.Fprintf(out, "Snoozed %d times\n", snap.SnoozeCount)
	}
	return nil
}

type SessionDismissCmd struct{}

func (c *SessionDismissCmd) Run(g *Global, root *CLI) error {
	snap, err := root.Client().Dismiss(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), snap)
	}
	_, _ = fmt.Fprintf(g.out(), "Alarm %d dismissed\n", snap.AlarmID)
	return nil
}

type SessionSnoozeCmd struct{}

func (c *SessionSnoozeCmd) Run(g *Global, root *CLI) error {
	res, err := root.Client().Snooze(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), res)
	}
	_, _ = fmt.Fprintf(g.out(), "Alarm %d snoozed until %s\n", res.AlarmID, res.Until.Local().Format(time.Kitchen))
	return nil
}

type SessionTapCmd struct {
	Times int `short:"n" default:"1" help:"Number of taps to send"`
}

func (c *SessionTapCmd) Run(g *Global, root *CLI) error {
	cl := root.Client()
	for range max(c.Times, 1) {
		res, err := cl.Tap(context.Background())
		if err != nil {
			return err
		}
		if res.Stopped {
			_, _ = fmt.Fprintln(g.out(), "Emergency stop: alarm silenced")
			return nil
		}
		_, _ = fmt.Fprintf(g.out(), "%d more taps to stop\n", res.Remaining)
	}
	return nil
}

type SessionShowCmd struct{}

func (c *SessionShowCmd) Run(_ *Global, root *CLI) error {
	return root.Client().ShowRinging(context.Background())
}
