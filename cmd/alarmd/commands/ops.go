package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/alarmd/internal/api"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// TriggerCmd implements the 'trigger' command.
type TriggerCmd struct {
	ID int64 `arg:"" help:"Alarm id"`
}

func (c *TriggerCmd) Run(g *Global, root *CLI) error {
	res, err := root.Client().Trigger(context.Background(), c.ID)
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), res)
	}
	_, _ = fmt.Fprintf(g.out(), "Trigger for alarm %d queued (%d pending)\n", res.AlarmID, res.Pending)
	return nil
}

// BootCmd implements the 'boot' command.
type BootCmd struct{}

func (c *BootCmd) Run(g *Global, root *CLI) error {
	report, err := root.Client().Boot(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), report)
	}
	out := g.out()
	_, _ = fmt.Fprintf(out, "Rescheduled %d alarms, pruned %d ledger entries\n", report.Rescheduled, report.Pruned)
	for _, e := range report.Errors {
		_, _ = fmt.Fprintf(out, "  failed: %s\n", e)
	}
	if len(report.Errors) > 0 {
		return errors.SchedulerError("some alarms could not be rescheduled").
			WithContext("failed", len(report.Errors)).
			Build()
	}
	return nil
}

// NextCmd implements the 'next' command.
type NextCmd struct{}

func (c *NextCmd) Run(g *Global, root *CLI) error {
	next, err := root.Client().Next(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		return printJSON(g.out(), next)
	}
	if next.AlarmID == 0 {
		_, _ = fmt.Fprintln(g.out(), "No alarm scheduled")
		return nil
	}
	_, _ = fmt.Fprintf(g.out(), "Alarm %d rings %s (in %s)\n",
		next.AlarmID, next.TriggerAt.Local().Format("Mon 15:04"), next.TimeUntil)
	return nil
}

// HealthCmd implements the 'health' command. It fails when the daemon is unhealthy.
type HealthCmd struct{}

func (c *HealthCmd) Run(g *Global, root *CLI) error {
	h, err := root.Client().Health(context.Background())
	if err != nil {
		return err
	}
	if root.JSON {
		if err := printJSON(g.out(), h); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(g.out(), "alarmd %s: %s (up %s)\n", h.Version, h.Status, h.Uptime)
		tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		for _, chk := range h.Checks {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", chk.Name, chk.Status, chk.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if h.Status == api.HealthStatusUnhealthy {
		return errors.DaemonError("daemon is unhealthy").Build()
	}
	return nil
}
