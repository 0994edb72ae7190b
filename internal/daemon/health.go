package daemon

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/api"
	"git.home.luguber.info/inful/alarmd/internal/version"
)

// Health runs every component check. A failing store is unhealthy; a missing optional
// capability only degrades.
func (d *Daemon) Health() api.HealthResponse {
	checks := []api.HealthCheck{
		d.checkDaemon(),
		d.checkStore(),
		d.checkWakeups(),
		d.checkDispatcher(),
		d.checkSound(),
		d.checkBridge(),
	}

	overall := api.HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case api.HealthStatusUnhealthy:
			overall = api.HealthStatusUnhealthy
		case api.HealthStatusDegraded:
			if overall == api.HealthStatusHealthy {
				overall = api.HealthStatusDegraded
			}
		}
	}

	now := d.clock.Now()
	uptime := ""
	if !d.startTime.IsZero() {
		uptime = now.Sub(d.startTime).Truncate(time.Second).String()
	}
	return api.HealthResponse{
		Status:    overall,
		Timestamp: now,
		Uptime:    uptime,
		Version:   version.Version,
		Checks:    checks,
	}
}

func (d *Daemon) checkDaemon() api.HealthCheck {
	check := api.HealthCheck{Name: "daemon_status"}
	switch status := d.GetStatus(); status {
	case StatusRunning:
		check.Status = api.HealthStatusHealthy
		check.Message = "Daemon is running normally"
	case StatusStarting, StatusStopping:
		check.Status = api.HealthStatusDegraded
		check.Message = "Daemon is " + string(status)
	default:
		check.Status = api.HealthStatusUnhealthy
		check.Message = "Daemon is " + string(status)
	}
	return check
}

func (d *Daemon) checkStore() api.HealthCheck {
	check := api.HealthCheck{Name: "alarm_store"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	all, err := d.store.All(ctx)
	if err != nil {
		check.Status = api.HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Alarm store unreadable: %v", err)
		return check
	}
	check.Status = api.HealthStatusHealthy
	check.Message = fmt.Sprintf("%d alarms stored", len(all))
	return check
}

func (d *Daemon) checkWakeups() api.HealthCheck {
	check := api.HealthCheck{Name: "exact_wakeups"}
	if !d.wakeups.CanScheduleExact() {
		check.Status = api.HealthStatusDegraded
		check.Message = "Exact wake-ups not permitted; alarms will not be registered"
		return check
	}
	check.Status = api.HealthStatusHealthy
	check.Message = fmt.Sprintf("%d wake-ups registered", len(d.wakeups.Registered()))
	return check
}

func (d *Daemon) checkDispatcher() api.HealthCheck {
	check := api.HealthCheck{Name: "trigger_dispatcher", Status: api.HealthStatusHealthy}
	pending := d.dispatcher.Pending()
	if pending > 0 {
		check.Message = fmt.Sprintf("%s, %d triggers queued", d.dispatcher.State(), pending)
	} else {
		check.Message = string(d.dispatcher.State())
	}
	return check
}

func (d *Daemon) checkSound() api.HealthCheck {
	if !d.soundReady {
		return api.HealthCheck{Name: "sound", Status: api.HealthStatusDegraded, Message: "No audio device; alarms ring silently"}
	}
	return api.HealthCheck{Name: "sound", Status: api.HealthStatusHealthy, Message: "Audio device open"}
}

func (d *Daemon) checkBridge() api.HealthCheck {
	check := api.HealthCheck{Name: "companion_bridge"}
	switch {
	case !d.cfg.NATS.Enabled:
		check.Status = api.HealthStatusHealthy
		check.Message = "Disabled"
	case d.bridge == nil:
		check.Status = api.HealthStatusDegraded
		check.Message = "Not connected; running headless"
	case !d.bridge.Connected():
		check.Status = api.HealthStatusDegraded
		check.Message = "Reconnecting to " + d.cfg.NATS.URL
	default:
		check.Status = api.HealthStatusHealthy
		check.Message = "Connected to " + d.cfg.NATS.URL
	}
	return check
}
