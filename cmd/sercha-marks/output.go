package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

var (
	Red       = color.New(color.FgRed)
	Green     = color.New(color.FgGreen)
	GreenBold = color.New(color.FgGreen).Add(color.Bold)
	Cyan      = color.New(color.FgCyan)
	CyanBold  = color.New(color.FgCyan).Add(color.Bold)
	Yellow    = color.New(color.FgYellow)
)

func printSyncResult(w io.Writer, r *domain.SyncResult) {
	if r == nil {
		return
	}
	if !r.Success {
		Red.Fprintf(w, "✗ %s: %s\n", r.ProviderID, r.Error)
		return
	}
	Green.Fprintf(w, "✓ %s", r.ProviderID)
	fmt.Fprintf(w, ": +%d ~%d -%d (%d total) in %.2fs\n",
		r.Stats.Added, r.Stats.Updated, r.Stats.Removed, r.Stats.Total, r.Duration)
}

func printSweep(w io.Writer, s *domain.SweepResult) {
	if s == nil {
		return
	}
	if s.Skipped {
		Yellow.Fprintln(w, "A sync is already running; nothing to do.")
		return
	}
	CyanBold.Fprintf(w, "Synced %d provider(s): %d ok, %d failed\n", s.Total, s.Successful, s.Failed)
	for _, r := range s.Results {
		printSyncResult(w, r)
	}
}

func printStatus(w io.Writer, status *domain.SchedulerStatus, providers []*domain.ProviderStatus, now time.Time) {
	if status != nil {
		CyanBold.Fprintln(w, "Scheduler")
		if status.InProgress {
			fmt.Fprintln(w, "  sync in progress")
		}
		if status.Periodic != nil {
			fmt.Fprintf(w, "  every %s, next run in %s\n", status.Periodic.Period, status.Periodic.NextRun.Sub(now).Round(time.Second))
		}
		for _, t := range status.Retries {
			Yellow.Fprintf(w, "  retry %s in %s\n", t.Name, t.NextRun.Sub(now).Round(time.Second))
		}
	}
	if len(providers) == 0 {
		return
	}
	CyanBold.Fprintln(w, "Providers")
	for _, p := range providers {
		state := Red.Sprint("disconnected")
		if p.Authenticated {
			state = Green.Sprint("connected")
		}
		enabled := "disabled"
		if p.Enabled {
			enabled = "enabled"
		}
		fmt.Fprintf(w, "  %-8s %s, %s, %d item(s)", p.ProviderID, state, enabled, p.ItemCount)
		if p.LastSync != nil {
			fmt.Fprintf(w, ", last sync %s ago", now.Sub(*p.LastSync).Round(time.Second))
		}
		fmt.Fprintln(w)
		if p.LastError != "" {
			Red.Fprintf(w, "           %s\n", p.LastError)
		}
	}
}

func printResponse(w io.Writer, resp *driving.Response, now time.Time) {
	switch {
	case resp.Sweep != nil:
		printSweep(w, resp.Sweep)
	case resp.Result != nil:
		printSyncResult(w, resp.Result)
	case resp.Auth != nil:
		if resp.Auth.User != nil {
			GreenBold.Fprintf(w, "Connected as %s\n", resp.Auth.User.Login)
		} else {
			GreenBold.Fprintln(w, "Connected")
		}
	case resp.Status != nil || len(resp.Providers) > 0:
		printStatus(w, resp.Status, resp.Providers, now)
	default:
		Green.Fprintln(w, "OK")
	}
}
