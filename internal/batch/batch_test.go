package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/zonemodel"
)

func TestRunProducesOneResultPerZoneInInputOrder(t *testing.T) {
	zones := []string{"a.com.", "b.com.", "c.com.", "d.com."}
	d := New(Options{Concurrency: 2})

	report := d.Run(context.Background(), context.Background(), zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		return zonemodel.MigrationResult{Zone: zone}
	})

	if len(report.Results) != len(zones) {
		t.Fatalf("expected %d results, got %d", len(zones), len(report.Results))
	}
	for i, z := range zones {
		if report.Results[i].Zone != z {
			t.Errorf("result %d: expected zone %s, got %s", i, z, report.Results[i].Zone)
		}
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	zones := make([]string, 8)
	for i := range zones {
		zones[i] = "zone.com."
	}

	var inFlight, maxInFlight int32
	d := New(Options{Concurrency: 3})

	d.Run(context.Background(), context.Background(), zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if cur <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return zonemodel.MigrationResult{Zone: zone}
	})

	if got := atomic.LoadInt32(&maxInFlight); got > 3 {
		t.Errorf("observed %d concurrent jobs, want at most 3", got)
	}
}

func TestRunStopOnErrorHaltsDispatchAfterFailure(t *testing.T) {
	zones := []string{"a.com.", "b.com.", "c.com.", "d.com.", "e.com."}
	d := New(Options{Concurrency: 1, OnError: OnErrorStop})

	report := d.Run(context.Background(), context.Background(), zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		if zone == "b.com." {
			return zonemodel.MigrationResult{Zone: zone, Err: &migerr.ValidationError{Zone: zone, Reason: "boom"}}
		}
		return zonemodel.MigrationResult{Zone: zone}
	})

	if report.StoppedBy == nil {
		t.Fatal("expected StoppedBy to be set once the failure triggers the stop policy")
	}

	var cancelledAfterFailure bool
	sawFailure := false
	for _, r := range report.Results {
		if r.Zone == "b.com." {
			sawFailure = true
			continue
		}
		if sawFailure && r.Err != nil {
			cancelledAfterFailure = true
		}
	}
	if !cancelledAfterFailure {
		t.Error("expected at least one zone dispatched after the failure to end up cancelled")
	}
}

func TestRunContinueOnErrorRunsEveryZone(t *testing.T) {
	zones := []string{"a.com.", "b.com.", "c.com."}
	d := New(Options{Concurrency: 2, OnError: OnErrorContinue})

	report := d.Run(context.Background(), context.Background(), zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		if zone == "b.com." {
			return zonemodel.MigrationResult{Zone: zone, Err: &migerr.ValidationError{Zone: zone, Reason: "boom"}}
		}
		return zonemodel.MigrationResult{Zone: zone}
	})

	if report.StoppedBy != nil {
		t.Fatalf("continue policy should never set StoppedBy, got %v", report.StoppedBy)
	}
	succeeded := 0
	for _, r := range report.Results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded != 2 {
		t.Errorf("expected the two non-failing zones to succeed, got %d", succeeded)
	}
}

func TestRunEmitsFinalProgressSnapshot(t *testing.T) {
	zones := []string{"a.com."}
	var snapshots []Snapshot
	d := New(Options{Concurrency: 1, ProgressInterval: time.Hour, OnProgress: func(s Snapshot) {
		snapshots = append(snapshots, s)
	}})

	d.Run(context.Background(), context.Background(), zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		return zonemodel.MigrationResult{Zone: zone}
	})

	if len(snapshots) == 0 {
		t.Fatal("expected the final snapshot to be emitted even with a progress interval longer than the run")
	}
	last := snapshots[len(snapshots)-1]
	if last.Completed != 1 || last.Total != 1 {
		t.Errorf("final snapshot should reflect full completion, got %+v", last)
	}
}

func TestRunHardCancelAbandonsEveryZone(t *testing.T) {
	zones := []string{"a.com.", "b.com."}
	hardCtx, hardCancel := context.WithCancel(context.Background())
	hardCancel()
	d := New(Options{Concurrency: 2})

	report := d.Run(context.Background(), hardCtx, zones, func(ctx context.Context, zone string) zonemodel.MigrationResult {
		t.Error("migrate should never be invoked once hardCtx is already cancelled")
		return zonemodel.MigrationResult{Zone: zone}
	})

	for _, r := range report.Results {
		if migerr.Kind(r.Err) != "CancelledError" {
			t.Errorf("expected zone %s to end up cancelled, got err=%v", r.Zone, r.Err)
		}
	}
}
