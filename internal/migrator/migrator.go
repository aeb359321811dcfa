// Package migrator implements the per-zone state machine: fetch from
// source, sanitize, probe the target, decide an action, execute it
// against the target, all through a retrying API client pair.
package migrator

import (
	"context"
	"time"

	"pdns-migrate/internal/diff"
	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/pdnsapi"
	"pdns-migrate/internal/sanitize"
	"pdns-migrate/internal/zonemodel"
)

// Options configures one Migrator's reconciliation rules. These are the
// same flags the CLI exposes in §6; the migrator itself has no notion of
// flags, only of the booleans they resolve to.
type Options struct {
	Recreate bool
	DryRun   bool

	IgnoreSOASerial bool

	Sanitize sanitize.Options
}

// Migrator drives a single zone's migration pipeline between a source
// and a target API client. A Migrator does not own its clients' lifetime;
// the caller constructs, shares, and closes them.
type Migrator struct {
	Source *pdnsapi.Client
	Target *pdnsapi.Client
	Opts   Options
}

// New builds a Migrator over an already-constructed source/target client
// pair.
func New(source, target *pdnsapi.Client, opts Options) *Migrator {
	return &Migrator{Source: source, Target: target, Opts: opts}
}

// Migrate runs the full state machine for one zone name and returns its
// result. A non-nil error on the returned result is the error of the step
// that failed: an internal/migerr type for HTTP, transport, cancellation
// and validation failures, or an untyped error when a request cannot be
// built or a response body cannot be decoded.
func (m *Migrator) Migrate(ctx context.Context, zoneName string) zonemodel.MigrationResult {
	started := time.Now()
	zoneName = zonemodel.NormalizeZoneName(zoneName)
	result := zonemodel.MigrationResult{Zone: zoneName}

	if err := ctx.Err(); err != nil {
		result.Err = &migerr.CancelledError{Zone: zoneName, Reason: "cancelled before start"}
		result.Elapsed = time.Since(started)
		return result
	}

	raw, err := m.Source.GetZone(ctx, zoneName)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}

	source, err := sanitize.Zone(*raw, m.Opts.Sanitize)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}
	result.SourceZone = &source

	exists, err := m.Target.ZoneExists(ctx, zoneName)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}

	if !exists {
		result.MigratorAction = zonemodel.ActionCreateZone
		result.Changes = fullCreateChanges(source)
		if !m.Opts.DryRun {
			created, err := m.Target.CreateZone(ctx, source)
			if err != nil {
				result.Err = err
				result.Elapsed = time.Since(started)
				return result
			}
			result.TargetZone = created
		} else {
			result.TargetZone = &source
		}
		result.Elapsed = time.Since(started)
		return result
	}

	targetRaw, err := m.Target.GetZone(ctx, zoneName)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}
	target, err := sanitize.Zone(*targetRaw, m.Opts.Sanitize)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}
	result.TargetZone = &target

	changes := diff.Changes(source.RRSets, target.RRSets, diff.Options{IgnoreSOASerial: m.Opts.IgnoreSOASerial})
	result.Changes = changes

	if len(changes) == 0 {
		result.MigratorAction = zonemodel.ActionNoop
		result.Elapsed = time.Since(started)
		return result
	}

	if m.Opts.Recreate {
		result.MigratorAction = zonemodel.ActionRecreateZone
		if !m.Opts.DryRun {
			if err := m.Target.DeleteZone(ctx, zoneName); err != nil {
				result.Err = err
				result.Elapsed = time.Since(started)
				return result
			}
			created, err := m.Target.CreateZone(ctx, source)
			if err != nil {
				result.Err = err
				result.Elapsed = time.Since(started)
				return result
			}
			result.TargetZone = created
		} else {
			result.TargetZone = &source
		}
		result.Elapsed = time.Since(started)
		return result
	}

	result.MigratorAction = zonemodel.ActionPatchZone
	if !m.Opts.DryRun {
		if err := m.Target.PatchRRSets(ctx, zoneName, changes); err != nil {
			result.Err = err
			result.Elapsed = time.Since(started)
			return result
		}
	}
	result.Elapsed = time.Since(started)
	return result
}

// fullCreateChanges describes a fresh zone's full rrset list as the
// "changes" a CREATE_ZONE action reports, per §3's Migration result
// contract.
func fullCreateChanges(zone zonemodel.Zone) []zonemodel.Change {
	changes := make([]zonemodel.Change, 0, len(zone.RRSets))
	for _, rr := range zone.RRSets {
		changes = append(changes, zonemodel.Change{
			ChangeType: zonemodel.ChangeReplace,
			Name:       rr.Name,
			Type:       rr.Type,
			TTL:        rr.TTL,
			Records:    rr.Records,
			Comments:   rr.Comments,
		})
	}
	return changes
}
