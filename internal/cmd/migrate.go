package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pdns-migrate/internal/archive"
	"pdns-migrate/internal/batch"
	"pdns-migrate/internal/cliconfig"
	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/migrator"
	"pdns-migrate/internal/obslog"
	"pdns-migrate/internal/pdnsapi"
	"pdns-migrate/internal/sanitize"
	"pdns-migrate/internal/zonemodel"
)

// exit codes, per §6.
const (
	exitOK              = 0
	exitZoneFailures    = 1
	exitStoppedByPolicy = 2
	exitCancelled       = 3
	exitUsage           = 64
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Reconcile one or more PowerDNS zones from a source server onto a target server",
	Long: `migrate fetches each named zone from the source PowerDNS server, sanitizes and
normalizes its record sets, decides whether the target needs a create, a patch, a
full recreate, or nothing at all, and applies that decision through the target's
management API. Pass --zone for a single zone or --zones-file for a batch run
under a bounded worker pool.

Limitation: DNSSEC-only zone fields (such as dnssec and nsec3param) are not
carried from the source to the target; the target's own signing
configuration is left as it is.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.String("source-url", "", "source PowerDNS base URL")
	f.String("source-key", "", "source PowerDNS API key")
	f.String("source-server-id", "localhost", "source PowerDNS server id")
	f.String("target-url", "", "target PowerDNS base URL")
	f.String("target-key", "", "target PowerDNS API key")
	f.String("target-server-id", "localhost", "target PowerDNS server id")
	f.String("zone", "", "single zone name to migrate")
	f.String("zones-file", "", "path to a newline-delimited list of zone names")
	f.Bool("recreate", false, "delete and recreate the target zone instead of patching")
	f.Bool("dry-run", false, "compute actions and changes without mutating the target")
	f.Bool("insecure-source", false, "skip TLS verification against the source")
	f.Bool("insecure-target", false, "skip TLS verification against the target")
	f.Float64("timeout", 10, "HTTP per-attempt timeout in seconds")
	f.Int("retries", 3, "number of retry attempts for transient failures")
	f.Float64("retry-backoff", 0.5, "base retry backoff in seconds")
	f.Float64("retry-max-backoff", 5.0, "maximum retry backoff in seconds")
	f.Float64("retry-jitter", 0.1, "maximum additional random jitter in seconds")
	f.Bool("ignore-soa-serial", false, "ignore SOA serial drift when comparing zones")
	f.Bool("auto-fix-cname-conflicts", false, "auto-resolve CNAME/other-type conflicts at an owner name")
	f.Bool("auto-fix-double-cname-conflicts", false, "trim a CNAME rrset with more than one record to its first")
	f.Bool("normalize-txt-escapes", false, "normalize decimal-escape sequences in TXT/SPF content before comparing")
	f.String("on-error", "continue", "batch error policy: continue or stop")
	f.Int("concurrency", 10, "batch worker pool size")
	f.Float64("graceful-timeout", 0, "seconds to wait for in-flight zones to finish after an interrupt (0 = indefinite)")
	f.Float64("progress-interval", 30, "seconds between progress snapshots (0 = disabled)")
	f.String("log-level", "info", "log level: trace, debug, info, warn, error")
	f.Bool("verbose", false, "shorthand for --log-level debug")
	f.Bool("confirm-recreate", false, "skip the interactive confirmation prompt before a non-dry-run --recreate")
	f.String("archive-bucket", "", "S3-compatible bucket name to archive the batch report to")
	f.String("archive-endpoint", "", "archive bucket endpoint host:port")
	f.String("archive-access-key", "", "archive bucket access key")
	f.String("archive-secret-key", "", "archive bucket secret key")
	f.String("archive-glacier-vault", "", "optional AWS Glacier vault name for aged report cold storage")
	f.Duration("archive-cold-after", 30*24*time.Hour, "age after which an archived report moves to the glacier vault")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := cliconfig.Bind(cfg, cmd); err != nil {
		return usageError(err)
	}
	cliconfig.ApplyDefaults(cfg, cmd)

	zone := mustGetStringFlag(cmd, "zone")
	zonesFile := mustGetStringFlag(cmd, "zones-file")
	if (zone == "") == (zonesFile == "") {
		cmd.SilenceUsage = false
		return usageError(migerr.NewConfigError("zone", "exactly one of --zone or --zones-file is required"))
	}

	onError := batch.OnError(mustGetStringFlag(cmd, "on-error"))
	if onError != batch.OnErrorContinue && onError != batch.OnErrorStop {
		return usageError(migerr.NewConfigError("on-error", "must be 'continue' or 'stop'"))
	}

	log := obslog.New(mustGetStringFlag(cmd, "log-level"), mustGetBoolFlag(cmd, "verbose"))

	sourceConn := buildConnection(cmd, "source-url", "source-key", "source-server-id", "insecure-source")
	targetConn := buildConnection(cmd, "target-url", "target-key", "target-server-id", "insecure-target")
	if sourceConn.BaseURL == "" {
		return usageError(migerr.NewConfigError("source-url", "required"))
	}
	if targetConn.BaseURL == "" {
		return usageError(migerr.NewConfigError("target-url", "required"))
	}

	concurrency := mustGetIntFlag(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	sourceClient, err := pdnsapi.New(sourceConn, concurrency)
	if err != nil {
		return err
	}
	defer sourceClient.Close()

	targetClient, err := pdnsapi.New(targetConn, concurrency)
	if err != nil {
		return err
	}
	defer targetClient.Close()

	recreate := mustGetBoolFlag(cmd, "recreate")
	dryRun := mustGetBoolFlag(cmd, "dry-run")
	if recreate && !dryRun && !mustGetBoolFlag(cmd, "confirm-recreate") && isatty.IsTerminal(os.Stdin.Fd()) {
		confirmed, err := confirmRecreate()
		if err != nil || !confirmed {
			return usageError(migerr.NewConfigError("recreate", "not confirmed"))
		}
	}

	mig := migrator.New(sourceClient, targetClient, migrator.Options{
		Recreate:        recreate,
		DryRun:          dryRun,
		IgnoreSOASerial: mustGetBoolFlag(cmd, "ignore-soa-serial"),
		Sanitize: sanitize.Options{
			NormalizeTXTEscapes:         mustGetBoolFlag(cmd, "normalize-txt-escapes"),
			AutoFixCNAMEConflicts:       mustGetBoolFlag(cmd, "auto-fix-cname-conflicts"),
			AutoFixDoubleCNAMEConflicts: mustGetBoolFlag(cmd, "auto-fix-double-cname-conflicts"),
		},
	})

	var zones []string
	if zone != "" {
		zones = []string{zone}
	} else {
		zones, err = readZonesFile(zonesFile)
		if err != nil {
			return usageError(err)
		}
		if len(zones) == 0 {
			return usageError(migerr.NewConfigError("zones-file", "contains no zone names"))
		}
	}

	ctx, hardCtx := signalContexts()

	driver := batch.New(batch.Options{
		Concurrency:      concurrency,
		OnError:          onError,
		GracefulTimeout:  time.Duration(mustGetFloat64Flag(cmd, "graceful-timeout") * float64(time.Second)),
		ProgressInterval: time.Duration(mustGetFloat64Flag(cmd, "progress-interval") * float64(time.Second)),
		OnProgress: func(s batch.Snapshot) {
			log.WithFields(logrus.Fields{
				"total": s.Total, "completed": s.Completed, "succeeded": s.Succeeded,
				"failed": s.Failed, "in_flight": s.InFlight, "elapsed": s.Elapsed.String(),
			}).Info("progress")
		},
	})

	report := driver.Run(ctx, hardCtx, zones, mig.Migrate)
	report.Source = sourceConn.BaseURL
	report.Target = targetConn.BaseURL

	logReport(log, report)
	archiveReport(cmd, log, report)

	return exitFor(report)
}

// signalContexts builds the two cancellation contexts the batch driver
// needs: ctx begins graceful cancellation on the first SIGINT/SIGTERM,
// hardCtx forces immediate abandonment on a second SIGINT.
func signalContexts() (ctx, hardCtx context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	hardCtx, hardCancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		first := true
		for range sig {
			if first {
				cancel()
				first = false
				continue
			}
			hardCancel()
			return
		}
	}()

	return ctx, hardCtx
}

func confirmRecreate() (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{
		Message: "This will delete and recreate the target zone(s). Continue?",
		Default: false,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

func logReport(log *logrus.Logger, report batch.Report) {
	for _, r := range report.Results {
		if r.Succeeded() {
			obslog.ZoneOutcome(log, r.Zone, string(r.MigratorAction), len(r.Changes), r.Elapsed.Milliseconds(), "", "")
		} else {
			obslog.ZoneOutcome(log, r.Zone, "", 0, r.Elapsed.Milliseconds(), migerr.Kind(r.Err), r.Err.Error())
		}
	}

	byAction := map[zonemodel.MigratorAction]int{}
	byErrKind := map[string]int{}
	for _, r := range report.Results {
		if r.Succeeded() {
			byAction[r.MigratorAction]++
		} else {
			byErrKind[migerr.Kind(r.Err)]++
		}
	}
	log.WithFields(logrus.Fields{
		"run_id": report.RunID, "total": len(report.Results),
		"by_action": byAction, "by_error_kind": byErrKind,
	}).Info("batch summary")
}

func exitFor(report batch.Report) error {
	anyCancelled := false
	anyFailed := false
	for _, r := range report.Results {
		if r.Err == nil {
			continue
		}
		anyFailed = true
		if _, ok := r.Err.(*migerr.CancelledError); ok {
			anyCancelled = true
		}
	}

	if !anyFailed {
		return nil
	}
	if report.StoppedBy != nil {
		return &exitError{code: exitStoppedByPolicy, err: report.StoppedBy}
	}
	if anyCancelled {
		return &exitError{code: exitCancelled, err: fmt.Errorf("cancelled by interrupt")}
	}
	return &exitError{code: exitZoneFailures, err: fmt.Errorf("one or more zones failed")}
}

func archiveReport(cmd *cobra.Command, log *logrus.Logger, report batch.Report) {
	bucket := mustGetStringFlag(cmd, "archive-bucket")
	if bucket == "" {
		return
	}

	var cold *archive.ColdTierConfig
	if vault := mustGetStringFlag(cmd, "archive-glacier-vault"); vault != "" {
		coldAfter, _ := cmd.Flags().GetDuration("archive-cold-after")
		cold = &archive.ColdTierConfig{Vault: vault, ColdAfter: coldAfter}
	}

	archiver := archive.New(archive.BucketConfig{
		Endpoint:  mustGetStringFlag(cmd, "archive-endpoint"),
		AccessKey: mustGetStringFlag(cmd, "archive-access-key"),
		SecretKey: mustGetStringFlag(cmd, "archive-secret-key"),
		Bucket:    bucket,
		UseSSL:    true,
	}, cold, log)

	ctx := context.Background()
	if err := archiver.UploadReport(ctx, report.RunID, report); err != nil {
		log.WithFields(logrus.Fields{"error": err.Error()}).Warn("failed to archive batch report")
		return
	}
	if cold != nil {
		if err := archiver.SweepToGlacier(ctx); err != nil {
			log.WithFields(logrus.Fields{"error": err.Error()}).Warn("failed to sweep aged reports to glacier")
		}
	}
}

// usageError wraps a config/usage error so ExitCode can map it to exit
// code 64 regardless of how deep in the pipeline it was detected.
func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode extracts the process exit code from an error returned by
// Execute, defaulting to 1 for any error that isn't an *exitError.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return exitZoneFailures
}
