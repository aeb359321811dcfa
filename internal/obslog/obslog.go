// Package obslog centralizes structured logging setup so every component
// logs through the same configured logrus instance with the same field
// conventions: zone, action, elapsed, and error kind on outcomes.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr (so stdout stays free for
// machine-readable output like a plan or report) at the given level.
// Unrecognized levels fall back to "info".
func New(level string, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	if verbose && parsed < logrus.DebugLevel {
		parsed = logrus.DebugLevel
	}
	log.SetLevel(parsed)
	return log
}

// ZoneOutcome logs one zone's migration outcome with the fields §7
// requires: zone name, action, elapsed time, and change count on success;
// error kind and message on failure.
func ZoneOutcome(log *logrus.Logger, zone, action string, changeCount int, elapsedMS int64, errKind, errMsg string) {
	entry := log.WithFields(logrus.Fields{
		"zone":    zone,
		"elapsed": elapsedMS,
	})
	if errKind != "" {
		entry.WithFields(logrus.Fields{
			"error_kind": errKind,
		}).Error(errMsg)
		return
	}
	entry.WithFields(logrus.Fields{
		"action":  action,
		"changes": changeCount,
	}).Info("zone migrated")
}
