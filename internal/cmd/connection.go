package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"pdns-migrate/internal/zonemodel"
)

// buildConnection assembles a Connection descriptor for one side (source
// or target) from the shared retry/timeout flags and that side's own
// URL/key/server-id/insecure flags.
func buildConnection(cmd *cobra.Command, urlFlag, keyFlag, serverIDFlag, insecureFlag string) zonemodel.Connection {
	timeout := time.Duration(mustGetFloat64Flag(cmd, "timeout") * float64(time.Second))
	backoffBase := time.Duration(mustGetFloat64Flag(cmd, "retry-backoff") * float64(time.Second))
	backoffMax := time.Duration(mustGetFloat64Flag(cmd, "retry-max-backoff") * float64(time.Second))
	jitter := time.Duration(mustGetFloat64Flag(cmd, "retry-jitter") * float64(time.Second))

	return zonemodel.Connection{
		BaseURL:      mustGetStringFlag(cmd, urlFlag),
		APIKey:       mustGetStringFlag(cmd, keyFlag),
		ServerID:     mustGetStringFlag(cmd, serverIDFlag),
		VerifyTLS:    !mustGetBoolFlag(cmd, insecureFlag),
		Timeout:      timeout,
		Retries:      mustGetIntFlag(cmd, "retries"),
		RetryBackoff: backoffBase,
		RetryMaxWait: backoffMax,
		RetryJitter:  jitter,
	}
}
