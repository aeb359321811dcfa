// Package zonemodel holds the data types shared by the sanitizer, diff
// engine, migrator, and batch driver: connection descriptors, zones,
// resource-record sets, and the change/result shapes produced by a
// migration run.
package zonemodel

import (
	"strings"
	"time"
)

// Connection describes how to reach one PowerDNS Authoritative server. It
// is immutable once constructed and is shared read-only by every zone
// pipeline that targets the same server.
type Connection struct {
	BaseURL      string
	APIKey       string
	ServerID     string
	VerifyTLS    bool
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	RetryMaxWait time.Duration
	RetryJitter  time.Duration
}

// serverID returns the connection's server identifier, defaulting to
// "localhost" as PowerDNS itself does when none is configured.
func (c Connection) serverID() string {
	if c.ServerID == "" {
		return "localhost"
	}
	return c.ServerID
}

// Endpoint builds the base servers/{server_id} URL this connection's
// client resolves every operation path against.
func (c Connection) Endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	return base + "/api/v1/servers/" + c.serverID()
}

// Record is one content/disabled pair within an RRSet.
type Record struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

// Comment annotates an RRSet. ModifiedAt is retained for round-tripping
// but is never used in equality comparisons (see sanitize/diff).
type Comment struct {
	Content    string `json:"content"`
	Account    string `json:"account,omitempty"`
	ModifiedAt int64  `json:"modified_at,omitempty"`
}

// RRSet is the resource-record set keyed by (Name, Type).
type RRSet struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	TTL      int       `json:"ttl"`
	Records  []Record  `json:"records"`
	Comments []Comment `json:"comments,omitempty"`
}

// Key returns the (name, type) identity PowerDNS treats an RRSet as
// unique under.
func (r RRSet) Key() RRSetKey {
	return RRSetKey{Name: strings.ToLower(r.Name), Type: strings.ToUpper(r.Type)}
}

// RRSetKey identifies an RRSet independent of its content.
type RRSetKey struct {
	Name string
	Type string
}

// Zone is a sanitized or raw zone document. Fields beyond Name/Kind/RRSets
// carry through server-accepted metadata. Server read-only fields (id,
// url, serial, dnssec, ...) have no field here, so decoding a server
// document into Zone already drops them; Extra is never filled by JSON
// decoding.
type Zone struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind,omitempty"`
	RRSets      []RRSet        `json:"rrsets"`
	Nameservers []string       `json:"nameservers,omitempty"`
	Masters     []string       `json:"masters,omitempty"`
	Account     string         `json:"account,omitempty"`
	SOAEdit     string         `json:"soa_edit,omitempty"`
	SOAEditAPI  string         `json:"soa_edit_api,omitempty"`
	Extra       map[string]any `json:"-"`
}

// ApexName returns the zone's own fully-qualified name, used by the
// sanitizer to decide apex-vs-non-apex CNAME conflict handling.
func (z Zone) ApexName() string {
	return strings.ToLower(z.Name)
}

// ChangeType enumerates the two mutation kinds the diff engine emits.
type ChangeType string

const (
	ChangeReplace ChangeType = "REPLACE"
	ChangeDelete  ChangeType = "DELETE"
)

// Change is one RRSet mutation computed by the diff engine. REPLACE
// carries the full desired RRSet; DELETE carries only the identifying key.
type Change struct {
	ChangeType ChangeType `json:"changetype"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	TTL        int        `json:"ttl,omitempty"`
	Records    []Record   `json:"records,omitempty"`
	Comments   []Comment  `json:"comments,omitempty"`
}

// MigratorAction enumerates the action a Zone Migrator took (or would
// take, under dry-run) for one zone.
type MigratorAction string

const (
	ActionCreateZone   MigratorAction = "CREATE_ZONE"
	ActionPatchZone    MigratorAction = "PATCH_ZONE"
	ActionRecreateZone MigratorAction = "RECREATE_ZONE"
	ActionNoop         MigratorAction = "NOOP"
)

// MigrationResult is the outcome of migrating a single zone.
type MigrationResult struct {
	Zone           string
	SourceZone     *Zone
	TargetZone     *Zone
	Changes        []Change
	MigratorAction MigratorAction
	Err            error
	Elapsed        time.Duration
}

// Succeeded reports whether the migration completed without error,
// including the case where it was skipped by dry-run.
func (r MigrationResult) Succeeded() bool { return r.Err == nil }

// NormalizeZoneName appends a trailing dot if the caller omitted one,
// matching PowerDNS's own fully-qualified-name convention.
func NormalizeZoneName(name string) string {
	if name == "" || strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
