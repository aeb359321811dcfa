// Package diff computes the minimal set of RRSet mutations that would
// bring a target zone's record sets into line with a sanitized source
// zone, under a configurable equivalence relation.
package diff

import (
	"sort"
	"strings"

	"pdns-migrate/internal/zonemodel"
)

// Options controls the equivalence relation used to decide whether an
// RRSet present on both sides still needs a REPLACE.
type Options struct {
	IgnoreSOASerial bool
}

// Changes computes changes turning target's rrsets into source's rrsets,
// REPLACEs before DELETEs, each group sorted by (name, type). Both slices
// must already be sanitized (canonically sorted, normalized).
func Changes(source, target []zonemodel.RRSet, opts Options) []zonemodel.Change {
	sourceByKey := indexByKey(source)
	targetByKey := indexByKey(target)

	var replaces []zonemodel.Change
	var deletes []zonemodel.Change

	sourceKeys := sortedKeys(sourceByKey)
	for _, key := range sourceKeys {
		src := sourceByKey[key]
		tgt, onTarget := targetByKey[key]
		if !onTarget || !Equivalent(src, tgt, opts) {
			replaces = append(replaces, toReplace(replacementRRSet(src, tgt, onTarget, opts)))
		}
	}

	targetKeys := sortedKeys(targetByKey)
	for _, key := range targetKeys {
		if _, onSource := sourceByKey[key]; !onSource {
			deletes = append(deletes, toDelete(key))
		}
	}

	out := make([]zonemodel.Change, 0, len(replaces)+len(deletes))
	out = append(out, replaces...)
	out = append(out, deletes...)
	return out
}

// replacementRRSet returns the RRSet to carry in a REPLACE: normally the
// source's own state, except under ignore-soa-serial where the target's
// current serial is preserved so the migration never regresses or
// collides the target's own serial counter.
func replacementRRSet(src zonemodel.RRSet, tgt zonemodel.RRSet, onTarget bool, opts Options) zonemodel.RRSet {
	if opts.IgnoreSOASerial && src.Type == "SOA" && onTarget {
		if replaced, ok := withSerialFrom(src, tgt); ok {
			return replaced
		}
	}
	return src
}

// Equivalent reports whether two RRSets sharing a (name, type) key are
// equal under the configured equivalence: equal ttl, records equal as a
// multiset of (content, disabled), comments equal as a multiset ignoring
// ModifiedAt, and, for SOA under ignore-soa-serial, equal after the
// target's serial is substituted into the source's content.
func Equivalent(a, b zonemodel.RRSet, opts Options) bool {
	if a.TTL != b.TTL {
		return false
	}
	if opts.IgnoreSOASerial && a.Type == "SOA" && b.Type == "SOA" {
		normalizedA, ok := withSerialFrom(a, b)
		if ok {
			a = normalizedA
		}
	}
	return recordsEqual(a.Records, b.Records) && commentsEqual(a.Comments, b.Comments)
}

// withSerialFrom returns a copy of rr whose single SOA record's serial
// field (the third whitespace-delimited token) is replaced with other's
// serial, so the two compare equal if only the serial differs.
func withSerialFrom(rr, other zonemodel.RRSet) (zonemodel.RRSet, bool) {
	if len(rr.Records) != 1 || len(other.Records) != 1 {
		return rr, false
	}
	otherSerial, ok := soaSerial(other.Records[0].Content)
	if !ok {
		return rr, false
	}
	replaced, ok := withSOASerial(rr.Records[0].Content, otherSerial)
	if !ok {
		return rr, false
	}
	out := rr
	out.Records = []zonemodel.Record{{Content: replaced, Disabled: rr.Records[0].Disabled}}
	return out, true
}

func soaSerial(content string) (string, bool) {
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return "", false
	}
	return fields[2], true
}

func withSOASerial(content, serial string) (string, bool) {
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return "", false
	}
	fields[2] = serial
	return strings.Join(fields, " "), true
}

func recordsEqual(a, b []zonemodel.Record) bool {
	if len(a) != len(b) {
		return false
	}
	return multisetEqual(recordTokens(a), recordTokens(b))
}

func commentsEqual(a, b []zonemodel.Comment) bool {
	if len(a) != len(b) {
		return false
	}
	return multisetEqual(commentTokens(a), commentTokens(b))
}

func recordTokens(records []zonemodel.Record) []string {
	tokens := make([]string, len(records))
	for i, r := range records {
		tokens[i] = r.Content + "\x00" + boolToken(r.Disabled)
	}
	return tokens
}

func commentTokens(comments []zonemodel.Comment) []string {
	tokens := make([]string, len(comments))
	for i, c := range comments {
		// ModifiedAt intentionally excluded: treated as read-only, see
		// the resolved open question on comment timestamp sensitivity.
		tokens[i] = c.Content + "\x00" + c.Account
	}
	return tokens
}

func boolToken(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func multisetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	for _, t := range b {
		counts[t]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func indexByKey(rrsets []zonemodel.RRSet) map[zonemodel.RRSetKey]zonemodel.RRSet {
	out := make(map[zonemodel.RRSetKey]zonemodel.RRSet, len(rrsets))
	for _, rr := range rrsets {
		out[rr.Key()] = rr
	}
	return out
}

func sortedKeys(m map[zonemodel.RRSetKey]zonemodel.RRSet) []zonemodel.RRSetKey {
	keys := make([]zonemodel.RRSetKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Type < keys[j].Type
	})
	return keys
}

func toReplace(rr zonemodel.RRSet) zonemodel.Change {
	return zonemodel.Change{
		ChangeType: zonemodel.ChangeReplace,
		Name:       rr.Name,
		Type:       rr.Type,
		TTL:        rr.TTL,
		Records:    rr.Records,
		Comments:   rr.Comments,
	}
}

func toDelete(key zonemodel.RRSetKey) zonemodel.Change {
	return zonemodel.Change{
		ChangeType: zonemodel.ChangeDelete,
		Name:       key.Name,
		Type:       key.Type,
	}
}
