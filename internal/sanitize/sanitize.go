// Package sanitize transforms a raw, server-returned zone document into
// the canonical form the diff engine and API client operate on: read-only
// fields stripped, names normalized, optional TXT-escape normalization,
// and optional CNAME-conflict repair.
package sanitize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/zonemodel"
)

// Options controls the opt-in repair and normalization steps. The zero
// value performs only the mandatory steps (field stripping, name and type
// normalization, canonical sort).
type Options struct {
	NormalizeTXTEscapes         bool
	AutoFixCNAMEConflicts       bool
	AutoFixDoubleCNAMEConflicts bool
}

const defaultTTL = 3600

// Zone produces the canonical form of a raw zone document. It is pure: it
// never mutates its input and never performs I/O.
func Zone(raw zonemodel.Zone, opts Options) (zonemodel.Zone, error) {
	out := zonemodel.Zone{
		Name:        zonemodel.NormalizeZoneName(raw.Name),
		Kind:        raw.Kind,
		Nameservers: raw.Nameservers,
		Masters:     raw.Masters,
		Account:     raw.Account,
		SOAEdit:     raw.SOAEdit,
		SOAEditAPI:  raw.SOAEditAPI,
	}
	if out.Kind == "" {
		out.Kind = "Native"
	}

	rrsets := make([]zonemodel.RRSet, 0, len(raw.RRSets))
	for _, rr := range raw.RRSets {
		rrsets = append(rrsets, sanitizeRRSet(rr, opts))
	}

	apex := out.ApexName()
	if opts.AutoFixCNAMEConflicts || opts.AutoFixDoubleCNAMEConflicts {
		rrsets = repairCNAMEConflicts(rrsets, apex, opts)
	}

	sortRRSets(rrsets)

	if dupe := findDuplicateKey(rrsets); dupe != nil {
		return zonemodel.Zone{}, &migerr.ValidationError{
			Zone:   out.Name,
			Reason: fmt.Sprintf("duplicate rrset (%s, %s) after sanitize", dupe.Name, dupe.Type),
		}
	}

	if !opts.AutoFixCNAMEConflicts {
		if conflict := findCNAMEConflict(rrsets, apex); conflict != "" {
			return zonemodel.Zone{}, &migerr.ValidationError{
				Zone:   out.Name,
				Reason: fmt.Sprintf("CNAME conflict at owner %s without --auto-fix-cname-conflicts", conflict),
			}
		}
	}

	out.RRSets = rrsets
	return out, nil
}

func sanitizeRRSet(rr zonemodel.RRSet, opts Options) zonemodel.RRSet {
	out := zonemodel.RRSet{
		Name: zonemodel.NormalizeZoneName(rr.Name),
		Type: strings.ToUpper(rr.Type),
		TTL:  rr.TTL,
	}
	if out.TTL == 0 {
		out.TTL = defaultTTL
	}

	out.Records = make([]zonemodel.Record, len(rr.Records))
	copy(out.Records, rr.Records)
	if opts.NormalizeTXTEscapes && (out.Type == "TXT" || out.Type == "SPF") {
		for i := range out.Records {
			out.Records[i].Content = normalizeTXTEscapes(out.Records[i].Content)
		}
	}

	if opts.AutoFixDoubleCNAMEConflicts && out.Type == "CNAME" && len(out.Records) > 1 {
		out.Records = out.Records[:1]
	}

	if len(rr.Comments) > 0 {
		out.Comments = make([]zonemodel.Comment, len(rr.Comments))
		copy(out.Comments, rr.Comments)
	}

	return out
}

// normalizeTXTEscapes decodes \NNN decimal-escape triplets into raw bytes
// and re-serializes them as canonical double-quoted, backslash-escaped
// content, so that semantically identical TXT records emitted by
// different backends compare equal.
func normalizeTXTEscapes(content string) string {
	unquoted := content
	if len(unquoted) >= 2 && unquoted[0] == '"' && unquoted[len(unquoted)-1] == '"' {
		unquoted = unquoted[1 : len(unquoted)-1]
	}

	var raw []byte
	for i := 0; i < len(unquoted); {
		if unquoted[i] == '\\' && i+3 < len(unquoted) && isDecimalTriplet(unquoted[i+1:i+4]) {
			n, _ := strconv.Atoi(unquoted[i+1 : i+4])
			raw = append(raw, byte(n))
			i += 4
			continue
		}
		raw = append(raw, unquoted[i])
		i++
	}

	var b strings.Builder
	b.WriteByte('"')
	for _, c := range raw {
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			b.WriteString(fmt.Sprintf("\\%03d", c))
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isDecimalTriplet(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(s)
	return err == nil && n <= 255
}

// repairCNAMEConflicts applies the CNAME-conflict fix when
// AutoFixCNAMEConflicts is set: dropping an apex CNAME in favor of its
// siblings, or dropping non-CNAME siblings in favor of a non-apex CNAME.
// Double-CNAME trimming to a single record already happened in
// sanitizeRRSet.
func repairCNAMEConflicts(rrsets []zonemodel.RRSet, apex string, opts Options) []zonemodel.RRSet {
	if !opts.AutoFixCNAMEConflicts {
		return rrsets
	}

	byOwner := make(map[string][]int)
	for i, rr := range rrsets {
		owner := strings.ToLower(rr.Name)
		byOwner[owner] = append(byOwner[owner], i)
	}

	drop := make(map[int]bool)
	for owner, idxs := range byOwner {
		if len(idxs) < 2 {
			continue
		}
		var cnameIdx []int
		var otherIdx []int
		for _, idx := range idxs {
			if rrsets[idx].Type == "CNAME" {
				cnameIdx = append(cnameIdx, idx)
			} else {
				otherIdx = append(otherIdx, idx)
			}
		}
		if len(cnameIdx) == 0 || len(otherIdx) == 0 {
			continue
		}
		if owner == apex {
			for _, idx := range cnameIdx {
				drop[idx] = true
			}
		} else {
			for _, idx := range otherIdx {
				drop[idx] = true
			}
		}
	}

	if len(drop) == 0 {
		return rrsets
	}
	out := make([]zonemodel.RRSet, 0, len(rrsets)-len(drop))
	for i, rr := range rrsets {
		if !drop[i] {
			out = append(out, rr)
		}
	}
	return out
}

// findCNAMEConflict reports the first owner name, if any, that carries
// both a CNAME RRSet and at least one other RRSet type.
func findCNAMEConflict(rrsets []zonemodel.RRSet, _ string) string {
	byOwner := make(map[string][]string)
	for _, rr := range rrsets {
		owner := strings.ToLower(rr.Name)
		byOwner[owner] = append(byOwner[owner], rr.Type)
	}
	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		types := byOwner[owner]
		hasCNAME, hasOther := false, false
		for _, t := range types {
			if t == "CNAME" {
				hasCNAME = true
			} else {
				hasOther = true
			}
		}
		if hasCNAME && hasOther {
			return owner
		}
	}
	return ""
}

func findDuplicateKey(rrsets []zonemodel.RRSet) *zonemodel.RRSetKey {
	seen := make(map[zonemodel.RRSetKey]bool, len(rrsets))
	for _, rr := range rrsets {
		k := rr.Key()
		if seen[k] {
			return &k
		}
		seen[k] = true
	}
	return nil
}

// sortRRSets orders RRSets by (name, type) for deterministic diffs. It
// does not reorder records or comments within an RRSet.
func sortRRSets(rrsets []zonemodel.RRSet) {
	sort.SliceStable(rrsets, func(i, j int) bool {
		ki, kj := rrsets[i].Key(), rrsets[j].Key()
		if ki.Name != kj.Name {
			return ki.Name < kj.Name
		}
		return ki.Type < kj.Type
	})
}
