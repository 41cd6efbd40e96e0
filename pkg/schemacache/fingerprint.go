// Package schemacache caches classified schemas across sessions. Identity
// is a fingerprint over the schema's column tuples and the request scope;
// near-identical schemas are found by Jaccard similarity over tuple sets
// and remapped instead of reclassified. Lookups go memory, then Redis,
// then Postgres; any tier failure degrades to a miss, never an error.
package schemacache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// Fingerprint computes the identity of a schema under one request scope.
// The hash covers the sorted column tuples plus the regulation, region,
// and tenant salts, so the same schema scanned for different regulations
// occupies a different cache slot.
func Fingerprint(schema models.Schema, regulations []models.Regulation, region, tenant string) models.SchemaFingerprint {
	tuples := make([]string, 0, schema.TotalColumns())
	for _, col := range schema.OrderedColumns() {
		tuples = append(tuples, col.Tuple())
	}
	sort.Strings(tuples)

	regs := make([]string, 0, len(regulations))
	for _, reg := range regulations {
		regs = append(regs, string(reg))
	}
	sort.Strings(regs)

	h := sha256.New()
	for _, tuple := range tuples {
		h.Write([]byte(tuple))
		h.Write([]byte{'\n'})
	}
	fmt.Fprintf(h, "regulations:%s\n", strings.Join(regs, ","))
	fmt.Fprintf(h, "region:%s\n", strings.ToLower(region))
	fmt.Fprintf(h, "tenant:%s\n", strings.ToLower(tenant))

	return models.SchemaFingerprint{
		Hash:   hex.EncodeToString(h.Sum(nil)),
		Tuples: tuples,
	}
}

// Jaccard returns the similarity of two tuple sets in [0,1]: the size of
// the intersection over the size of the union. Two empty sets are
// identical by definition.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}

	setB := make(map[string]bool, len(b))
	intersection := 0
	for _, t := range b {
		if setB[t] {
			continue
		}
		setB[t] = true
		if setA[t] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
