package analytics

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/sitelens/sitelens/internal/rules"
	"github.com/sitelens/sitelens/internal/store"
)

// cacheKey derives the cache key for a request. Every parameter that can
// change the result is part of the canonical string: site, operation kind,
// entity ids, rule hashes, and the time-range boundaries (or their absence).
// The site id stays as a plain prefix so a key can never be satisfied by
// another site's data.
func cacheKey(siteID, kind string, parts ...string) string {
	canonical := siteID + "|" + kind + "|" + strings.Join(parts, "|")
	return siteID + ":" + kind + ":" + strconv.FormatUint(xxhash.Sum64String(canonical), 16)
}

// rangeKey canonicalizes a time range. The zero range keys as "default"
// rather than as concrete boundaries: the default window moves with the
// clock, so pinning it to an instant would never be re-hit.
func rangeKey(r store.TimeRange) string {
	if r.IsZero() {
		return "default"
	}
	return strconv.FormatInt(r.Start.Unix(), 10) + "-" + strconv.FormatInt(r.End.Unix(), 10)
}

// ruleHash fingerprints a cohort's rule set so edits to a definition
// invalidate its cached results.
func ruleHash(ruleSet []rules.Rule) string {
	b, err := json.Marshal(ruleSet)
	if err != nil {
		return "unhashable"
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// experimentHash fingerprints an experiment's variant set and goal
// definitions, the experiment-side counterpart of ruleHash: editing either
// must invalidate cached results.
func experimentHash(exp *store.Experiment) string {
	b, err := json.Marshal(struct {
		Variants []string     `json:"variants"`
		Goals    []store.Goal `json:"goals,omitempty"`
	}{exp.VariantIDs, exp.Goals})
	if err != nil {
		return "unhashable"
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}
