// Package ranker blends event-match, co-occurrence, and correlation evidence
// into one pool-relative ranking for a focus sensor.
package ranker

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

const (
	weightEvent       = 0.5
	weightCooccur     = 0.3
	weightCorrelation = 0.2

	diurnalPenalty     = 0.5
	diurnalTolerance   = 0.05
	periodicityPenalty = 0.7
	entropyThreshold   = 0.4
	minEventsForPeriod = 8

	multiEpisodeBonus   = 1.1
	minEpisodesForBonus = 2

	tierHighScore   = 0.6
	tierMediumScore = 0.3
)

type Options struct {
	CandidateLimit     int
	ResultLimit        int
	MinCoverage        float64
	IncludeDerived     bool
	PeriodicityPenalty bool
}

func (o Options) withDefaults() Options {
	if o.CandidateLimit <= 0 || o.CandidateLimit > entity.MaxPoolSize {
		o.CandidateLimit = 50
	}
	if o.ResultLimit <= 0 {
		o.ResultLimit = 20
	}
	if o.MinCoverage <= 0 {
		o.MinCoverage = 0.2
	}
	return o
}

// CandidateInput is everything the ranker knows about one pool member. The
// evidence pointers are nil when that channel was not computed for it.
type CandidateInput struct {
	SensorID       string
	Coverage       float64
	Dependency     entity.DependencyStatus
	DependencyPath []string
	Events         []entity.SensorEvent
	Match          *entity.EventMatchResult
	Cooccur        *entity.CooccurrenceScore
	Correlation    *entity.CorrelationCell
}

func poolHash(focusID, candidateID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(focusID))
	h.Write([]byte{0})
	h.Write([]byte(candidateID))
	return h.Sum32()
}

// Pool orders candidates by a hash keyed on the focus so a truncated pool is
// a stable pseudo-random draw rather than an alphabetical prefix, which would
// systematically favor some naming schemes. Pinned sensors are always kept,
// widening the pool beyond the limit if needed.
func Pool(focusID string, ids, pinned []string, limit int) (pool, truncated []string) {
	if limit <= 0 || limit > entity.MaxPoolSize {
		limit = 50
	}
	isPinned := make(map[string]bool, len(pinned))
	for _, id := range pinned {
		isPinned[id] = true
	}

	seen := make(map[string]bool, len(ids))
	var rest []string
	for _, id := range ids {
		if id == focusID || seen[id] {
			continue
		}
		seen[id] = true
		if isPinned[id] {
			pool = append(pool, id)
		} else {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		hi, hj := poolHash(focusID, rest[i]), poolHash(focusID, rest[j])
		if hi != hj {
			return hi < hj
		}
		return rest[i] < rest[j]
	})

	room := limit - len(pool)
	if room < 0 {
		room = 0
	}
	if len(rest) > room {
		truncated = append(truncated, rest[room:]...)
		sort.Strings(truncated)
		rest = rest[:room]
	}
	pool = append(pool, rest...)
	return pool, truncated
}

// Rank blends evidence channels per candidate, renormalizing channel weights
// over whichever channels are present so a missing channel does not drag a
// candidate down.
func Rank(focusID string, inputs []CandidateInput, opts Options) *entity.RelatedSensorsResult {
	opts = opts.withDefaults()
	res := &entity.RelatedSensorsResult{
		FocusID: focusID,
		Caveats: entity.StatCaveats,
	}
	res.Coverage.CandidateLimitUsed = opts.CandidateLimit
	res.Coverage.EligibleCount = len(inputs)

	maxCooccur := 0.0
	for _, in := range inputs {
		if in.Cooccur != nil && in.Cooccur.Score > maxCooccur {
			maxCooccur = in.Cooccur.Score
		}
	}

	for _, in := range inputs {
		if in.Coverage <= 0 {
			res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
				SensorID: in.SensorID, Reason: entity.ReasonNoHistory,
			})
			continue
		}
		if in.Coverage < opts.MinCoverage {
			res.Coverage.PrefilteredIDs = append(res.Coverage.PrefilteredIDs, in.SensorID)
			res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
				SensorID: in.SensorID, Reason: entity.ReasonFiltered,
			})
			continue
		}
		derived := in.Dependency == entity.DependencyDerived
		if derived && !opts.IncludeDerived {
			res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
				SensorID:       in.SensorID,
				Reason:         entity.ReasonDerivedFromFocus,
				DependencyPath: in.DependencyPath,
			})
			continue
		}
		res.Coverage.EvaluatedCount++

		c := entity.Candidate{
			SensorID:         in.SensorID,
			DerivedFromFocus: derived,
			DependencyPath:   in.DependencyPath,
		}
		var score, weightSum float64
		channels := 0

		if m := in.Match; m != nil && m.Reason == "" {
			c.Evidence.Event = m
			score += weightEvent * m.F1
			weightSum += weightEvent
			channels++
			if isDiurnalLag(m.BestLagSec) {
				c.DiurnalLag = true
			}
		}
		if sc := in.Cooccur; sc != nil && maxCooccur > 0 {
			c.Evidence.Cooccurrence = sc
			score += weightCooccur * sc.Score / maxCooccur
			weightSum += weightCooccur
			channels++
		}
		if cell := in.Correlation; cell != nil && cell.Status != entity.CellInsufficient {
			c.Evidence.CorrelationContext = cell
			if cell.Status == entity.CellSignificant {
				score += weightCorrelation * math.Abs(cell.R)
			}
			weightSum += weightCorrelation
			channels++
		}
		if weightSum == 0 {
			res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
				SensorID: in.SensorID, Reason: entity.ReasonBelowThreshold,
			})
			continue
		}
		score /= weightSum

		// Repeated aligned episodes strengthen the evidence, but not when
		// the lag itself looks diurnal.
		if c.DiurnalLag {
			score *= diurnalPenalty
		} else if c.Evidence.Event != nil && len(c.Evidence.Event.Episodes) >= minEpisodesForBonus {
			score = math.Min(score*multiEpisodeBonus, 1)
		}
		if opts.PeriodicityPenalty && len(in.Events) >= minEventsForPeriod &&
			hourEntropy(in.Events) < entropyThreshold {
			score *= periodicityPenalty
		}

		c.RankScore = score
		c.Tier = tier(score, channels)
		res.Candidates = append(res.Candidates, c)
	}

	sort.Slice(res.Candidates, func(i, j int) bool {
		a, b := res.Candidates[i], res.Candidates[j]
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		return a.SensorID < b.SensorID
	})
	if len(res.Candidates) > opts.ResultLimit {
		for _, c := range res.Candidates[opts.ResultLimit:] {
			res.Coverage.TruncatedResultIDs = append(res.Coverage.TruncatedResultIDs, c.SensorID)
			res.Excluded = append(res.Excluded, entity.ExcludedCandidate{
				SensorID: c.SensorID, Reason: entity.ReasonTruncatedByLimit,
			})
		}
		res.Candidates = res.Candidates[:opts.ResultLimit]
	}
	return res
}

// isDiurnalLag reports whether the lag sits within 5% of a whole multiple of
// 24h. Such lags are usually shared daily seasonality, not causation.
func isDiurnalLag(lagSec int) bool {
	const day = 24 * 60 * 60
	abs := lagSec
	if abs < 0 {
		abs = -abs
	}
	if abs < day/2 {
		return false
	}
	k := int(math.Round(float64(abs) / day))
	if k < 1 {
		return false
	}
	return math.Abs(float64(abs)-float64(k*day)) <= diurnalTolerance*float64(k*day)
}

// hourEntropy is the hour-of-day entropy of the event timestamps, normalized
// to [0,1]. Values near 0 mean the events cluster in a narrow daily window.
func hourEntropy(events []entity.SensorEvent) float64 {
	if len(events) == 0 {
		return 1
	}
	var counts [24]int
	for _, e := range events {
		counts[e.BucketTs.UTC().Hour()]++
	}
	total := float64(len(events))
	h := 0.0
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log(p)
	}
	return h / math.Log(24)
}

func tier(score float64, channels int) entity.ConfidenceTier {
	switch {
	case score >= tierHighScore && channels >= 2:
		return entity.TierHigh
	case score >= tierMediumScore:
		return entity.TierMedium
	default:
		return entity.TierLow
	}
}
