// Package correlation computes pairwise correlation matrices with corrected
// significance over bucketed sensor series.
package correlation

import (
	"context"
	"math"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/analysis/stats"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type Options struct {
	Mode          string // levels|deltas
	MaxLagBuckets int
	Alpha         float64
	MinAbsR       float64
	MinOverlap    int
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = "levels"
	}
	if o.Alpha <= 0 {
		o.Alpha = 0.05
	}
	if o.MinAbsR <= 0 {
		// Effect-size floor: at large n even trivial r passes any q cut.
		o.MinAbsR = 0.25
	}
	if o.MinOverlap <= 0 {
		o.MinOverlap = 16
	}
	return o
}

// Matrix computes one cell per unordered sensor pair. Cells that fail the
// overlap gate are kept with an explicit status instead of being dropped.
// Benjamini-Hochberg q-values are computed across all testable cells of this
// run, so significance is matrix-wide, not per-cell.
func Matrix(ctx context.Context, series []entity.Series, opts Options, progress func(done, total int)) (*entity.CorrelationMatrixResult, error) {
	opts = opts.withDefaults()

	vals := make([][]*float64, len(series))
	for i := range series {
		vals[i] = seriesValues(&series[i], opts.Mode)
	}

	res := &entity.CorrelationMatrixResult{
		Mode:    opts.Mode,
		Alpha:   opts.Alpha,
		MinAbsR: opts.MinAbsR,
		Caveats: entity.StatCaveats,
	}

	total := len(series) * (len(series) - 1) / 2
	done := 0
	var testable []int // indexes into res.Cells with a usable p
	var pvals []float64

	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cell := pairCell(&series[i], &series[j], vals[i], vals[j], opts)
			res.Cells = append(res.Cells, cell)
			if cell.Status != entity.CellInsufficient {
				testable = append(testable, len(res.Cells)-1)
				pvals = append(pvals, cell.PRaw)
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}

	qs := stats.BenjaminiHochberg(pvals)
	for k, ci := range testable {
		cell := &res.Cells[ci]
		cell.QValue = qs[k]
		if cell.QValue <= opts.Alpha && math.Abs(cell.R) >= opts.MinAbsR {
			cell.Status = entity.CellSignificant
		} else {
			cell.Status = entity.CellBelowThreshold
		}
	}
	return res, nil
}

// Row computes focus-versus-each cells only. The Benjamini-Hochberg
// correction runs across this row, so adding candidates tightens every
// cell's q, same as in the full matrix.
func Row(ctx context.Context, focus entity.Series, candidates []entity.Series, opts Options) (map[string]*entity.CorrelationCell, error) {
	opts = opts.withDefaults()
	fv := seriesValues(&focus, opts.Mode)

	cells := make(map[string]*entity.CorrelationCell, len(candidates))
	var testable []*entity.CorrelationCell
	var pvals []float64
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cv := seriesValues(&candidates[i], opts.Mode)
		cell := pairCell(&focus, &candidates[i], fv, cv, opts)
		c := &cell
		cells[candidates[i].SensorID] = c
		if c.Status != entity.CellInsufficient {
			testable = append(testable, c)
			pvals = append(pvals, c.PRaw)
		}
	}
	qs := stats.BenjaminiHochberg(pvals)
	for k, c := range testable {
		c.QValue = qs[k]
		if c.QValue <= opts.Alpha && math.Abs(c.R) >= opts.MinAbsR {
			c.Status = entity.CellSignificant
		} else {
			c.Status = entity.CellBelowThreshold
		}
	}
	return cells, nil
}

// seriesValues projects a series into per-bucket values for the requested
// mode. In deltas mode a value exists only where two adjacent buckets both
// have values.
func seriesValues(s *entity.Series, mode string) []*float64 {
	out := make([]*float64, s.Len())
	if mode == "deltas" {
		for i := 1; i < s.Len(); i++ {
			a, b := s.Buckets[i-1].Value, s.Buckets[i].Value
			if a != nil && b != nil {
				d := *b - *a
				out[i] = &d
			}
		}
		return out
	}
	for i := range s.Buckets {
		out[i] = s.Buckets[i].Value
	}
	return out
}

func pairCell(sa, sb *entity.Series, va, vb []*float64, opts Options) entity.CorrelationCell {
	cell := entity.CorrelationCell{SensorA: sa.SensorID, SensorB: sb.SensorID}

	x, y := innerJoin(va, vb, 0)
	cell.N = len(x)
	if len(x) < opts.MinOverlap {
		cell.Status = entity.CellInsufficient
		cell.PRaw = 1
		cell.QValue = 1
		return cell
	}

	cell.R = stats.Pearson(x, y)
	cell.Rho = stats.Spearman(x, y)
	cell.NEff = stats.EffectiveSampleSize(len(x), stats.Lag1Autocorr(x), stats.Lag1Autocorr(y))
	cell.PRaw = stats.PearsonPValue(cell.R, cell.NEff)
	cell.RhoPRaw = stats.SpearmanPValue(cell.Rho, cell.NEff)

	if opts.MaxLagBuckets > 0 {
		bestLag, bestR, found := bestLagSearch(va, vb, opts)
		if found {
			lagSec := bestLag * int(sa.Interval.Seconds())
			cell.LagSec = &lagSec
			cell.LagR = &bestR
		}
	}
	return cell
}

// bestLagSearch reports the lag maximizing |r|, zero lag included. The
// selection over many lags is itself a multiple comparison; the zero-lag r
// stays the tested statistic and the lag result is advisory context.
func bestLagSearch(va, vb []*float64, opts Options) (int, float64, bool) {
	bestLag, bestR, found := 0, 0.0, false
	for lag := -opts.MaxLagBuckets; lag <= opts.MaxLagBuckets; lag++ {
		x, y := innerJoin(va, vb, lag)
		if len(x) < opts.MinOverlap {
			continue
		}
		r := stats.Pearson(x, y)
		if !found || math.Abs(r) > math.Abs(bestR) {
			bestLag, bestR, found = lag, r, true
		}
	}
	return bestLag, bestR, found
}

// innerJoin pairs buckets common to both sides with b shifted by lag
// buckets.
func innerJoin(va, vb []*float64, lag int) ([]float64, []float64) {
	var x, y []float64
	for i := range va {
		j := i + lag
		if j < 0 || j >= len(vb) {
			continue
		}
		if va[i] == nil || vb[j] == nil {
			continue
		}
		x = append(x, *va[i])
		y = append(y, *vb[j])
	}
	return x, y
}
