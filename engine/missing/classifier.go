// Package missing classifies the mechanism behind each column's missing
// values: MCAR, MAR, or MNAR. The classification drives the per-column
// imputation strategy downstream.
package missing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"gosegment/domain/core"
	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/internal/config"
)

const (
	// mcarAlpha is the significance level for rejecting "missing completely
	// at random" in the chi-square independence test.
	mcarAlpha = 0.05

	// chiSquareBins is the number of quantile categories observed columns
	// are grouped into for the contingency test.
	chiSquareBins = 3

	// miBins is the bin count for the mutual-information screen.
	miBins = 10
)

// Classifier runs the per-column mechanism tests.
type Classifier struct {
	cfg config.EngineConfig
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg config.EngineConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify produces a MissingnessReport covering every column with a nonzero
// missing fraction. Columns with too few observed values to test are reported
// as indeterminate.
func (c *Classifier) Classify(ds *schema.Dataset) (*segment.MissingnessReport, error) {
	report := &segment.MissingnessReport{ComputedAt: core.Now()}

	for _, col := range ds.Columns() {
		fraction, err := ds.MissingFraction(col.Name)
		if err != nil {
			return nil, err
		}
		if fraction == 0 {
			continue
		}

		entry, err := c.classifyColumn(ds, col, fraction)
		if err != nil {
			return nil, err
		}
		report.Columns = append(report.Columns, entry)
	}

	return report, nil
}

func (c *Classifier) classifyColumn(ds *schema.Dataset, col schema.FeatureColumn, fraction float64) (segment.ColumnMissingness, error) {
	entry := segment.ColumnMissingness{
		Column:          col.Name,
		MissingFraction: fraction,
		PValue:          1.0,
	}

	indicator, err := ds.MissingIndicator(col.Name)
	if err != nil {
		return entry, err
	}

	observed := 0
	missing := 0
	for _, v := range indicator {
		if v == 1 {
			missing++
		} else {
			observed++
		}
	}
	if observed < c.cfg.MinTestSamples || missing < 2 {
		entry.Mechanism = segment.MechanismIndeterminate
		entry.Note = core.NewInsufficientDataError(col.Name, observed, c.cfg.MinTestSamples).Error()
		return entry, nil
	}

	// Pooled chi-square test: cross the missingness indicator with the
	// quantile-binned values of every other observed column.
	chiSq, df := c.mcarStatistic(ds, col.Name, indicator)
	if df == 0 {
		entry.Mechanism = segment.MechanismIndeterminate
		entry.Note = "no testable companion columns"
		return entry, nil
	}

	entry.ChiSquare = chiSq
	entry.DegreesFreedom = df
	entry.PValue = chiSquarePValue(chiSq, df)

	if entry.PValue > mcarAlpha {
		entry.Mechanism = segment.MechanismMCAR
		return entry, nil
	}

	// MCAR rejected: look for an observed column that explains the
	// missingness via mutual information.
	bestScore, bestColumn := c.bestMutualInformation(ds, col.Name, indicator)
	entry.BestMIScore = bestScore
	entry.BestMIColumn = bestColumn

	if bestScore >= c.cfg.MIThreshold {
		entry.Mechanism = segment.MechanismMAR
		return entry, nil
	}

	// Dependence on data but no explanatory observed column: the value
	// itself likely drives its own missingness. Flagged, never auto-imputed.
	entry.Mechanism = segment.MechanismMNAR
	entry.Note = "missingness depends on unobserved values; manual handling required"
	return entry, nil
}

// mcarStatistic pools per-companion-column chi-square contributions into one
// statistic. Each companion contributes an (indicator x bins) contingency
// table restricted to rows where the companion itself is observed.
func (c *Classifier) mcarStatistic(ds *schema.Dataset, target string, indicator []float64) (float64, int) {
	chiSq := 0.0
	df := 0

	for _, other := range ds.Columns() {
		if other.Name == target || !other.Scalable() {
			continue
		}
		values, err := ds.Column(other.Name)
		if err != nil {
			continue
		}

		var ind []float64
		var obs []float64
		for i, v := range values {
			if !math.IsNaN(v) {
				ind = append(ind, indicator[i])
				obs = append(obs, v)
			}
		}
		if len(obs) < c.cfg.MinTestSamples {
			continue
		}

		bins := discretize(obs, chiSquareBins)
		stat, tableDF := contingencyChiSquare(ind, bins)
		if tableDF == 0 {
			continue
		}
		chiSq += stat
		df += tableDF
	}

	return chiSq, df
}

// bestMutualInformation screens every observed column for dependence with the
// missingness indicator, returning the strongest normalized MI score.
func (c *Classifier) bestMutualInformation(ds *schema.Dataset, target string, indicator []float64) (float64, string) {
	best := 0.0
	bestColumn := ""

	for _, other := range ds.Columns() {
		if other.Name == target || !other.Scalable() {
			continue
		}
		values, err := ds.Column(other.Name)
		if err != nil {
			continue
		}

		var ind []float64
		var obs []float64
		for i, v := range values {
			if !math.IsNaN(v) {
				ind = append(ind, indicator[i])
				obs = append(obs, v)
			}
		}
		if len(obs) < c.cfg.MinTestSamples {
			continue
		}

		score := normalizedMutualInformation(ind, obs)
		if score > best {
			best = score
			bestColumn = other.Name
		}
	}

	return best, bestColumn
}

// discretize converts continuous values to quantile-based categories so the
// contingency table has roughly balanced cells.
func discretize(data []float64, numBins int) []int {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if len(sorted) < numBins {
		numBins = len(sorted)
	}

	bins := make([]int, len(data))
	for i, val := range data {
		bin := 0
		for b := 1; b < numBins; b++ {
			threshold := sorted[(len(sorted)*b)/numBins]
			if val >= threshold {
				bin = b
			} else {
				break
			}
		}
		bins[i] = bin
	}
	return bins
}

// contingencyChiSquare computes the chi-square statistic of independence
// between a binary indicator and a binned companion column.
func contingencyChiSquare(indicator []float64, bins []int) (float64, int) {
	maxBin := 0
	for _, b := range bins {
		if b > maxBin {
			maxBin = b
		}
	}

	rows := 2
	cols := maxBin + 1
	table := make([][]int, rows)
	for i := range table {
		table[i] = make([]int, cols)
	}
	for i := range bins {
		r := 0
		if indicator[i] == 1 {
			r = 1
		}
		table[r][bins[i]]++
	}

	total := len(bins)
	if total < 5 || cols < 2 {
		return 0, 0
	}

	rowTotals := make([]int, rows)
	colTotals := make([]int, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rowTotals[i] += table[i][j]
			colTotals[j] += table[i][j]
		}
	}

	// Degenerate margins (all observed or all missing) carry no information.
	if rowTotals[0] == 0 || rowTotals[1] == 0 {
		return 0, 0
	}

	chiSq := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			expected := float64(rowTotals[i]*colTotals[j]) / float64(total)
			if expected > 0 {
				observed := float64(table[i][j])
				chiSq += (observed - expected) * (observed - expected) / expected
			}
		}
	}

	return chiSq, (rows - 1) * (cols - 1)
}

// chiSquarePValue returns the upper-tail probability of the chi-square
// distribution with df degrees of freedom.
func chiSquarePValue(chiSq float64, df int) float64 {
	if chiSq <= 0 || df <= 0 {
		return 1.0
	}
	dist := distuv.ChiSquared{K: float64(df)}
	p := 1 - dist.CDF(chiSq)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// normalizedMutualInformation computes I(X;Y) normalized by the smaller
// marginal entropy, yielding a [0,1] dependence score.
func normalizedMutualInformation(indicator, values []float64) float64 {
	indBins := make([]int, len(indicator))
	for i, v := range indicator {
		if v == 1 {
			indBins[i] = 1
		}
	}
	valBins := discretize(values, miBins)

	hInd := entropy(indBins)
	hVal := entropy(valBins)
	if hInd == 0 || hVal == 0 {
		return 0
	}

	mi := hInd + hVal - jointEntropy(indBins, valBins)
	if mi < 0 {
		mi = 0
	}

	return mi / math.Min(hInd, hVal)
}

// entropy calculates Shannon entropy of a discrete variable.
func entropy(bins []int) float64 {
	if len(bins) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, bin := range bins {
		counts[bin]++
	}

	h := 0.0
	n := float64(len(bins))
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

// jointEntropy calculates H(X,Y) over paired discrete variables.
func jointEntropy(xBins, yBins []int) float64 {
	if len(xBins) != len(yBins) || len(xBins) == 0 {
		return 0
	}
	counts := make(map[[2]int]int)
	for i := range xBins {
		counts[[2]int{xBins[i], yBins[i]}]++
	}

	h := 0.0
	n := float64(len(xBins))
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / n
			h -= p * math.Log2(p)
		}
	}
	return h
}
