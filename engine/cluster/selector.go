package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"gosegment/domain/core"
	"gosegment/domain/segment"
	"gosegment/internal"
	"gosegment/internal/config"
)

// InfeasiblePartitionError is raised when every candidate k in the search
// range produced at least one empty cluster. It carries the full rejection
// table so the failure is auditable.
type InfeasiblePartitionError struct {
	KMin  int
	KMax  int
	Table []segment.CandidateScore
}

func (e *InfeasiblePartitionError) Error() string {
	return fmt.Sprintf("no feasible partition in k range [%d,%d]: all %d candidates rejected",
		e.KMin, e.KMax, len(e.Table))
}

func (e *InfeasiblePartitionError) Unwrap() error {
	return core.ErrInfeasiblePartition
}

// candidateResult is one k's fit outcome, written only to its own slot
// during the fan-out phase.
type candidateResult struct {
	score     segment.CandidateScore
	centroids [][]float64
	labels    []int
}

// Selector searches the candidate k range and picks the final count by
// silhouette-primary, consensus-tie-broken selection.
type Selector struct {
	cfg    config.EngineConfig
	logger *internal.Logger
}

// NewSelector creates a selector with the configured search bounds and seed.
func NewSelector(cfg config.EngineConfig) *Selector {
	return &Selector{cfg: cfg, logger: internal.DefaultLogger.Component("Cluster")}
}

// Select fits every candidate k in [KMin, min(KMax, rows-1)] concurrently,
// scores the feasible ones with four validity metrics, and selects the final
// k. Candidates whose fit yields an empty cluster are rejected, not scored.
func (s *Selector) Select(ctx context.Context, X [][]float64) (*segment.ClusterModel, segment.Assignment, error) {
	rows := len(X)
	kMax := s.cfg.KMax
	if rows-1 < kMax {
		kMax = rows - 1
	}
	if kMax < s.cfg.KMin {
		return nil, segment.Assignment{}, core.NewInsufficientDataError("reduced matrix", rows, s.cfg.KMin+1)
	}

	candidates := make([]candidateResult, kMax-s.cfg.KMin+1)

	// Each candidate reads the shared immutable matrix and writes only to
	// its own result slot; aggregation happens after the barrier.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range candidates {
		k := s.cfg.KMin + i
		slot := &candidates[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			*slot = s.evaluateCandidate(X, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, segment.Assignment{}, err
	}

	table := make([]segment.CandidateScore, len(candidates))
	for i, c := range candidates {
		table[i] = c.score
	}

	chosen, consensus, elbow, err := s.selectFromTable(table)
	if err != nil {
		return nil, segment.Assignment{}, err
	}

	winner := candidates[chosen-s.cfg.KMin]
	model, err := segment.NewClusterModel(chosen, winner.centroids, table, consensus, elbow, s.cfg.RandomState)
	if err != nil {
		return nil, segment.Assignment{}, err
	}

	s.logger.Info("selected k=%d (%s)", chosen, consensus)
	return model, segment.Assignment{Labels: winner.labels}, nil
}

func (s *Selector) evaluateCandidate(X [][]float64, k int) candidateResult {
	centroids, labels, err := fitKMeans(X, k, s.cfg.RandomState)
	if err != nil {
		return candidateResult{score: segment.CandidateScore{
			K:            k,
			Rejected:     true,
			RejectReason: err.Error(),
		}}
	}

	return candidateResult{
		score: segment.CandidateScore{
			K:                k,
			Silhouette:       silhouetteScore(X, labels, k),
			WCSS:             withinClusterSS(X, centroids, labels),
			CalinskiHarabasz: calinskiHarabasz(X, centroids, labels, k),
			DaviesBouldin:    daviesBouldin(X, centroids, labels, k),
		},
		centroids: centroids,
		labels:    labels,
	}
}

// selectFromTable applies the selection rule: maximize silhouette; among
// candidates within SilhouetteTol of the maximum, prefer the one favored by
// at least two of the remaining three metrics; failing consensus, the
// smallest k wins on parsimony.
func (s *Selector) selectFromTable(table []segment.CandidateScore) (int, string, int, error) {
	var scored []segment.CandidateScore
	for _, row := range table {
		if !row.Rejected {
			scored = append(scored, row)
		}
	}
	if len(scored) == 0 {
		return 0, "", 0, &InfeasiblePartitionError{
			KMin:  table[0].K,
			KMax:  table[len(table)-1].K,
			Table: table,
		}
	}

	maxSil := math.Inf(-1)
	for _, row := range scored {
		if row.Silhouette > maxSil {
			maxSil = row.Silhouette
		}
	}

	var tie []segment.CandidateScore
	for _, row := range scored {
		if maxSil-row.Silhouette <= s.cfg.SilhouetteTol {
			tie = append(tie, row)
		}
	}
	sort.Slice(tie, func(i, j int) bool { return tie[i].K < tie[j].K })

	// Per-metric favorites across all scored candidates.
	chK, dbK := metricFavorites(scored)
	elbow := elbowFromTable(scored)

	if len(tie) == 1 {
		return tie[0].K, fmt.Sprintf("silhouette maximum at k=%d, no tie", tie[0].K), elbow, nil
	}

	for _, row := range tie {
		favors := 0
		var backers []string
		if row.K == chK {
			favors++
			backers = append(backers, "calinski-harabasz")
		}
		if row.K == dbK {
			favors++
			backers = append(backers, "davies-bouldin")
		}
		if row.K == elbow {
			favors++
			backers = append(backers, "elbow")
		}
		if favors >= 2 {
			return row.K, fmt.Sprintf("silhouette tie broken by consensus (%s) at k=%d",
				strings.Join(backers, ", "), row.K), elbow, nil
		}
	}

	// No consensus: parsimony prefers the smallest tied k.
	return tie[0].K, fmt.Sprintf("silhouette tie unresolved; smallest k=%d by parsimony", tie[0].K), elbow, nil
}

// metricFavorites returns the k each secondary metric would pick on its own:
// Calinski-Harabasz maximized, Davies-Bouldin minimized.
func metricFavorites(scored []segment.CandidateScore) (chK, dbK int) {
	bestCH := math.Inf(-1)
	bestDB := math.Inf(1)
	for _, row := range scored {
		if row.CalinskiHarabasz > bestCH {
			bestCH = row.CalinskiHarabasz
			chK = row.K
		}
		if row.DaviesBouldin < bestDB {
			bestDB = row.DaviesBouldin
			dbK = row.K
		}
	}
	return chK, dbK
}

func elbowFromTable(scored []segment.CandidateScore) int {
	ks := make([]int, len(scored))
	wcss := make([]float64, len(scored))
	for i, row := range scored {
		ks[i] = row.K
		wcss[i] = row.WCSS
	}
	return elbowK(ks, wcss)
}
