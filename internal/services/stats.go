package services

import (
	"context"
	"fmt"
	"math"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/store"
	"golang.org/x/sync/errgroup"
)

// StatsService computes the dashboard summary.
type StatsService struct {
	store store.Store
}

func NewStatsService(st store.Store) *StatsService {
	return &StatsService{store: st}
}

// Stats reads the total, average CGPA, remark breakdown and CGPA distribution
// concurrently. An empty store yields models.EmptyStats().
func (s *StatsService) Stats(ctx context.Context) (*models.Stats, error) {
	var (
		total    int
		avg      float64
		hasAvg   bool
		passFail []models.RemarkCount
		cgpaDist []float64
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if total, err = s.store.Count(gctx); err != nil {
			return fmt.Errorf("count: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if avg, hasAvg, err = s.store.AverageCGPA(gctx); err != nil {
			return fmt.Errorf("average cgpa: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if passFail, err = s.store.CountByRemark(gctx); err != nil {
			return fmt.Errorf("pass/fail breakdown: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if cgpaDist, err = s.store.CGPAValues(gctx); err != nil {
			return fmt.Errorf("cgpa distribution: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	stats := models.EmptyStats()
	if total == 0 {
		return stats, nil
	}
	stats.Total = total
	if hasAvg {
		stats.AvgCGPA = math.Round(avg*100) / 100
	}
	if passFail != nil {
		stats.PassFail = passFail
	}
	if cgpaDist != nil {
		stats.CGPADist = cgpaDist
	}
	return stats, nil
}
