package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type StatsConfig struct {
	Window       time.Duration
	TopDocuments int
}

// StatisticsAggregator is a read-only view over the ledger and integrity
// results.
type StatisticsAggregator struct {
	ledger  ports.LedgerRepository
	results ports.IntegrityRepository
	cfg     StatsConfig
	now     func() time.Time
}

func NewStatisticsAggregator(ledger ports.LedgerRepository, results ports.IntegrityRepository, cfg StatsConfig) *StatisticsAggregator {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.TopDocuments <= 0 {
		cfg.TopDocuments = 5
	}
	return &StatisticsAggregator{
		ledger:  ledger,
		results: results,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatisticsAggregator) Stats(ctx context.Context, actor domain.Actor) (*domain.LedgerStats, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, "ledger stats", errors.New("actor is required"))
	}
	scope := access.ScopeFor(actor)
	now := s.now()

	allTime, err := s.ledger.CountByKind(ctx, scope, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	recent, err := s.ledger.CountByKind(ctx, scope, now.Add(-s.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("count recent ledger entries: %w", err)
	}
	top, err := s.ledger.MostActiveDocuments(ctx, scope, s.cfg.TopDocuments)
	if err != nil {
		return nil, fmt.Errorf("most active documents: %w", err)
	}
	integrity, err := s.results.CountByStatus(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count integrity checks: %w", err)
	}
	if top == nil {
		top = []domain.DocumentActivity{}
	}

	return &domain.LedgerStats{
		TotalEntries:             sumCounts(allTime),
		EventKindBreakdown:       allTime,
		RecentActivity:           sumCounts(recent),
		RecentEventKindBreakdown: recent,
		WindowSeconds:            int64(s.cfg.Window / time.Second),
		MostActiveDocuments:      top,
		Integrity:                summarizeIntegrity(integrity),
		GeneratedAt:              now,
	}, nil
}

func sumCounts(counts map[domain.EventKind]int64) int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	return total
}
