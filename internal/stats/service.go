// Package stats is the read side: rolling-window traffic snapshots and
// the recent data-quality report.
package stats

import (
	"context"
	"time"

	"github.com/clicklab/analytics/internal/models"
)

// Source is the store's stats query surface.
type Source interface {
	Stats(ctx context.Context) ([]models.StatsPeriod, error)
	RecentIssues(ctx context.Context) ([]models.QualityReportRow, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

type Report struct {
	Timestamp time.Time            `json:"timestamp"`
	Metrics   []models.StatsPeriod `json:"metrics"`
}

func (s *Service) Snapshot(ctx context.Context) (Report, error) {
	metrics, err := s.src.Stats(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Timestamp: time.Now().UTC(), Metrics: metrics}, nil
}

type QualityReport struct {
	Timestamp     time.Time                 `json:"timestamp"`
	QualityIssues []models.QualityReportRow `json:"quality_issues"`
}

func (s *Service) Quality(ctx context.Context) (QualityReport, error) {
	issues, err := s.src.RecentIssues(ctx)
	if err != nil {
		return QualityReport{}, err
	}
	if issues == nil {
		issues = []models.QualityReportRow{}
	}
	return QualityReport{Timestamp: time.Now().UTC(), QualityIssues: issues}, nil
}
