// Package storage persists analysis runs and their recommendations.
package storage

import (
	"context"

	"github.com/costwatch/cost-advisor/pkg/models"
)

// Store defines the interface for persistent storage
type Store interface {
	SaveReport(ctx context.Context, report *models.AnalysisReport) error
	GetReport(ctx context.Context, runID string) (*models.AnalysisReport, error)
	ListRuns(ctx context.Context, limit int) ([]*models.AnalysisReport, error)
	ListRecommendations(ctx context.Context, region string, limit int) ([]*models.OptimizationRecommendation, error)

	Ping(ctx context.Context) error
	Close() error
}
