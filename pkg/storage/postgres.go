package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/costwatch/cost-advisor/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}

	// Run migrations
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SaveReport stores one run with its region results and recommendations
// in a single transaction.
func (s *PostgresStore) SaveReport(ctx context.Context, report *models.AnalysisReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, started_at, completed_at, resource_count,
			regions_scanned, regions_failed, monthly_savings, annual_savings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		report.RunID, report.StartedAt, report.CompletedAt,
		report.Summary.ResourceCount, report.Summary.RegionsScanned,
		report.Summary.RegionsFailed, report.Summary.TotalMonthlySavings,
		report.Summary.TotalAnnualSavings,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, region := range report.Regions {
		var totalCost sql.NullFloat64
		if region.Cost != nil {
			totalCost = sql.NullFloat64{Float64: region.Cost.TotalCost, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO region_results (run_id, region, status, error, resource_count, total_cost)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			report.RunID, region.Region, region.Status, region.Error,
			region.ResourceCount, totalCost,
		)
		if err != nil {
			return fmt.Errorf("failed to insert region result: %w", err)
		}
	}

	for _, rec := range report.Recommendations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recommendations (
				id, run_id, resource_id, kind, region,
				current_config, target_config, pattern, action,
				monthly_savings, annual_savings, risk, priority,
				confidence, reason, degraded, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`,
			rec.ID, report.RunID, rec.ResourceID, rec.Kind, rec.Region,
			rec.CurrentConfig, rec.TargetConfig, rec.Pattern, rec.Action,
			rec.MonthlySavings, rec.AnnualSavings, rec.Risk, rec.Priority,
			rec.Confidence, rec.Reason, rec.Degraded, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	return tx.Commit()
}

// GetReport retrieves one run by ID, with its regions and recommendations.
func (s *PostgresStore) GetReport(ctx context.Context, runID string) (*models.AnalysisReport, error) {
	report := &models.AnalysisReport{RunID: runID}
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, completed_at, resource_count,
			regions_scanned, regions_failed, monthly_savings, annual_savings
		FROM analysis_runs WHERE run_id = $1
	`, runID).Scan(
		&report.StartedAt, &report.CompletedAt, &report.Summary.ResourceCount,
		&report.Summary.RegionsScanned, &report.Summary.RegionsFailed,
		&report.Summary.TotalMonthlySavings, &report.Summary.TotalAnnualSavings,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT region, status, error, resource_count, total_cost
		FROM region_results WHERE run_id = $1 ORDER BY region
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query region results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var region models.RegionResult
		var totalCost sql.NullFloat64
		if err := rows.Scan(&region.Region, &region.Status, &region.Error,
			&region.ResourceCount, &totalCost); err != nil {
			return nil, fmt.Errorf("failed to scan region result: %w", err)
		}
		if totalCost.Valid {
			region.Cost = &models.CostSnapshot{Region: region.Region, TotalCost: totalCost.Float64}
		}
		report.Regions = append(report.Regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recs, err := s.queryRecommendations(ctx, `
		SELECT id, resource_id, kind, region, current_config, target_config,
			pattern, action, monthly_savings, annual_savings, risk, priority,
			confidence, reason, degraded, created_at
		FROM recommendations WHERE run_id = $1
		ORDER BY monthly_savings DESC, region, resource_id
	`, runID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		report.Recommendations = append(report.Recommendations, *rec)
	}
	return report, nil
}

// ListRuns returns the most recent runs, newest first, without their
// recommendations.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, completed_at, resource_count,
			regions_scanned, regions_failed, monthly_savings, annual_savings
		FROM analysis_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisReport
	for rows.Next() {
		report := &models.AnalysisReport{}
		if err := rows.Scan(
			&report.RunID, &report.StartedAt, &report.CompletedAt,
			&report.Summary.ResourceCount, &report.Summary.RegionsScanned,
			&report.Summary.RegionsFailed, &report.Summary.TotalMonthlySavings,
			&report.Summary.TotalAnnualSavings,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, report)
	}
	return runs, rows.Err()
}

// ListRecommendations returns recent recommendations, optionally
// filtered by region.
func (s *PostgresStore) ListRecommendations(ctx context.Context, region string, limit int) ([]*models.OptimizationRecommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	if region != "" {
		return s.queryRecommendations(ctx, `
			SELECT id, resource_id, kind, region, current_config, target_config,
				pattern, action, monthly_savings, annual_savings, risk, priority,
				confidence, reason, degraded, created_at
			FROM recommendations WHERE region = $1
			ORDER BY created_at DESC LIMIT $2
		`, region, limit)
	}
	return s.queryRecommendations(ctx, `
		SELECT id, resource_id, kind, region, current_config, target_config,
			pattern, action, monthly_savings, annual_savings, risk, priority,
			confidence, reason, degraded, created_at
		FROM recommendations
		ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *PostgresStore) queryRecommendations(ctx context.Context, query string, args ...any) ([]*models.OptimizationRecommendation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*models.OptimizationRecommendation
	for rows.Next() {
		var rec models.OptimizationRecommendation
		if err := rows.Scan(
			&rec.ID, &rec.ResourceID, &rec.Kind, &rec.Region,
			&rec.CurrentConfig, &rec.TargetConfig, &rec.Pattern, &rec.Action,
			&rec.MonthlySavings, &rec.AnnualSavings, &rec.Risk, &rec.Priority,
			&rec.Confidence, &rec.Reason, &rec.Degraded, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
