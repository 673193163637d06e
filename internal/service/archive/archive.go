package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/sales-intel-go/internal/constants"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/service/database"
	"github.com/kapu/sales-intel-go/pkg/errors"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sales_reports (
	id          UUID PRIMARY KEY,
	seller      JSONB NOT NULL,
	buyer       JSONB NOT NULL,
	markdown    TEXT NOT NULL,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const indexSQL = `CREATE INDEX IF NOT EXISTS idx_sales_reports_created_at ON sales_reports (created_at DESC)`

// ReportArchive stores generated reports in PostgreSQL.
type ReportArchive struct {
	postgres *database.PostgresService
	db       *sql.DB
	logger   *zap.Logger
}

func NewReportArchive(postgres *database.PostgresService, logger *zap.Logger) *ReportArchive {
	return &ReportArchive{
		postgres: postgres,
		db:       postgres.GetDB(),
		logger:   logger,
	}
}

func (a *ReportArchive) EnsureSchema(ctx context.Context) error {
	return a.postgres.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{schemaSQL, indexSQL} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.NewStoreError("failed to create sales_reports schema", "ensure_schema", err)
			}
		}
		return nil
	})
}

const insertSQL = `
	INSERT INTO sales_reports (id, seller, buyer, markdown, provider, model, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const insertIgnoreSQL = insertSQL + `ON CONFLICT (id) DO NOTHING`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save assigns an ID and creation time when missing and inserts the report.
func (a *ReportArchive) Save(ctx context.Context, report *domain.Report) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	if _, err := insertReport(ctx, a.db, insertSQL, report); err != nil {
		a.logger.Error("Failed to save report", zap.String("id", report.ID), zap.Error(err))
		return errors.NewStoreError("failed to save report", "save", err)
	}

	a.logger.Info("Report archived",
		zap.String("id", report.ID),
		zap.String("buyer_company", report.Buyer.Company),
		zap.Int("length", len(report.Markdown)),
	)
	return nil
}

// Import inserts reports in one transaction. Reports whose ID already exists
// are skipped; any other failure rolls back the whole batch.
func (a *ReportArchive) Import(ctx context.Context, reports []*domain.Report) (imported, skipped int, err error) {
	err = a.postgres.WithTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		imported, skipped, txErr = importReports(ctx, tx, reports)
		return txErr
	})
	if err != nil {
		return 0, 0, err
	}

	a.logger.Info("Reports imported", zap.Int("imported", imported), zap.Int("skipped", skipped))
	return imported, skipped, nil
}

func importReports(ctx context.Context, ex execer, reports []*domain.Report) (imported, skipped int, err error) {
	for _, report := range reports {
		if report == nil {
			continue
		}
		inserted, err := insertReport(ctx, ex, insertIgnoreSQL, report)
		if err != nil {
			return imported, skipped, errors.NewStoreError(
				fmt.Sprintf("failed to import report %s", report.ID), "import", err)
		}
		if inserted {
			imported++
		} else {
			skipped++
		}
	}
	return imported, skipped, nil
}

// insertReport fills a missing ID and creation time, then runs query. It
// reports false when the statement touched no row.
func insertReport(ctx context.Context, ex execer, query string, report *domain.Report) (bool, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	sellerJSON, buyerJSON, err := encodeProfiles(report.Seller, report.Buyer)
	if err != nil {
		return false, fmt.Errorf("encode profiles: %w", err)
	}

	res, err := ex.ExecContext(ctx, query,
		report.ID, sellerJSON, buyerJSON, report.Markdown, report.Provider, report.Model, report.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns nil, nil when the report does not exist.
func (a *ReportArchive) Get(ctx context.Context, id string) (*domain.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `
		SELECT id, seller, buyer, markdown, provider, model, created_at
		FROM sales_reports
		WHERE id = $1
	`

	report, err := scanReport(a.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("failed to query report", "get", err)
	}
	return report, nil
}

// List returns the newest reports first.
func (a *ReportArchive) List(ctx context.Context, limit int) ([]*domain.Report, error) {
	query := `
		SELECT id, seller, buyer, markdown, provider, model, created_at
		FROM sales_reports
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := a.db.QueryContext(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, errors.NewStoreError("failed to list reports", "list", err)
	}
	defer rows.Close()

	reports := make([]*domain.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, errors.NewStoreError("failed to scan report", "list", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate reports", "list", err)
	}

	return reports, nil
}

// ClampLimit maps non-positive limits to the default and caps the rest.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return constants.ArchiveConfig.DefaultListLimit
	}
	if limit > constants.ArchiveConfig.MaxListLimit {
		return constants.ArchiveConfig.MaxListLimit
	}
	return limit
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		report     domain.Report
		sellerJSON []byte
		buyerJSON  []byte
		provider   sql.NullString
		model      sql.NullString
	)

	if err := row.Scan(&report.ID, &sellerJSON, &buyerJSON, &report.Markdown, &provider, &model, &report.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sellerJSON, &report.Seller); err != nil {
		return nil, fmt.Errorf("failed to decode seller: %w", err)
	}
	if err := json.Unmarshal(buyerJSON, &report.Buyer); err != nil {
		return nil, fmt.Errorf("failed to decode buyer: %w", err)
	}

	report.Provider = provider.String
	report.Model = model.String
	return &report, nil
}

func encodeProfiles(seller domain.SellerInfo, buyer domain.BuyerInfo) ([]byte, []byte, error) {
	sellerJSON, err := json.Marshal(seller)
	if err != nil {
		return nil, nil, err
	}
	buyerJSON, err := json.Marshal(buyer)
	if err != nil {
		return nil, nil, err
	}
	return sellerJSON, buyerJSON, nil
}
