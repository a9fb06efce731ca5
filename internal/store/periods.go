package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
)

// CreateSalesPeriod persists one confirmed reporting period.
func (s *Store) CreateSalesPeriod(p model.SalesPeriod) (model.SalesPeriod, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()

	var reported sql.NullString
	if p.LicenseeReportedRoyalty != nil {
		reported = sql.NullString{String: p.LicenseeReportedRoyalty.String(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO sales_periods (id, contract_id, period_start, period_end,
			net_sales, royalty_calculated, licensee_reported_royalty,
			minimum_applied, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID,
		p.PeriodStart.Format(timeLayout), p.PeriodEnd.Format(timeLayout),
		p.NetSales.String(), p.RoyaltyCalculated.String(), reported,
		boolToInt(p.MinimumApplied), p.SourceFile, p.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.SalesPeriod{}, fmt.Errorf("insert sales period: %w", err)
	}
	return p, nil
}

// GetSalesPeriodsInRange returns a contract's periods whose start date falls
// within [start, end), ordered by period start.
func (s *Store) GetSalesPeriodsInRange(contractID string, start, end time.Time) ([]model.SalesPeriod, error) {
	rows, err := s.db.Query(`
		SELECT id, contract_id, period_start, period_end, net_sales,
			royalty_calculated, licensee_reported_royalty, minimum_applied,
			source_file, created_at
		FROM sales_periods
		WHERE contract_id = ? AND period_start >= ? AND period_start < ?
		ORDER BY period_start`,
		contractID, start.Format(timeLayout), end.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []model.SalesPeriod
	for rows.Next() {
		var p model.SalesPeriod
		var periodStart, periodEnd, netSales, royalty, createdAt string
		var reported sql.NullString
		var minimumApplied int

		err := rows.Scan(&p.ID, &p.ContractID, &periodStart, &periodEnd,
			&netSales, &royalty, &reported, &minimumApplied, &p.SourceFile, &createdAt)
		if err != nil {
			return nil, err
		}

		if p.PeriodStart, err = time.Parse(timeLayout, periodStart); err != nil {
			return nil, fmt.Errorf("parse period start: %w", err)
		}
		if p.PeriodEnd, err = time.Parse(timeLayout, periodEnd); err != nil {
			return nil, fmt.Errorf("parse period end: %w", err)
		}
		if p.NetSales, err = decimal.NewFromString(netSales); err != nil {
			return nil, fmt.Errorf("parse net sales: %w", err)
		}
		if p.RoyaltyCalculated, err = decimal.NewFromString(royalty); err != nil {
			return nil, fmt.Errorf("parse royalty: %w", err)
		}
		if reported.Valid {
			v, err := decimal.NewFromString(reported.String)
			if err != nil {
				return nil, fmt.Errorf("parse reported royalty: %w", err)
			}
			p.LicenseeReportedRoyalty = &v
		}
		p.MinimumApplied = minimumApplied != 0
		if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created at: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// LogImport records one upload attempt in the import log.
func (s *Store) LogImport(contractID, filename, status, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO import_log (id, contract_id, filename, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), contractID, filename, status, message,
		time.Now().UTC().Format(timeLayout))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
