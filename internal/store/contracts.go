package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
)

// CreateContract persists a new contract and returns it with its generated
// id and creation timestamp filled in.
func (s *Store) CreateContract(c model.Contract) (model.Contract, error) {
	if err := c.RateSpec.Validate(); err != nil {
		return model.Contract{}, err
	}

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	rateJSON, err := json.Marshal(c.RateSpec)
	if err != nil {
		return model.Contract{}, fmt.Errorf("marshal rate spec: %w", err)
	}

	var mgAmount, mgPeriod sql.NullString
	if c.MinimumGuarantee != nil {
		mgAmount = sql.NullString{String: c.MinimumGuarantee.Amount.String(), Valid: true}
		mgPeriod = sql.NullString{String: string(c.MinimumGuarantee.Period), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO contracts (id, name, licensee_name, rate_spec,
			minimum_guarantee_amount, minimum_guarantee_period, advance_amount,
			reporting_frequency, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.LicenseeName, string(rateJSON),
		mgAmount, mgPeriod, c.AdvancePayment.String(),
		string(c.ReportingFrequency),
		c.StartDate.Format(timeLayout), c.EndDate.Format(timeLayout),
		c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Contract{}, fmt.Errorf("insert contract: %w", err)
	}
	return c, nil
}

// GetContract loads one contract by id. sql.ErrNoRows surfaces unchanged
// when the id is unknown.
func (s *Store) GetContract(id string) (model.Contract, error) {
	row := s.db.QueryRow(`
		SELECT id, name, licensee_name, rate_spec,
			minimum_guarantee_amount, minimum_guarantee_period, advance_amount,
			reporting_frequency, start_date, end_date, created_at
		FROM contracts WHERE id = ?`, id)
	return scanContract(row)
}

// ListContracts returns all contracts ordered by creation time.
func (s *Store) ListContracts() ([]model.Contract, error) {
	rows, err := s.db.Query(`
		SELECT id, name, licensee_name, rate_spec,
			minimum_guarantee_amount, minimum_guarantee_period, advance_amount,
			reporting_frequency, start_date, end_date, created_at
		FROM contracts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (model.Contract, error) {
	var c model.Contract
	var rateJSON, advance, frequency, startDate, endDate, createdAt string
	var mgAmount, mgPeriod sql.NullString

	err := row.Scan(&c.ID, &c.Name, &c.LicenseeName, &rateJSON,
		&mgAmount, &mgPeriod, &advance, &frequency, &startDate, &endDate, &createdAt)
	if err != nil {
		return model.Contract{}, err
	}

	if err := json.Unmarshal([]byte(rateJSON), &c.RateSpec); err != nil {
		return model.Contract{}, fmt.Errorf("unmarshal rate spec: %w", err)
	}
	if mgAmount.Valid && mgPeriod.Valid {
		amount, err := decimal.NewFromString(mgAmount.String)
		if err != nil {
			return model.Contract{}, fmt.Errorf("parse guarantee amount: %w", err)
		}
		c.MinimumGuarantee = &model.MinimumGuarantee{
			Amount: amount,
			Period: model.GuaranteePeriod(mgPeriod.String),
		}
	}
	if c.AdvancePayment, err = decimal.NewFromString(advance); err != nil {
		return model.Contract{}, fmt.Errorf("parse advance amount: %w", err)
	}
	c.ReportingFrequency = model.GuaranteePeriod(frequency)
	if c.StartDate, err = time.Parse(timeLayout, startDate); err != nil {
		return model.Contract{}, fmt.Errorf("parse start date: %w", err)
	}
	if c.EndDate, err = time.Parse(timeLayout, endDate); err != nil {
		return model.Contract{}, fmt.Errorf("parse end date: %w", err)
	}
	if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return model.Contract{}, fmt.Errorf("parse created at: %w", err)
	}
	return c, nil
}
