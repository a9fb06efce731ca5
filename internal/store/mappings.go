package store

import (
	"fmt"

	"royaltydesk/internal/model"
)

// SaveColumnMappings replaces the saved column mapping for a contract with
// the confirmed one. Columns mapped to ignore are saved too, so a column the
// user explicitly ignored stays ignored on the next upload.
func (s *Store) SaveColumnMappings(contractID string, mapping model.ColumnMapping) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM column_mappings WHERE contract_id = ?`, contractID); err != nil {
		return fmt.Errorf("clear column mappings: %w", err)
	}
	for column, field := range mapping {
		if _, err := tx.Exec(`
			INSERT INTO column_mappings (contract_id, column_name, field)
			VALUES (?, ?, ?)`, contractID, column, string(field)); err != nil {
			return fmt.Errorf("insert column mapping: %w", err)
		}
	}
	return tx.Commit()
}

// GetColumnMappings loads the saved column mapping for a contract. A
// contract with no saved mapping yields an empty map.
func (s *Store) GetColumnMappings(contractID string) (model.ColumnMapping, error) {
	rows, err := s.db.Query(`
		SELECT column_name, field FROM column_mappings WHERE contract_id = ?`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapping := make(model.ColumnMapping)
	for rows.Next() {
		var column, field string
		if err := rows.Scan(&column, &field); err != nil {
			return nil, err
		}
		mapping[column] = model.CanonicalField(field)
	}
	return mapping, rows.Err()
}

// SaveCategoryMappings upserts saved report-category aliases for a contract
// without discarding aliases for categories absent from this report.
func (s *Store) SaveCategoryMappings(contractID string, aliases map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for report, contract := range aliases {
		if _, err := tx.Exec(`
			INSERT INTO category_mappings (contract_id, report_category, contract_category)
			VALUES (?, ?, ?)
			ON CONFLICT (contract_id, report_category)
			DO UPDATE SET contract_category = excluded.contract_category`,
			contractID, report, contract); err != nil {
			return fmt.Errorf("upsert category mapping: %w", err)
		}
	}
	return tx.Commit()
}

// GetCategoryMappings loads the saved category aliases for a contract.
func (s *Store) GetCategoryMappings(contractID string) (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT report_category, contract_category
		FROM category_mappings WHERE contract_id = ?`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := make(map[string]string)
	for rows.Next() {
		var report, contract string
		if err := rows.Scan(&report, &contract); err != nil {
			return nil, err
		}
		aliases[report] = contract
	}
	return aliases, rows.Err()
}
