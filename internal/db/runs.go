package db

import "database/sql"

// CreateProcessRun creates a new process run record
func (db *DB) CreateProcessRun(run *ProcessRun) error {
	query := `
		INSERT INTO process_runs (run_id, started_at, completed_at, deadline, user_count, succeeded, failed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		run.RunID,
		run.StartedAt,
		run.CompletedAt,
		run.Deadline,
		run.UserCount,
		run.Succeeded,
		run.Failed,
		run.Status,
	)

	return err
}

// GetProcessRun retrieves a process run by its run ID
func (db *DB) GetProcessRun(runID string) (*ProcessRun, error) {
	run := &ProcessRun{}

	query := `
		SELECT run_id, started_at, completed_at, deadline, user_count, succeeded, failed, status
		FROM process_runs
		WHERE run_id = ?
	`

	err := db.QueryRow(query, runID).Scan(
		&run.RunID,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Deadline,
		&run.UserCount,
		&run.Succeeded,
		&run.Failed,
		&run.Status,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteProcessRun records the terminal outcome of a process run
func (db *DB) CompleteProcessRun(runID string, succeeded, failed int) error {
	now := db.now()
	status := "completed"
	if failed > 0 {
		status = "completed_with_failures"
	}

	query := `
		UPDATE process_runs
		SET completed_at = ?, succeeded = ?, failed = ?, status = ?
		WHERE run_id = ?
	`

	result, err := db.Exec(query, now, succeeded, failed, status, runID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CreateUnit creates an audit record for a dispatched work unit
func (db *DB) CreateUnit(unit *UnitRecord) error {
	query := `
		INSERT INTO process_units (unit_id, run_id, user_id, deadline, state, bad_files, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		unit.UnitID,
		unit.RunID,
		unit.UserID,
		unit.Deadline,
		unit.State,
		unit.BadFiles,
		unit.Error,
		unit.UpdatedAt,
	)

	return err
}

// UpdateUnitState records a work unit state transition
func (db *DB) UpdateUnitState(unitID, state string, badFiles int, errMsg *string) error {
	query := `
		UPDATE process_units
		SET state = ?, bad_files = ?, error = ?, updated_at = ?
		WHERE unit_id = ?
	`

	result, err := db.Exec(query, state, badFiles, errMsg, db.now(), unitID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetUnitsForRun retrieves all unit records for a run
func (db *DB) GetUnitsForRun(runID string) ([]UnitRecord, error) {
	query := `
		SELECT unit_id, run_id, user_id, deadline, state, bad_files, error, updated_at
		FROM process_units
		WHERE run_id = ?
		ORDER BY user_id
	`

	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		var unit UnitRecord
		err := rows.Scan(
			&unit.UnitID,
			&unit.RunID,
			&unit.UserID,
			&unit.Deadline,
			&unit.State,
			&unit.BadFiles,
			&unit.Error,
			&unit.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if units == nil {
		units = []UnitRecord{}
	}

	return units, nil
}
