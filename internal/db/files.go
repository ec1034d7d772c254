package db

import (
	"database/sql"
	"time"
)

// InsertFile adds a raw uploaded file to the pending set
func (db *DB) InsertFile(file *FileToProcess) error {
	query := `
		INSERT INTO files_to_process (id, user_id, path, payload, bad, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		file.ID,
		file.UserID,
		file.Path,
		file.Payload,
		file.Bad,
		file.UploadedAt,
	)

	return err
}

// DistinctPendingUsers returns the distinct set of user IDs that currently
// have unprocessed files
func (db *DB) DistinctPendingUsers() ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM files_to_process
		ORDER BY user_id
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Return empty slice instead of nil
	if users == nil {
		users = []string{}
	}

	return users, nil
}

// CountPending returns the current pending queue depth for a user.
// Known-bad files still count; they remain in the queue until an operator
// clears them.
func (db *DB) CountPending(userID string) (int, error) {
	var count int

	query := `
		SELECT COUNT(*)
		FROM files_to_process
		WHERE user_id = ?
	`

	if err := db.QueryRow(query, userID).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// PendingPage returns up to limit pending files for a user, skipping the
// first offset entries in upload order. Bad files sort to the head of the
// queue so a skip offset equal to the known-bad count steps over them.
func (db *DB) PendingPage(userID string, limit, offset int) ([]FileToProcess, error) {
	query := `
		SELECT id, user_id, path, payload, bad, uploaded_at
		FROM files_to_process
		WHERE user_id = ?
		ORDER BY bad DESC, uploaded_at ASC, id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileToProcess
	for rows.Next() {
		var file FileToProcess
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.Path,
			&file.Payload,
			&file.Bad,
			&file.UploadedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if files == nil {
		files = []FileToProcess{}
	}

	return files, nil
}

// RetireFiles removes consumed files from the pending set
func (db *DB) RetireFiles(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return db.WithTransaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("DELETE FROM files_to_process WHERE id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.Exec(id); err != nil {
				return err
			}
		}

		return nil
	})
}

// MarkFileBad flags a file as unprocessable without removing it from the
// pending set
func (db *DB) MarkFileBad(id string) error {
	query := `
		UPDATE files_to_process
		SET bad = 1
		WHERE id = ?
	`

	result, err := db.Exec(query, id)
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

// UpsertChunk inserts an hour-binned chunk record, or accumulates the row
// count into an existing bucket for the same user, data type, and time bin.
func (db *DB) UpsertChunk(chunk *ChunkRecord) error {
	query := `
		INSERT INTO chunk_records (id, user_id, data_type, time_bin, row_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, data_type, time_bin)
		DO UPDATE SET row_count = row_count + excluded.row_count
	`

	_, err := db.Exec(query,
		chunk.ID,
		chunk.UserID,
		chunk.DataType,
		chunk.TimeBin,
		chunk.RowCount,
		chunk.CreatedAt,
	)

	return err
}

// GetChunk retrieves a chunk record by its bucket key
func (db *DB) GetChunk(userID, dataType string, timeBin time.Time) (*ChunkRecord, error) {
	chunk := &ChunkRecord{}

	query := `
		SELECT id, user_id, data_type, time_bin, row_count, created_at
		FROM chunk_records
		WHERE user_id = ? AND data_type = ? AND time_bin = ?
	`

	err := db.QueryRow(query, userID, dataType, timeBin).Scan(
		&chunk.ID,
		&chunk.UserID,
		&chunk.DataType,
		&chunk.TimeBin,
		&chunk.RowCount,
		&chunk.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return chunk, nil
}
