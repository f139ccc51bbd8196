// file: internal/database/operations_store.go
// version: 1.1.0
// guid: 9a4e7c2d-6b1f-4d8a-a3e5-0c7f2b9d4e61

package database

import (
	"database/sql"
	"fmt"
	"time"
)

func scanOperation(scanner rowScanner, op *Operation) error {
	return scanner.Scan(
		&op.ID, &op.Type, &op.Status, &op.Progress, &op.Total, &op.Message,
		&op.FolderPath, &op.CreatedAt, &op.StartedAt, &op.CompletedAt, &op.ErrorMessage,
	)
}

const operationSelectColumns = `
	id, type, status, progress, total, message,
	folder_path, created_at, started_at, completed_at, error_message
`

func (s *SQLiteStore) CreateOperation(id, opType string, folderPath *string) (*Operation, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO operations (id, type, status, progress, total, message, folder_path, created_at)
		 VALUES (?, ?, 'pending', 0, 0, '', ?, ?)`,
		id, opType, folderPath, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}
	return &Operation{
		ID: id, Type: opType, Status: "pending",
		FolderPath: folderPath, CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetOperationByID(id string) (*Operation, error) {
	var op Operation
	err := scanOperation(s.db.QueryRow(
		"SELECT "+operationSelectColumns+" FROM operations WHERE id = ?", id), &op)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *SQLiteStore) GetRecentOperations(limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT "+operationSelectColumns+" FROM operations ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		if err := scanOperation(rows, &op); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *SQLiteStore) UpdateOperationStatus(id, status string, progress, total int, message string) error {
	now := time.Now().UTC()
	switch status {
	case "running":
		_, err := s.db.Exec(
			`UPDATE operations SET status = ?, progress = ?, total = ?, message = ?,
			 started_at = COALESCE(started_at, ?) WHERE id = ?`,
			status, progress, total, message, now, id)
		return err
	case "completed", "failed", "canceled":
		_, err := s.db.Exec(
			`UPDATE operations SET status = ?, progress = ?, total = ?, message = ?,
			 completed_at = ? WHERE id = ?`,
			status, progress, total, message, now, id)
		return err
	default:
		_, err := s.db.Exec(
			"UPDATE operations SET status = ?, progress = ?, total = ?, message = ? WHERE id = ?",
			status, progress, total, message, id)
		return err
	}
}

func (s *SQLiteStore) UpdateOperationError(id, errorMessage string) error {
	_, err := s.db.Exec(
		`UPDATE operations SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?`,
		errorMessage, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) AddOperationLog(operationID, level, message string, details *string) error {
	_, err := s.db.Exec(
		"INSERT INTO operation_logs (operation_id, level, message, details) VALUES (?, ?, ?, ?)",
		operationID, level, message, details)
	return err
}

func (s *SQLiteStore) GetOperationLogs(operationID string) ([]OperationLog, error) {
	rows, err := s.db.Query(
		`SELECT id, operation_id, level, message, details, created_at
		 FROM operation_logs WHERE operation_id = ? ORDER BY id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []OperationLog
	for rows.Next() {
		var entry OperationLog
		if err := rows.Scan(&entry.ID, &entry.OperationID, &entry.Level,
			&entry.Message, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
