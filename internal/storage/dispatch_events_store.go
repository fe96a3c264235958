/*
 * This file is part of Xiaolang (https://github.com/xiaolang-labs/xiaolang).
 * Copyright (C) 2026 Xiaolang Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaolang-labs/xiaolang-hub/internal/events"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// DispatchEventsStore handles database operations for dispatch events
type DispatchEventsStore struct {
	db *Database
}

// NewDispatchEventsStore creates a new dispatch events store
func NewDispatchEventsStore(db *Database) *DispatchEventsStore {
	return &DispatchEventsStore{db: db}
}

// Insert stores a new dispatch event in the database
func (s *DispatchEventsStore) Insert(event *events.DispatchEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid dispatch event: %w", err)
	}

	query := `
		INSERT INTO dispatch_events (
			uuid, session_id, timestamp,
			state, raw_text, is_final,
			normalized, matched, next_state, action_type, command_text, tts,
			processing_time_ms, success, error_message
		) VALUES (
			?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?
		)`

	_, err := s.db.DB().Exec(query,
		event.UUID, event.SessionID, event.Timestamp,
		event.State, event.RawText, event.IsFinal,
		event.Normalized, event.Matched, event.NextState, event.ActionType, event.CommandText, event.TTS,
		event.ProcessingTime, event.Success, event.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to insert dispatch event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "dispatch_events")
	return nil
}

// GetByUUID retrieves a dispatch event by its UUID
func (s *DispatchEventsStore) GetByUUID(uuid string) (*events.DispatchEvent, error) {
	query := selectColumns + ` FROM dispatch_events WHERE uuid = ?`

	row := s.db.DB().QueryRow(query, uuid)
	return s.scanDispatchEvent(row)
}

// List retrieves dispatch events with pagination and filtering
func (s *DispatchEventsStore) List(options ListOptions) ([]*events.DispatchEvent, error) {
	query, args := s.buildListQuery(options)

	rows, err := s.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch events: %w", err)
	}
	defer rows.Close()

	var eventsList []*events.DispatchEvent
	for rows.Next() {
		event, err := s.scanDispatchEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch events: %w", err)
	}

	return eventsList, nil
}

// Count returns the total number of dispatch events matching the filter
func (s *DispatchEventsStore) Count(options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args := s.buildListQuery(options)

	countQuery := "SELECT COUNT(*) FROM (" + query + ") as filtered"

	var count int64
	err := s.db.DB().QueryRow(countQuery, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatch events: %w", err)
	}

	return count, nil
}

// GetRecentBySession retrieves recent events for a specific session
func (s *DispatchEventsStore) GetRecentBySession(sessionID string, limit int) ([]*events.DispatchEvent, error) {
	options := ListOptions{
		SessionID: sessionID,
		Limit:     limit,
	}
	return s.List(options)
}

// Delete removes a dispatch event by UUID
func (s *DispatchEventsStore) Delete(uuid string) error {
	result, err := s.db.DB().Exec("DELETE FROM dispatch_events WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete dispatch event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("dispatch event not found: %s", uuid)
	}

	logging.LogDatabaseOperation("delete", "dispatch_events")
	return nil
}

// DeleteOlderThan removes events past the retention window and returns
// the number of rows removed.
func (s *DispatchEventsStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.db.DB().Exec("DELETE FROM dispatch_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune dispatch events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		logging.LogDatabaseOperation("prune", "dispatch_events")
	}
	return rowsAffected, nil
}

// Maintain prunes events past the retention cutoff and compacts the
// database: the WAL is checkpointed on every pass, and a vacuum reclaims
// file space whenever rows were actually removed.
func (s *DispatchEventsStore) Maintain(cutoff time.Time) (int64, error) {
	pruned, err := s.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}

	if err := s.db.Checkpoint(); err != nil {
		return pruned, err
	}
	if pruned > 0 {
		if err := s.db.Vacuum(); err != nil {
			return pruned, err
		}
	}

	return pruned, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	SessionID string
	Matched   string
	Success   *bool // nil = all, true = success only, false = errors only
	StartTime *time.Time
	EndTime   *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "processing_time"
	SortOrder string // "ASC", "DESC"
}

const selectColumns = `
	SELECT uuid, session_id, timestamp,
		   state, raw_text, is_final,
		   normalized, matched, next_state, action_type, command_text, tts,
		   processing_time_ms, success, error_message`

// buildListQuery constructs the SQL query based on ListOptions
func (s *DispatchEventsStore) buildListQuery(options ListOptions) (string, []interface{}) {
	query := selectColumns + ` FROM dispatch_events`

	var conditions []string
	var args []interface{}

	if options.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, options.SessionID)
	}

	if options.Matched != "" {
		conditions = append(conditions, "matched = ?")
		args = append(args, options.Matched)
	}

	if options.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *options.Success)
	}

	if options.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *options.StartTime)
	}

	if options.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *options.EndTime)
	}

	if len(conditions) > 0 {
		query += " WHERE " + joinConditions(conditions)
	}

	sortBy := options.SortBy
	switch sortBy {
	case "processing_time":
		sortBy = "processing_time_ms"
	case "timestamp", "":
		sortBy = "timestamp"
	default:
		sortBy = "timestamp"
	}

	sortOrder := options.SortOrder
	if sortOrder != "ASC" {
		sortOrder = "DESC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

func joinConditions(conditions []string) string {
	result := conditions[0]
	for _, c := range conditions[1:] {
		result += " AND " + c
	}
	return result
}

// rowScanner abstracts sql.Row and sql.Rows for scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDispatchEvent scans a database row into a DispatchEvent
func (s *DispatchEventsStore) scanDispatchEvent(row rowScanner) (*events.DispatchEvent, error) {
	var event events.DispatchEvent

	err := row.Scan(
		&event.UUID, &event.SessionID, &event.Timestamp,
		&event.State, &event.RawText, &event.IsFinal,
		&event.Normalized, &event.Matched, &event.NextState, &event.ActionType, &event.CommandText, &event.TTS,
		&event.ProcessingTime, &event.Success, &event.ErrorMessage,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dispatch event not found")
	}
	if err != nil {
		return nil, err
	}

	return &event, nil
}
