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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaolang-labs/xiaolang-hub/internal/events"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

func newTestStore(t *testing.T) *DispatchEventsStore {
	t.Helper()

	if err := logging.Initialize(); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	db, err := NewDatabase(DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewDispatchEventsStore(db)
}

func makeEvent(sessionID, state, text, matched string) *events.DispatchEvent {
	event := events.NewDispatchEvent(sessionID)
	event.SetInput(state, text, true)
	event.SetDecision(text, matched, "awake", "none", "", "")
	return event
}

func TestInsertAndGetByUUID(t *testing.T) {
	store := newTestStore(t)

	event := makeEvent("session-1", "wake_listen", "你好小朗", "wake")
	require.NoError(t, store.Insert(event))

	loaded, err := store.GetByUUID(event.UUID)
	require.NoError(t, err)

	assert.Equal(t, event.UUID, loaded.UUID)
	assert.Equal(t, "session-1", loaded.SessionID)
	assert.Equal(t, "你好小朗", loaded.RawText)
	assert.Equal(t, "wake", loaded.Matched)
	assert.True(t, loaded.IsFinal)
	assert.True(t, loaded.Success)
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	store := newTestStore(t)

	err := store.Insert(&events.DispatchEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dispatch event")
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Insert(makeEvent("session-a", "wake_listen", "你好小朗", "wake")))
	require.NoError(t, store.Insert(makeEvent("session-a", "awake", "打开知识库", "command")))
	require.NoError(t, store.Insert(makeEvent("session-b", "awake", "退下吧", "sleep")))

	bySession, err := store.List(ListOptions{SessionID: "session-a"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byMatched, err := store.List(ListOptions{Matched: "sleep"})
	require.NoError(t, err)
	require.Len(t, byMatched, 1)
	assert.Equal(t, "session-b", byMatched[0].SessionID)

	all, err := store.List(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.List(ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestCount(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Insert(makeEvent("session-a", "awake", "打开知识库", "command")))
	require.NoError(t, store.Insert(makeEvent("session-a", "awake", "打开设置", "command")))

	count, err := store.Count(ListOptions{SessionID: "session-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	none, err := store.Count(ListOptions{SessionID: "session-z"})
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	event := makeEvent("session-a", "awake", "打开知识库", "command")
	require.NoError(t, store.Insert(event))
	require.NoError(t, store.Delete(event.UUID))

	_, err := store.GetByUUID(event.UUID)
	assert.Error(t, err)

	assert.Error(t, store.Delete(event.UUID), "deleting twice must fail")
}

func TestMaintain(t *testing.T) {
	store := newTestStore(t)

	old := makeEvent("session-a", "awake", "打开知识库", "command")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Insert(old))
	require.NoError(t, store.Insert(makeEvent("session-a", "awake", "打开设置", "command")))

	pruned, err := store.Maintain(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := store.Count(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	// Nothing left to prune: checkpoint-only pass.
	pruned, err = store.Maintain(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)

	old := makeEvent("session-a", "awake", "打开知识库", "command")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Insert(old))
	require.NoError(t, store.Insert(makeEvent("session-a", "awake", "打开设置", "command")))

	pruned, err := store.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := store.Count(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}
