// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists session summaries in embedded BadgerDB.
//
// Live sessions stay in memory because they hold an open audit writer;
// once a session completes or is swept for inactivity its summary is
// written here so researchers can enumerate past runs after restarts.
// The CSV audit logs themselves remain on disk and are referenced by
// path from the archived summary.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
)

// ErrNotFound is returned when a session id has no archived summary.
var ErrNotFound = errors.New("archived session not found")

// keyPrefix namespaces summary records inside the database.
var keyPrefix = []byte("session/")

// Config holds configuration for an Archive instance.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// Logger receives BadgerDB's internal logging. If nil, BadgerDB's
	// logging is disabled.
	Logger *slog.Logger
}

// Archive is a BadgerDB-backed store of session summaries. Safe for
// concurrent use.
type Archive struct {
	db *badger.DB
}

// Open creates the database directory if needed and opens the archive.
// The caller must Close it.
func Open(cfg Config) (*Archive, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent archive")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	return &Archive{db: db}, nil
}

// Put stores (or overwrites) a session summary.
func (a *Archive) Put(summary datatypes.SessionSummary) error {
	val, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", summary.SessionID, err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(summary.SessionID), val)
	})
	if err != nil {
		return fmt.Errorf("store summary %s: %w", summary.SessionID, err)
	}
	return nil
}

// Get returns one archived summary by session id.
func (a *Archive) Get(sessionID string) (datatypes.SessionSummary, error) {
	var summary datatypes.SessionSummary
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &summary)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return datatypes.SessionSummary{}, err
		}
		return datatypes.SessionSummary{}, fmt.Errorf("load summary %s: %w", sessionID, err)
	}
	return summary, nil
}

// List returns every archived summary ordered by start time, newest
// first.
func (a *Archive) List() ([]datatypes.SessionSummary, error) {
	var out []datatypes.SessionSummary
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var summary datatypes.SessionSummary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			})
			if err != nil {
				return err
			}
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func key(sessionID string) []byte {
	return append(append([]byte{}, keyPrefix...), sessionID...)
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
