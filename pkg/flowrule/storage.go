package flowrule

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Storage defines the interface for rule persistence
type Storage interface {
	// SaveRule saves a rule to persistent storage
	SaveRule(r *Rule) error

	// DeleteRule removes a rule from persistent storage
	DeleteRule(key string) error

	// LoadRules loads all rules from persistent storage
	LoadRules() ([]Rule, error)

	// Close closes the storage connection
	Close() error
}

// SQLiteStorage implements Storage using SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	// Initialize database schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Infof("Flow rule storage initialized: %s", dbPath)
	return storage, nil
}

// initSchema creates the flow_rules table if it doesn't exist
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS flow_rules (
		rule_key TEXT PRIMARY KEY,
		switch_id INTEGER NOT NULL,
		src_addr TEXT NOT NULL,
		dst_addr TEXT NOT NULL,
		marking INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		output_port INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_switch_id ON flow_rules(switch_id);
	CREATE INDEX IF NOT EXISTS idx_output_port ON flow_rules(output_port);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveRule saves a rule to the database
func (s *SQLiteStorage) SaveRule(r *Rule) error {
	query := `
	INSERT INTO flow_rules (rule_key, switch_id, src_addr, dst_addr, marking, priority, output_port)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(rule_key) DO UPDATE SET
		priority = excluded.priority,
		output_port = excluded.output_port,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query,
		r.Key(),
		r.SwitchID,
		r.Match.SrcAddr,
		r.Match.DstAddr,
		r.Match.Marking,
		r.Priority,
		r.OutputPort,
	)

	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	log.Debugf("Rule saved to storage: %s", r.Key())
	return nil
}

// DeleteRule removes a rule from the database
func (s *SQLiteStorage) DeleteRule(key string) error {
	query := `DELETE FROM flow_rules WHERE rule_key = ?`

	result, err := s.db.Exec(query, key)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("rule not found: %s", key)
	}

	log.Debugf("Rule deleted from storage: %s", key)
	return nil
}

// LoadRules loads all rules from the database
func (s *SQLiteStorage) LoadRules() ([]Rule, error) {
	query := `
	SELECT switch_id, src_addr, dst_addr, marking, priority, output_port
	FROM flow_rules
	ORDER BY priority DESC, rule_key ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		err := rows.Scan(
			&r.SwitchID,
			&r.Match.SrcAddr,
			&r.Match.DstAddr,
			&r.Match.Marking,
			&r.Priority,
			&r.OutputPort,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	log.Infof("Loaded %d rules from storage", len(rules))
	return rules, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RuleCount returns the total number of rules in storage
func (s *SQLiteStorage) RuleCount() (int, error) {
	query := `SELECT COUNT(*) FROM flow_rules`

	var count int
	err := s.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get rule count: %w", err)
	}

	return count, nil
}

// ClearAll removes all rules from storage (useful for testing)
func (s *SQLiteStorage) ClearAll() error {
	query := `DELETE FROM flow_rules`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	log.Info("All rules cleared from storage")
	return nil
}
