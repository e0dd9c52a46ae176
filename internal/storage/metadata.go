package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ItemRecord is the persisted outcome of one processed media item.
type ItemRecord struct {
	RunID          string
	Channel        string
	MessageID      int
	Sequence       int
	FileName       string
	Fingerprint    string
	Status         string
	TranscriptPath string
	DocumentID     string
	CreatedAt      time.Time
}

// MetadataDB records per-item pipeline outcomes in SQLite.
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (and if needed initializes) the metadata database.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		fingerprint TEXT,
		status TEXT NOT NULL,
		transcript_path TEXT,
		document_id TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_run_id ON items(run_id);
	CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create items table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveItem inserts one item record. CreatedAt defaults to now.
func (mdb *MetadataDB) SaveItem(rec ItemRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO items (run_id, channel, message_id, sequence, file_name, fingerprint, status, transcript_path, document_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mdb.db.Exec(query, rec.RunID, rec.Channel, rec.MessageID, rec.Sequence,
		rec.FileName, rec.Fingerprint, rec.Status, rec.TranscriptPath, rec.DocumentID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save item record: %w", err)
	}

	return nil
}

// ListRun returns the records of one run in processing order.
func (mdb *MetadataDB) ListRun(runID string) ([]ItemRecord, error) {
	query := `
	SELECT run_id, channel, message_id, sequence, file_name, fingerprint, status, transcript_path, document_id, created_at
	FROM items WHERE run_id = ? ORDER BY sequence ASC
	`

	rows, err := mdb.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []ItemRecord
	for rows.Next() {
		var rec ItemRecord
		if err := rows.Scan(&rec.RunID, &rec.Channel, &rec.MessageID, &rec.Sequence,
			&rec.FileName, &rec.Fingerprint, &rec.Status, &rec.TranscriptPath,
			&rec.DocumentID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
