package keystore

import (
	"database/sql"
	"sync"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo required for an embedded key store
)

// SQLiteStore is an optional Store backed by a local SQLite database,
// for principals that want queryable, crash-safe pairing storage
// without the write-temp-then-rename dance FileStore does by hand.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed Store at
// path, or ":memory:" for an ephemeral one.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `CREATE TABLE IF NOT EXISTS pairings (
		peer_id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL,
		secret_key TEXT NOT NULL,
		public_key TEXT NOT NULL,
		device_public_key TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(peerID string) (*PeerKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r fileRecord
	row := s.db.QueryRow(
		`SELECT identifier, secret_key, public_key, device_public_key FROM pairings WHERE peer_id = ?`,
		peerID)
	if err := row.Scan(&r.Identifier, &r.SecretKey, &r.PublicKey, &r.DevicePublicKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound{PeerID: peerID}
		}
		return nil, err
	}
	return fromRecord(r)
}

// Save implements Store.
func (s *SQLiteStore) Save(peerID string, keys *PeerKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := toRecord(keys)
	_, err := s.db.Exec(`
		INSERT INTO pairings (peer_id, identifier, secret_key, public_key, device_public_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			identifier = excluded.identifier,
			secret_key = excluded.secret_key,
			public_key = excluded.public_key,
			device_public_key = excluded.device_public_key`,
		peerID, r.Identifier, r.SecretKey, r.PublicKey, r.DevicePublicKey)
	return err
}

// Remove implements Store.
func (s *SQLiteStore) Remove(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM pairings WHERE peer_id = ?`, peerID)
	return err
}

// List implements Store.
func (s *SQLiteStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT peer_id FROM pairings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
