package keystore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// fileRecord is the on-disk base64 representation of a PeerKeys, per
// spec.md 6: a single JSON object keyed by peer id.
type fileRecord struct {
	Identifier      string `json:"identifier"`
	SecretKey       string `json:"secret_key"`
	PublicKey       string `json:"public_key"`
	DevicePublicKey string `json:"device_public_key"`
}

// FileStore is a process-global-safe Store backed by a single JSON file,
// written atomically via write-temp-then-rename, per spec.md 5.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (without yet reading) a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) readAll() (map[string]fileRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]fileRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]fileRecord{}, nil
	}
	out := make(map[string]fileRecord)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) writeAll(records map[string]fileRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".keystore-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func toRecord(k *PeerKeys) fileRecord {
	return fileRecord{
		Identifier:      k.Identifier,
		SecretKey:       base64.StdEncoding.EncodeToString(k.SecretKey[:]),
		PublicKey:       base64.StdEncoding.EncodeToString(k.PublicKey[:]),
		DevicePublicKey: base64.StdEncoding.EncodeToString(k.DevicePublicKey[:]),
	}
}

func fromRecord(r fileRecord) (*PeerKeys, error) {
	k := &PeerKeys{Identifier: r.Identifier}
	if err := decode32(r.SecretKey, k.SecretKey[:]); err != nil {
		return nil, err
	}
	if err := decode32(r.PublicKey, k.PublicKey[:]); err != nil {
		return nil, err
	}
	if err := decode32(r.DevicePublicKey, k.DevicePublicKey[:]); err != nil {
		return nil, err
	}
	return k, nil
}

func decode32(s string, out []byte) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	copy(out, b)
	return nil
}

// Load implements Store.
func (s *FileStore) Load(peerID string) (*PeerKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	r, ok := records[peerID]
	if !ok {
		return nil, ErrNotFound{PeerID: peerID}
	}
	return fromRecord(r)
}

// Save implements Store.
func (s *FileStore) Save(peerID string, keys *PeerKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll()
	if err != nil {
		return err
	}
	records[peerID] = toRecord(keys)
	return s.writeAll(records)
}

// Remove implements Store.
func (s *FileStore) Remove(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll()
	if err != nil {
		return err
	}
	delete(records, peerID)
	return s.writeAll(records)
}

// List implements Store.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for id := range records {
		out = append(out, id)
	}
	return out, nil
}
