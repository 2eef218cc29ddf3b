package impersonation

import (
	"encoding/json"
	"errors"
	"sync"
)

// BackupKey is the single fixed key the serialized backup lives under.
// Absence of this key is the authoritative "not impersonating" signal.
const BackupKey = "gestaorh.impersonation_backup"

var ErrNoBackup = errors.New("impersonation: no backup present")

// Backup is the acting principal's full credential pair, held for the
// exact duration of an impersonation episode.
type Backup struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Marshal serializes the backup for storage.
func (b Backup) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBackup restores a serialized backup byte-for-byte.
func UnmarshalBackup(data []byte) (Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return Backup{}, err
	}
	return b, nil
}

// BackupStore is ephemeral keyed storage for the serialized backup —
// the analogue of browser session storage, never the durable session
// store.
type BackupStore interface {
	Save(b Backup) error
	// Take reads and deletes the backup in one step; it can succeed at
	// most once per Save.
	Take() (Backup, error)
	Exists() bool
	Clear()
}

var _ BackupStore = (*MemoryBackupStore)(nil)

// MemoryBackupStore keeps the serialized backup in process memory.
type MemoryBackupStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryBackupStore() *MemoryBackupStore {
	return &MemoryBackupStore{data: make(map[string][]byte)}
}

func (s *MemoryBackupStore) Save(b Backup) error {
	raw, err := b.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[BackupKey] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryBackupStore) Take() (Backup, error) {
	s.mu.Lock()
	raw, ok := s.data[BackupKey]
	delete(s.data, BackupKey)
	s.mu.Unlock()
	if !ok {
		return Backup{}, ErrNoBackup
	}
	return UnmarshalBackup(raw)
}

func (s *MemoryBackupStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[BackupKey]
	return ok
}

func (s *MemoryBackupStore) Clear() {
	s.mu.Lock()
	delete(s.data, BackupKey)
	s.mu.Unlock()
}
