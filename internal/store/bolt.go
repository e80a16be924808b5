package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/loginfront/internal/credential"
)

// BoltBackendName is the store.backend value selecting the local file store.
const BoltBackendName = "bolt"

const (
	boltFileName    = "secrets.db"
	currentKey      = "current"
	boltOpenTimeout = 5 * time.Second
)

// Record is one stored version.
type Record struct {
	Version   int       `json:"version"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

// BoltStore keeps every secret version in a local bbolt file, one bucket per
// location. Intended for development where no Vault is available.
type BoltStore struct {
	db     *bbolt.DB
	loc    Location
	logger *zap.Logger
}

// OpenBoltStore opens (or creates) the store file inside dataDir.
func OpenBoltStore(dataDir string, loc Location, logger *zap.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = zap.L()
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, boltFileName)
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", dbPath, err)
	}

	s := &BoltStore{
		db:     db,
		loc:    loc.WithDefaults(),
		logger: logger.Named("bolt-store"),
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucketName())
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return s, nil
}

// Name implements SecretStore.
func (s *BoltStore) Name() string {
	return BoltBackendName
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Persist implements SecretStore. Each write appends a new version.
func (s *BoltStore) Persist(ctx context.Context, secret credential.Secret) (*WriteResult, error) {
	if err := validateSecret(secret); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, credential.NewError(credential.KindStoreUnavailable, OpPersist, err)
	}

	rec := Record{Key: s.loc.Key, Value: secret.Value, WrittenAt: time.Now().UTC()}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucketName())
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucketName())
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		rec.Version = int(seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := versionKey(seq)
		if err := bucket.Put(key, data); err != nil {
			return err
		}
		return bucket.Put([]byte(currentKey), key)
	})
	if err != nil {
		return nil, credential.NewError(credential.KindStoreUnavailable, OpPersist, err)
	}

	s.logger.Debug("Secret written to bolt store",
		zap.String("path", s.loc.String()),
		zap.Int("version", rec.Version))

	return &WriteResult{
		Backend:   BoltBackendName,
		Path:      s.loc.String(),
		Version:   rec.Version,
		WrittenAt: rec.WrittenAt,
	}, nil
}

// Latest returns the newest stored version, or nil when nothing was written.
func (s *BoltStore) Latest() (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucketName())
		if bucket == nil {
			return nil
		}
		key := bucket.Get([]byte(currentKey))
		if key == nil {
			return nil
		}
		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("current version %d missing", binary.BigEndian.Uint64(key))
		}
		rec = &Record{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// Versions returns how many versions have been written.
func (s *BoltStore) Versions() (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucketName())
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			if len(k) == 8 {
				count++
			}
			return nil
		})
	})
	return count, err
}

// Ping reports whether the database is usable.
func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.bucketName()) == nil {
			return fmt.Errorf("bucket %s not found", s.bucketName())
		}
		return nil
	})
}

func (s *BoltStore) bucketName() []byte {
	return []byte(s.loc.Mount + "/" + s.loc.Path)
}

func versionKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
