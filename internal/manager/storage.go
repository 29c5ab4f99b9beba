package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"gopkg.in/yaml.v3"
)

// Storage persists world records keyed by world name.
type Storage interface {
	LoadAll() ([]Record, error)
	Save(records ...Record) error
	Delete(name string) error
	Close() error
}

// YAMLStorage keeps all records in a single worlds.yml file below a
// top-level "worlds" key. Every change rewrites the file.
type YAMLStorage struct {
	path string
	mu   sync.Mutex
	docs map[string]document
}

func NewYAMLStorage(path string) (*YAMLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	s := &YAMLStorage{path: path, docs: make(map[string]document)}
	if err := s.read(); err != nil {
		return nil, fmt.Errorf("load existing data: %w", err)
	}
	return s, nil
}

func (s *YAMLStorage) read() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file struct {
		Worlds map[string]yaml.Node `yaml:"worlds"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for name, node := range file.Worlds {
		doc := legacyDocument()
		if err := node.Decode(&doc); err != nil {
			return fmt.Errorf("parse world %s: %w", name, err)
		}
		s.docs[name] = doc
	}
	return nil
}

func (s *YAMLStorage) LoadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.docs))
	for name, doc := range s.docs {
		records = append(records, decodeRecord(name, doc))
	}
	slices.SortFunc(records, func(a, b Record) int { return compareNames(a.Name, b.Name) })
	return records, nil
}

func (s *YAMLStorage) Save(records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.docs[r.Name] = encodeRecord(r)
	}
	return s.persist()
}

func (s *YAMLStorage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[name]; !ok {
		return nil
	}
	delete(s.docs, name)
	return s.persist()
}

// persist writes to a temporary file first so a crash never leaves a
// truncated worlds.yml behind.
func (s *YAMLStorage) persist() error {
	data, err := yaml.Marshal(map[string]any{"worlds": s.docs})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *YAMLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

var worldKeyPrefix = []byte("world/")

// LevelDBStorage stores one YAML document per world in a LevelDB database.
type LevelDBStorage struct {
	db *leveldb.DB
}

func NewLevelDBStorage(path string) (*LevelDBStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open world database: %w", err)
	}
	return &LevelDBStorage{db: db}, nil
}

func worldKey(name string) []byte {
	return append(slices.Clone(worldKeyPrefix), name...)
}

func (s *LevelDBStorage) LoadAll() ([]Record, error) {
	iter := s.db.NewIterator(util.BytesPrefix(worldKeyPrefix), nil)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		name := string(iter.Key()[len(worldKeyPrefix):])
		r, err := unmarshalRecord(name, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("parse world %s: %w", name, err)
		}
		records = append(records, r)
	}
	return records, iter.Error()
}

func (s *LevelDBStorage) Save(records ...Record) error {
	batch := new(leveldb.Batch)
	for _, r := range records {
		data, err := marshalRecord(r)
		if err != nil {
			return fmt.Errorf("encode world %s: %w", r.Name, err)
		}
		batch.Put(worldKey(r.Name), data)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStorage) Delete(name string) error {
	return s.db.Delete(worldKey(name), nil)
}

func (s *LevelDBStorage) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}
	return nil
}

type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]Record)}
}

func (s *MemoryStorage) LoadAll() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b Record) int { return compareNames(a.Name, b.Name) })
	return records, nil
}

func (s *MemoryStorage) Save(records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.records[r.Name] = r
	}
	return nil
}

func (s *MemoryStorage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, name)
	return nil
}

func (s *MemoryStorage) Close() error { return nil }

// Get returns a stored record, for inspection in tests and tooling.
func (s *MemoryStorage) Get(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	return r, ok
}
