package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	namePrefix = []byte("name/")
	idPrefix   = []byte("id/")
)

// Identities remembers the last name every player joined with, so offline
// players can still be looked up by name or id.
type Identities struct {
	db *leveldb.DB
}

func NewIdentities(path string) (*Identities, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open identity database: %w", err)
	}
	return &Identities{db: db}, nil
}

func nameKey(name string) []byte {
	return append(append([]byte(nil), namePrefix...), strings.ToLower(name)...)
}

func idKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), idPrefix...), id.String()...)
}

// Remember maps name to id. A previous name of the same player is released.
func (s *Identities) Remember(id uuid.UUID, name string) error {
	batch := new(leveldb.Batch)
	if old, ok := s.Name(id); ok && !strings.EqualFold(old, name) {
		if owner, ok := s.Lookup(old); ok && owner == id {
			batch.Delete(nameKey(old))
		}
	}
	batch.Put(nameKey(name), []byte(id.String()))
	batch.Put(idKey(id), []byte(name))
	return s.db.Write(batch, nil)
}

// Lookup finds the player last seen under name, ignoring case.
func (s *Identities) Lookup(name string) (uuid.UUID, bool) {
	v, err := s.db.Get(nameKey(name), nil)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.ParseBytes(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Identities) Name(id uuid.UUID) (string, bool) {
	v, err := s.db.Get(idKey(id), nil)
	if err != nil {
		return "", false
	}
	return string(v), true
}

func (s *Identities) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}
	return nil
}
