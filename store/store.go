// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package store persists routing snapshots and reuses them for networks
// which only differ in their weights.
//
// Snapshots are encoded as BSON documents, either in files of a directory
// (FileStore) or in a MongoDB collection (MongoStore).
//
package store

import (
	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

// ErrNotFound is the cause of errors returned by Load for unknown names.
//
var ErrNotFound = errors.New("snapshot not found")

// Store loads and saves snapshots by name.
//
type Store interface {
	Load(name string) (*grenade.Snapshot, error)
	Save(s *grenade.Snapshot) error
}

// Catalog is a Store which also lists, bulk-saves and removes its snapshots.
// FileStore and MongoStore are Catalogs.
//
type Catalog interface {
	Store
	SaveAll(snaps []*grenade.Snapshot) error
	Names() ([]string, error)
	Drop() error
}

var (
	_ Catalog = (*FileStore)(nil)
	_ Catalog = (*MongoStore)(nil)
)

// MarshalSnapshot returns the BSON encoding of s.
//
func MarshalSnapshot(s *grenade.Snapshot) ([]byte, error) {
	if s.Name == "" {
		return nil, errors.New("snapshot without name")
	}
	b, err := bson.Marshal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %q", s.Name)
	}
	return b, nil
}

// UnmarshalSnapshot decodes a BSON encoded snapshot and checks its format
// version.
//
func UnmarshalSnapshot(b []byte) (*grenade.Snapshot, error) {
	s := new(grenade.Snapshot)
	if err := bson.Unmarshal(b, s); err != nil {
		return nil, errors.Wrap(err, "malformed snapshot")
	}
	if err := s.CheckFormat(); err != nil {
		return nil, err
	}
	return s, nil
}
