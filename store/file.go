package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/pkg/errors"
)

// FileStore keeps one file per snapshot in directory Dir.
//
type FileStore struct {
	Dir string
}

func (f *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Errorf("invalid snapshot name %q", name)
	}
	return filepath.Join(f.Dir, name+".bson"), nil
}

// Load reads the snapshot name.
//
func (f *FileStore) Load(name string) (*grenade.Snapshot, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	s, err := UnmarshalSnapshot(b)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return s, nil
}

// Save writes s, replacing any previous snapshot of the same name. The file
// is replaced atomically.
//
func (f *FileStore) Save(s *grenade.Snapshot) error {
	p, err := f.path(s.Name)
	if err != nil {
		return err
	}
	b, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, "."+s.Name+".*")
	if err != nil {
		return errors.Wrapf(err, "save %s", s.Name)
	}
	if _, err = tmp.Write(b); err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err == nil {
		err = os.Rename(tmp.Name(), p)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "save %s", s.Name)
	}
	return nil
}

// SaveAll saves all snapshots in order. It stops at the first error.
//
func (f *FileStore) SaveAll(snaps []*grenade.Snapshot) error {
	for _, s := range snaps {
		if err := f.Save(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileStore) files() ([]string, error) {
	ps, err := filepath.Glob(filepath.Join(f.Dir, "*.bson"))
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	sort.Strings(ps)
	return ps, nil
}

// Names returns the names of all stored snapshots in ascending order.
//
func (f *FileStore) Names() ([]string, error) {
	ps, err := f.files()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = strings.TrimSuffix(filepath.Base(p), ".bson")
	}
	return names, nil
}

// Drop removes all snapshots.
//
func (f *FileStore) Drop() error {
	ps, err := f.files()
	if err != nil {
		return err
	}
	for _, p := range ps {
		if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "drop snapshots")
		}
	}
	return nil
}
