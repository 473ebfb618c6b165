package store

import (
	"sync"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/pkg/errors"
	mgo "gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// MaxMongoWorkers bounds the number of sessions SaveAll uses.
//
const MaxMongoWorkers = 8

// MongoStore keeps snapshots in a MongoDB collection, one document per
// snapshot with the snapshot name as _id.
//
type MongoStore struct {
	session *mgo.Session
	db, c   string
}

// NewMongoStore returns a store using collection c of database db. It works
// on a copy of s; Close releases it.
//
func NewMongoStore(s *mgo.Session, db, c string) *MongoStore {
	return &MongoStore{session: s.Copy(), db: db, c: c}
}

// Dial connects to the MongoDB server at url.
//
func Dial(url, db, c string) (*MongoStore, error) {
	s, err := mgo.Dial(url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	defer s.Close()
	return NewMongoStore(s, db, c), nil
}

// Close releases the session of m.
//
func (m *MongoStore) Close() { m.session.Close() }

func (m *MongoStore) collection(s *mgo.Session) *mgo.Collection {
	return s.DB(m.db).C(m.c)
}

// Load returns the snapshot name.
//
func (m *MongoStore) Load(name string) (*grenade.Snapshot, error) {
	s := m.session.Copy()
	defer s.Close()

	var raw bson.Raw
	err := m.collection(s).FindId(name).One(&raw)
	if err == mgo.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	snap, err := UnmarshalSnapshot(raw.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return snap, nil
}

// Save inserts s or replaces the snapshot of the same name.
//
func (m *MongoStore) Save(snap *grenade.Snapshot) error {
	s := m.session.Copy()
	defer s.Close()
	return m.save(s, snap)
}

func (m *MongoStore) save(s *mgo.Session, snap *grenade.Snapshot) error {
	if snap.Name == "" {
		return errors.New("snapshot without name")
	}
	if _, err := m.collection(s).UpsertId(snap.Name, snap); err != nil {
		return errors.Wrapf(err, "save %s", snap.Name)
	}
	return nil
}

// SaveAll saves all snapshots with up to MaxMongoWorkers sessions. It
// returns the first error encountered.
//
func (m *MongoStore) SaveAll(snaps []*grenade.Snapshot) error {
	jobs := make(chan *grenade.Snapshot)
	errs := make(chan error, len(snaps))
	var wg sync.WaitGroup
	n := MaxMongoWorkers
	if len(snaps) < n {
		n = len(snaps)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.session.Copy()
			defer s.Close()
			for snap := range jobs {
				if err := m.save(s, snap); err != nil {
					errs <- err
				}
			}
		}()
	}
	for _, snap := range snaps {
		jobs <- snap
	}
	close(jobs)
	wg.Wait()
	close(errs)
	return <-errs
}

// Names returns the names of all stored snapshots in ascending order.
//
func (m *MongoStore) Names() ([]string, error) {
	s := m.session.Copy()
	defer s.Close()

	var docs []struct {
		Name string `bson:"_id"`
	}
	if err := m.collection(s).Find(nil).Select(bson.M{"_id": 1}).Sort("_id").All(&docs); err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names, nil
}

// Drop removes all snapshots.
//
func (m *MongoStore) Drop() error {
	s := m.session.Copy()
	defer s.Close()
	err := m.collection(s).DropCollection()
	if err != nil && err.Error() != "ns not found" {
		return errors.Wrap(err, "drop snapshots")
	}
	return nil
}
