package messages

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	"github.com/pretzelio/pretzel/src/graph"
)

// DiskSpillStore implements the Store interface on top of a Badger database,
// for jobs whose superstep traffic does not fit in memory. All the stores
// created by one DiskStoreFactory share a database handle; each store writes
// under its own generation prefix, so clearing a store is a prefix drop.
type DiskSpillStore struct {
	db       *badger.DB
	resolver PartitionResolver
	prefix   string

	// wl serializes writers. Badger transactions are optimistic; concurrent
	// read-modify-write cycles on the same vertex key would abort instead of
	// appending.
	wl sync.Mutex

	cl     sync.Mutex
	counts map[graph.PartitionID]int
	total  int
}

func newDiskSpillStore(db *badger.DB, resolver PartitionResolver, gen uint64) *DiskSpillStore {
	return &DiskSpillStore{
		db:       db,
		resolver: resolver,
		prefix:   fmt.Sprintf("%d_", gen),
		counts:   make(map[graph.PartitionID]int),
	}
}

func (s *DiskSpillStore) partitionPrefix(partition graph.PartitionID) string {
	return fmt.Sprintf("%sp%09d_", s.prefix, partition)
}

func (s *DiskSpillStore) messageKey(partition graph.PartitionID, vertexID graph.VertexID) string {
	return fmt.Sprintf("%sp%09d_v_%s", s.prefix, partition, vertexID)
}

// AddMessages implements the Store interface.
func (s *DiskSpillStore) AddMessages(msgs []graph.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	// group by destination vertex to touch each key once
	byVertex := make(map[graph.VertexID][]graph.Message)
	for _, msg := range msgs {
		byVertex[msg.To] = append(byVertex[msg.To], msg)
	}

	s.wl.Lock()
	defer s.wl.Unlock()

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for vertexID, newMsgs := range byVertex {
		key := []byte(s.messageKey(s.resolver(vertexID), vertexID))

		var existing []graph.Message

		item, err := tx.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			existing, err = graph.UnmarshalMessages(val)
			if err != nil {
				return err
			}
		}

		val, err := graph.MarshalMessages(append(existing, newMsgs...))
		if err != nil {
			return err
		}

		if err := tx.Set(key, val); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.cl.Lock()
	for _, msg := range msgs {
		s.counts[s.resolver(msg.To)]++
		s.total++
	}
	s.cl.Unlock()

	return nil
}

// Messages implements the Store interface.
func (s *DiskSpillStore) Messages(vertexID graph.VertexID) ([]graph.Message, error) {
	key := []byte(s.messageKey(s.resolver(vertexID), vertexID))

	var msgs []graph.Message

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		msgs, err = graph.UnmarshalMessages(val)
		return err
	})
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

// VertexIDs implements the Store interface.
func (s *DiskSpillStore) VertexIDs(partition graph.PartitionID) ([]graph.VertexID, error) {
	prefix := []byte(s.partitionPrefix(partition))

	var res []graph.VertexID

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			// strip "<prefix>v_"
			res = append(res, graph.VertexID(key[len(prefix)+2:]))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Partitions implements the Store interface.
func (s *DiskSpillStore) Partitions() ([]graph.PartitionID, error) {
	prefix := []byte(s.prefix)

	seen := make(map[graph.PartitionID]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			// keys look like "<gen>_p%09d_v_<vertex>"
			digits := key[len(s.prefix)+1 : len(s.prefix)+10]
			pid, err := strconv.Atoi(digits)
			if err != nil {
				return err
			}
			seen[graph.PartitionID(pid)] = struct{}{}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]graph.PartitionID, 0, len(seen))
	for pid := range seen {
		res = append(res, pid)
	}

	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res, nil
}

// Count implements the Store interface.
func (s *DiskSpillStore) Count() int {
	s.cl.Lock()
	defer s.cl.Unlock()

	return s.total
}

// ClearPartition implements the Store interface.
func (s *DiskSpillStore) ClearPartition(partition graph.PartitionID) error {
	if err := s.db.DropPrefix([]byte(s.partitionPrefix(partition))); err != nil {
		return err
	}

	s.cl.Lock()
	s.total -= s.counts[partition]
	delete(s.counts, partition)
	s.cl.Unlock()

	return nil
}

// ClearAll implements the Store interface.
func (s *DiskSpillStore) ClearAll() error {
	if err := s.db.DropPrefix([]byte(s.prefix)); err != nil {
		return err
	}

	s.cl.Lock()
	s.counts = make(map[graph.PartitionID]int)
	s.total = 0
	s.cl.Unlock()

	return nil
}

// DiskStoreFactory creates DiskSpillStores backed by a single Badger
// database. Message stores do not outlive the process; opening the factory
// wipes whatever a previous run left in the database directory.
type DiskStoreFactory struct {
	db       *badger.DB
	resolver PartitionResolver
	gen      uint64
}

// NewDiskStoreFactory opens, or creates, the Badger database at path.
func NewDiskStoreFactory(path string, resolver PartitionResolver) (*DiskStoreFactory, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := db.DropAll(); err != nil {
		db.Close()
		return nil, err
	}

	return &DiskStoreFactory{
		db:       db,
		resolver: resolver,
	}, nil
}

// NewStore implements the StoreFactory interface.
func (f *DiskStoreFactory) NewStore() (Store, error) {
	gen := atomic.AddUint64(&f.gen, 1)
	return newDiskSpillStore(f.db, f.resolver, gen), nil
}

// Close implements the StoreFactory interface. It closes the shared database
// handle; stores created by this factory are unusable afterwards.
func (f *DiskStoreFactory) Close() error {
	return f.db.Close()
}
