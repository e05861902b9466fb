package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemapper/pkg/log"
	"github.com/Sriram-PR/sitemapper/pkg/models"
	"github.com/Sriram-PR/sitemapper/pkg/utils"
)

const urlSetDBDir = "urlset_db" // Subdirectory name within stateDir for Badger DB files

// BloomOptions sizes the per-set negative-lookup filter
type BloomOptions struct {
	Capacity          uint    // Expected number of members
	FalsePositiveRate float64 // Target false positive rate
}

// BadgerStore implements SetStore using BadgerDB, one key prefix per set.
// State is wiped on open; sets never outlive a run.
type BadgerStore struct {
	db    *badger.DB
	log   *logrus.Entry
	bloom BloomOptions

	mu   sync.Mutex
	sets map[string]*badgerSet
}

// NewBadgerStore initializes and returns a new BadgerStore.
// An empty stateDir opens Badger in in-memory mode.
func NewBadgerStore(ctx context.Context, stateDir, siteDomain string, bloomOpts BloomOptions, logger *logrus.Entry) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bloomOpts.Capacity == 0 {
		bloomOpts.Capacity = 100000
	}
	if bloomOpts.FalsePositiveRate <= 0 || bloomOpts.FalsePositiveRate >= 1 {
		bloomOpts.FalsePositiveRate = 0.001
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	var opts badger.Options

	if stateDir == "" {
		logger.Info("Initializing in-memory URL set database")
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Create a unique directory path for this site's DB within the base state directory
		dbPath := filepath.Join(stateDir, utils.SanitizeFilename(siteDomain)+"_"+urlSetDBDir)

		// Runs are not resumable, so any previous state is stale
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
		if err := os.MkdirAll(dbPath, 0755); err != nil {
			return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
		}
		logger.Infof("Initializing URL set database at: %s", dbPath)
		opts = badger.DefaultOptions(dbPath)
	}

	opts = opts.
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database: %w", utils.ErrDatabase, err)
	}

	logger.Info("URL set database initialized successfully.")
	return &BadgerStore{
		db:    db,
		log:   logger,
		bloom: bloomOpts,
		sets:  make(map[string]*badgerSet),
	}, nil
}

// Set implements the SetStore interface
func (s *BadgerStore) Set(name string) (URLSet, error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, fmt.Errorf("%w: url set database not initialized", utils.ErrDatabase)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[name]
	if !ok {
		set = &badgerSet{
			store:  s,
			prefix: []byte(name + ":"),
			filter: bloom.NewWithEstimates(s.bloom.Capacity, s.bloom.FalsePositiveRate),
		}
		s.sets[name] = set
	}
	return set, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// RunGC runs BadgerDB's garbage collection periodically until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the SetStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing URL set DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing URL set DB: %v", err)
			return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
		}
		return nil
	}
	return nil
}

// badgerSet is one key prefix of a BadgerStore with a Bloom pre-filter.
// A negative filter test proves absence without touching the DB.
type badgerSet struct {
	store  *BadgerStore
	prefix []byte
	count  atomic.Int64 // Cached member count for O(1) Len

	filterMu sync.Mutex
	filter   *bloom.BloomFilter
}

func (b *badgerSet) key(url string) []byte {
	k := make([]byte, 0, len(b.prefix)+len(url))
	k = append(k, b.prefix...)
	return append(k, url...)
}

func (b *badgerSet) mightContain(url string) bool {
	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	return b.filter.TestString(url)
}

func (b *badgerSet) remember(url string) {
	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	b.filter.AddString(url)
}

// Add implements the URLSet interface
func (b *badgerSet) Add(url string, entry models.URLEntry) (bool, error) {
	key := b.key(url)
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		return false, fmt.Errorf("%w: failed to marshal URLEntry for key '%s': %w", utils.ErrParsing, string(key), errJSON)
	}

	added := false
	err := b.store.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, entryBytes)); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet // nil if the key already exists
	})
	if err != nil {
		b.store.log.WithField("key", string(key)).Errorf("DB Update error in Add: %v", err)
		return false, fmt.Errorf("%w: adding key '%s': %w", utils.ErrDatabase, string(key), err)
	}

	// The filter may already hold url if it was seen before; adding again is harmless
	b.remember(url)
	if added {
		b.count.Add(1)
	}
	return added, nil
}

// Contains implements the URLSet interface
func (b *badgerSet) Contains(url string) (bool, error) {
	if !b.mightContain(url) {
		return false, nil
	}
	key := b.key(url)
	found := false
	err := b.store.db.View(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return found, nil
}

// Len implements the URLSet interface
func (b *badgerSet) Len() int {
	return int(b.count.Load())
}

// Members implements the URLSet interface. Keys come back in byte order.
func (b *badgerSet) Members() ([]string, error) {
	members := make([]string, 0, b.Len())
	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			k := it.Item().Key()
			members = append(members, string(k[len(b.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterating set '%s': %w", utils.ErrDatabase, string(b.prefix), err)
	}
	return members, nil
}
