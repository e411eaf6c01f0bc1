package inode

import (
	"encoding/binary"
	"errors"
	"sync"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"

	"github.com/csweichel/notefs/pkg/store"
)

// Root is the inode of the tree root.
const Root uint64 = 1

// Hash maps a note id to its preferred inode number. The root note always
// maps to Root, no other id ever maps to 0 or 1.
func Hash(noteID string) uint64 {
	if noteID == store.RootID {
		return Root
	}

	var h uint64
	for i := 0; i < len(noteID); i++ {
		h = h*31 + uint64(noteID[i])
	}
	if h <= Root {
		h += 2
	}
	return h
}

// Index remembers which inode was handed out for which note, in both
// directions. Distinct notes whose hashes collide get distinct inodes: the
// first note keeps the hash, later ones probe linearly. Probed assignments
// survive Reset.
//
// Index is safe for concurrent use.
type Index struct {
	db *badger.DB
	mu sync.Mutex
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(log.WithField("component", "inode-index")).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close releases the index.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Assign returns the inode of a note, allocating one if the note was not
// seen before.
func (idx *Index) Assign(noteID string) (uint64, error) {
	if noteID == store.RootID {
		return Root, nil
	}

	ino, ok, err := idx.lookupNote(noteID)
	if err != nil || ok {
		return ino, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	err = idx.db.Update(func(txn *badger.Txn) error {
		// someone might have beaten us to it while we waited for the lock
		item, err := txn.Get(noteKey(noteID))
		if err == nil {
			return item.Value(func(val []byte) error {
				ino = binary.BigEndian.Uint64(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		ino = Hash(noteID)
		for {
			item, err := txn.Get(inodeKey(ino))
			if errors.Is(err, badger.ErrKeyNotFound) {
				break
			}
			if err != nil {
				return err
			}

			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			log.WithField("noteID", noteID).WithField("owner", string(owner)).WithField("inode", ino).Warn("inode collision")
			ino = next(ino)
		}

		var val [8]byte
		binary.BigEndian.PutUint64(val[:], ino)
		if err := txn.Set(noteKey(noteID), val[:]); err != nil {
			return err
		}
		return txn.Set(inodeKey(ino), []byte(noteID))
	})
	if err != nil {
		return 0, err
	}
	return ino, nil
}

// NoteID returns the note an inode was assigned to.
func (idx *Index) NoteID(ino uint64) (noteID string, ok bool, err error) {
	if ino == Root {
		return store.RootID, true, nil
	}

	err = idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(inodeKey(ino))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			noteID, ok = string(val), true
			return nil
		})
	})
	return
}

// Reset forgets all assignments except the probed ones. A note that lost a
// collision keeps its inode, so the order in which notes are seen again
// cannot swap it with the note it collided with.
func (idx *Index) Reset() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	probed := make(map[string]uint64)
	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("n/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			noteID := string(item.Key()[len(opts.Prefix):])
			err := item.Value(func(val []byte) error {
				if ino := binary.BigEndian.Uint64(val); ino != Hash(noteID) {
					probed[noteID] = ino
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := idx.db.DropAll(); err != nil {
		return err
	}
	if len(probed) == 0 {
		return nil
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		for noteID, ino := range probed {
			var val [8]byte
			binary.BigEndian.PutUint64(val[:], ino)
			if err := txn.Set(noteKey(noteID), val[:]); err != nil {
				return err
			}
			if err := txn.Set(inodeKey(ino), []byte(noteID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (idx *Index) lookupNote(noteID string) (ino uint64, ok bool, err error) {
	err = idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(noteKey(noteID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ino, ok = binary.BigEndian.Uint64(val), true
			return nil
		})
	})
	return
}

func next(ino uint64) uint64 {
	ino++
	if ino <= Root {
		ino = Root + 1
	}
	return ino
}

func noteKey(noteID string) []byte {
	return append([]byte("n/"), noteID...)
}

func inodeKey(ino uint64) []byte {
	k := make([]byte, 2, 10)
	copy(k, "i/")
	return binary.BigEndian.AppendUint64(k, ino)
}
