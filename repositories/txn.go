package repositories

import "github.com/dgraph-io/badger/v4"

// updateWithRetry runs fn in a read-modify-write transaction, retrying
// when badger's optimistic concurrency control aborts it. Callers race on
// single keys, so the retry converges quickly; fn must be idempotent.
func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for {
		err := db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}
