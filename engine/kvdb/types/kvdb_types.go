// Package kvdbtypes declares the contract between the KVDB routine and its backends.
package kvdbtypes

// KVDBEngine is a KVDB backend. Calls come from the single KVDB routine only.
type KVDBEngine interface {
	// Get returns "" for missing keys
	Get(key string) (val string, err error)
	Put(key string, val string) error
	Delete(key string) error
	// Find iterates the keys in [beginKey, endKey) in ascending order
	Find(beginKey string, endKey string) (Iterator, error)
	Close()
	// IsConnectionError reports errors after which the KVDB reconnects the backend
	IsConnectionError(err error) bool
}

// Iterator yields KVItems until it returns io.EOF
type Iterator interface {
	Next() (KVItem, error)
}

// KVItem is one key with its value
type KVItem struct {
	Key string
	Val string
}
