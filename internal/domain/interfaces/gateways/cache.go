package gateways

// Cache is a keyed store with a freshness window. Entries older than the
// window are not returned by Get but stay available to GetStale until the
// capacity bound evicts them.
type Cache[V any] interface {
	Get(key string) (V, bool)
	GetStale(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	Len() int
	Purge()
}
