package valkey

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client, f Flavor) *Store {
	if f == "" {
		f = FlavorValkey
	}
	return &Store{client: c, flavor: f, loc: location(f, []string{"test:6379"}, 0)}
}
