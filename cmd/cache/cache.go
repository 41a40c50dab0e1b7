// Package cache holds rendered responses keyed by request URI until they expire or
// a write clears them.
package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Entry struct {
	Status int
	Header http.Header
	Body   []byte
}

type PageCache interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Clear()
}

// LRU is a size-bounded PageCache whose entries expire after a fixed TTL.
type LRU struct {
	entries *expirable.LRU[string, Entry]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{entries: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (c *LRU) Get(key string) (Entry, bool) {
	return c.entries.Get(key)
}

func (c *LRU) Set(key string, entry Entry) {
	c.entries.Add(key, entry)
}

func (c *LRU) Clear() {
	c.entries.Purge()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(string) (Entry, bool) { return Entry{}, false }
func (Nop) Set(string, Entry)        {}
func (Nop) Clear()                   {}

// New picks the LRU cache, or Nop when ttl disables caching.
func New(size int, ttl time.Duration) PageCache {
	if ttl <= 0 {
		return Nop{}
	}
	return NewLRU(size, ttl)
}

// recorder tees the response to the client. Headers set by the wrapped handler are
// kept apart from those outer middleware already put on w, so only the handler's
// own headers end up in the cache.
type recorder struct {
	http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status != 0 {
		return
	}
	r.status = status
	dst := r.ResponseWriter.Header()
	for name, values := range r.header {
		dst[name] = values
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Page serves GET requests from c when possible and stores successful responses.
func Page(c PageCache, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next(w, r)
			return
		}

		key := r.URL.RequestURI()
		if entry, ok := c.Get(key); ok {
			for name, values := range entry.Header {
				w.Header()[name] = values
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.Status)
			w.Write(entry.Body)
			return
		}

		rec := &recorder{ResponseWriter: w, header: http.Header{}}
		next(rec, r)
		if rec.status == 0 {
			rec.WriteHeader(http.StatusOK)
			return
		}

		if rec.status == http.StatusOK {
			c.Set(key, Entry{
				Status: rec.status,
				Header: rec.header.Clone(),
				Body:   bytes.Clone(rec.body.Bytes()),
			})
		}
	}
}
