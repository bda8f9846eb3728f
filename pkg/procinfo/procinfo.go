// Package procinfo maps process ids to application identity, caching the
// answers because the engine asks on every armed scroll.
package procinfo

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrUnsupported is returned by platforms without a process lookup.
var ErrUnsupported = errors.New("process lookup unsupported on this platform")

// ErrNoProcess reports that no process has the requested id.
var ErrNoProcess = errors.New("no such process")

// Info describes one running process.
type Info struct {
	PID      int32  `json:"pid"`
	BundleID string `json:"bundleId,omitempty"`
	Name     string `json:"name,omitempty"`
}

// LookupFunc resolves a pid directly against the system.
type LookupFunc func(pid int32) (Info, error)

const (
	DefaultSize = 64
	DefaultTTL  = 30 * time.Second
)

// Options configures a Resolver. Zero fields take defaults.
type Options struct {
	Size   int
	TTL    time.Duration
	Lookup LookupFunc
}

type entry struct {
	info Info
	err  error
}

// Resolver caches lookups, negative answers included, for TTL. Process ids
// are reused by the system, so entries must not live much longer than an
// application launch.
type Resolver struct {
	lookup LookupFunc
	cache  *expirable.LRU[int32, entry]
}

// New returns a resolver. A nil Lookup uses the platform implementation.
func New(opts Options) *Resolver {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Lookup == nil {
		opts.Lookup = lookupPlatform
	}
	return &Resolver{
		lookup: opts.Lookup,
		cache:  expirable.NewLRU[int32, entry](opts.Size, nil, opts.TTL),
	}
}

// Info returns what is known about pid.
func (r *Resolver) Info(pid int32) (Info, error) {
	if pid <= 0 {
		return Info{PID: pid}, ErrNoProcess
	}
	if e, ok := r.cache.Get(pid); ok {
		return e.info, e.err
	}
	info, err := r.lookup(pid)
	info.PID = pid
	r.cache.Add(pid, entry{info: info, err: err})
	return info, err
}

// BundleID returns the bundle identifier of the application owning pid.
func (r *Resolver) BundleID(pid int32) (string, bool) {
	info, err := r.Info(pid)
	if err != nil || info.BundleID == "" {
		return "", false
	}
	return info.BundleID, true
}

// Forget drops every cached answer.
func (r *Resolver) Forget() {
	r.cache.Purge()
}

// Len reports the number of cached answers.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
