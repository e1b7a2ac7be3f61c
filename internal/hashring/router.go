// Package hashring distributes cache keys over a fixed list of hosts.
package hashring

import (
	"crypto/md5"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

// pointsPerHost is the number of ring points given to a host of weight 1.
const pointsPerHost = 160

type point struct {
	value uint32
	host  int
}

// Router maps keys to hosts. The host list is fixed at construction; only the
// key hash algorithm may change afterwards.
//
// Router implements memcache.ServerSelector.
type Router struct {
	hosts        []Host
	addrs        []net.Addr
	distribution Distribution
	ring         []point

	mu        sync.RWMutex
	algorithm Algorithm
}

// New builds a Router from a connection string plus any extra hosts.
// Errors are configuration errors and should stop startup.
func New(conn string, hosts []Host) (*Router, error) {
	opts, err := Parse(conn)
	if err != nil {
		return nil, err
	}
	opts.Hosts = append(opts.Hosts, hosts...)
	return NewFromOptions(opts)
}

func NewFromOptions(opts Options) (*Router, error) {
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", ErrInvalidOptions)
	}

	r := &Router{
		hosts:        make([]Host, len(opts.Hosts)),
		addrs:        make([]net.Addr, len(opts.Hosts)),
		distribution: opts.Distribution,
		algorithm:    opts.Hash,
	}
	copy(r.hosts, opts.Hosts)

	seen := make(map[string]bool, len(r.hosts))
	for i, h := range r.hosts {
		if h.Weight <= 0 {
			r.hosts[i].Weight = 1
		}
		if seen[h.String()] {
			return nil, fmt.Errorf("%w: duplicate server %s", ErrInvalidOptions, h)
		}
		seen[h.String()] = true
		r.addrs[i] = hostAddr(h.String())
	}

	if r.distribution == DistributionConsistent {
		r.buildRing()
	}
	return r, nil
}

// buildRing places md5-derived points for every host, four per digest.
func (r *Router) buildRing() {
	for i, h := range r.hosts {
		n := pointsPerHost * h.Weight / 4
		for k := 0; k < n; k++ {
			digest := md5.Sum([]byte(h.String() + "-" + strconv.Itoa(k)))
			for j := 0; j < 4; j++ {
				r.ring = append(r.ring, point{value: md5Point(digest, j), host: i})
			}
		}
	}
	sort.Slice(r.ring, func(a, b int) bool {
		if r.ring[a].value == r.ring[b].value {
			return r.ring[a].host < r.ring[b].host
		}
		return r.ring[a].value < r.ring[b].value
	})
}

func (r *Router) HostCount() int {
	return len(r.hosts)
}

// Hosts returns a copy of the configured host list.
func (r *Router) Hosts() []Host {
	out := make([]Host, len(r.hosts))
	copy(out, r.hosts)
	return out
}

func (r *Router) Distribution() Distribution {
	return r.distribution
}

func (r *Router) SetHashType(a Algorithm) {
	r.mu.Lock()
	r.algorithm = a
	r.mu.Unlock()
}

func (r *Router) HashType() Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.algorithm
}

// Hash returns the raw hash of key under the current algorithm.
func (r *Router) Hash(key string) uint32 {
	return r.HashType().sum(key)
}

// Host returns the host for key, advanced by offset positions in the host
// list. Offsets 0..HostCount()-1 visit every host exactly once.
func (r *Router) Host(key string, offset uint) Host {
	return r.hosts[r.index(key, offset)]
}

func (r *Router) index(key string, offset uint) int {
	a := r.HashType()
	n := uint(len(r.hosts))
	return int((uint(r.primary(a, a.sum(key))) + offset%n) % n)
}

func (r *Router) primary(a Algorithm, h uint32) int {
	if r.distribution == DistributionModula {
		return int(h % uint32(len(r.hosts)))
	}
	h = a.ringPosition(h)
	i := sort.Search(len(r.ring), func(i int) bool {
		return r.ring[i].value >= h
	})
	if i == len(r.ring) {
		i = 0
	}
	return r.ring[i].host
}

// PickServer returns the address of the primary host for key.
func (r *Router) PickServer(key string) (net.Addr, error) {
	return r.addrs[r.index(key, 0)], nil
}

// Each calls f for every configured server address.
func (r *Router) Each(f func(net.Addr) error) error {
	for _, a := range r.addrs {
		if err := f(a); err != nil {
			return err
		}
	}
	return nil
}

// hostAddr is an unresolved TCP address; the dialer resolves it per
// connection.
type hostAddr string

func (a hostAddr) Network() string { return "tcp" }
func (a hostAddr) String() string  { return string(a) }
