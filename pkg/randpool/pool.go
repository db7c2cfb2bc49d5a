// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-pgpkit.
//
// go-pgpkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package randpool implements a hash-stirred entropy pool. A Pool is seeded
// from an OS entropy source, accumulates timing events, and hands out bytes
// by hashing successive pool windows. It implements io.Reader and is the
// random source threaded through key generation, padding and message
// encryption.
package randpool

import (
	"encoding/binary"
	"io"
	"math/bits"
	"sync"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/logging"
	"github.com/jeremyhahn/go-pgpkit/pkg/metrics"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
)

const (
	// DefaultSize is the pool size in bytes.
	DefaultSize = 160

	// DefaultHash is the mixing hash.
	DefaultHash = provider.SHA1

	// MinSize and MaxSize bound a pool's size in bytes.
	MinSize = 64
	MaxSize = 4096

	tickSamples = 16
)

var (
	// ErrPoolSize is returned for an out-of-range size, or when persisted
	// state was written by a pool of a different size.
	ErrPoolSize = pgperr.New(pgperr.KindDomain, "randpool: pool size mismatch")

	// ErrStateVersion is returned for persisted state of an unknown version.
	ErrStateVersion = pgperr.New(pgperr.KindFormat, "randpool: unsupported state version")

	// ErrCancelled is returned when event gathering is abandoned.
	ErrCancelled = pgperr.New(pgperr.KindCancelled, "randpool: gathering cancelled")
)

// Clock supplies the timestamps mixed in as event noise.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Options configures a new Pool.
type Options struct {
	// Size is the pool size in bytes, default DefaultSize.
	Size int

	// Hash names the mixing hash in the provider registry, default SHA1.
	Hash string

	// Source seeds the pool. Nil, or a source that fails, leaves the pool
	// with zero entropy.
	Source io.Reader

	// Clock supplies event timestamps, default the wall clock.
	Clock Clock

	Logger *logging.Logger
}

// Pool is an entropy accumulator. It is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	size    int
	hash    provider.HashModule
	dsize   int
	pool    []byte
	addPos  int
	getPos  int
	counter uint32
	entropy int

	event1, event2 int64
	lastNoise      time.Time
	tick           time.Duration

	clock Clock
	log   *logging.Logger
}

// New creates a pool and seeds it from opts.Source.
func New(opts *Options) (*Pool, error) {
	p, err := newPool(opts)
	if err != nil {
		return nil, err
	}
	p.seed(opts)
	p.stir()
	return p, nil
}

func newPool(opts *Options) (*Pool, error) {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	hashName := opts.Hash
	if hashName == "" {
		hashName = DefaultHash
	}
	hm, err := provider.LookupHash(hashName)
	if err != nil {
		return nil, err
	}
	if size < MinSize || size > MaxSize || size < hm.Size {
		return nil, ErrPoolSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	p := &Pool{
		size:  size,
		hash:  hm,
		dsize: hm.Size,
		pool:  make([]byte, size),
		clock: clock,
		log:   opts.Logger,
	}
	p.getPos = p.dsize
	p.tick = measureTick(clock)
	p.lastNoise = clock.Now()
	return p, nil
}

func (p *Pool) seed(opts *Options) {
	if opts == nil || opts.Source == nil {
		p.log.Debug("random pool has no entropy source")
		return
	}
	buf := make([]byte, p.size)
	n, err := io.ReadFull(opts.Source, buf)
	if err != nil {
		p.log.Debugf("entropy source returned %d of %d bytes: %v", n, p.size, err)
	}
	p.addBytes(buf[:n])
	p.updateEntropy(4 * n)
	zero(buf)
}

// measureTick estimates the clock resolution as the smallest positive step
// seen across a few consecutive readings.
func measureTick(c Clock) time.Duration {
	var tick time.Duration
	prev := c.Now()
	for i := 0; i < tickSamples; i++ {
		now := c.Now()
		if d := now.Sub(prev); d > 0 && (tick == 0 || d < tick) {
			tick = d
		}
		prev = now
	}
	if tick <= 0 {
		tick = time.Microsecond
	}
	return tick
}

// Size returns the pool size in bytes.
func (p *Pool) Size() int { return p.size }

// HashName returns the name of the mixing hash.
func (p *Pool) HashName() string { return p.hash.Name }

// Entropy returns the current entropy estimate in bits.
func (p *Pool) Entropy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entropy
}

// Capacity returns the largest entropy estimate the pool can hold.
func (p *Pool) Capacity() int { return p.size * 8 }

// AddEvent mixes value and extra into the pool together with the time
// since the previous event, and returns the bits of entropy credited. A
// value equal to either of the two previous events earns no credit.
func (p *Pool) AddEvent(value int64, extra []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.addEvent(value, extra)
	metrics.SetPoolEntropy(p.entropy)
	return n
}

func (p *Pool) addEvent(value int64, extra []byte) int {
	delta := p.noise()

	buf := make([]byte, 0, len(extra)+8+4+8)
	buf = append(buf, extra...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(value))
	buf = append(buf, 0xaa, 0xaa, 0xaa, 0xaa)
	buf = binary.BigEndian.AppendUint64(buf, delta)
	p.addBytes(buf)

	credit := 0
	if value != p.event1 && value != p.event2 {
		credit = bits.Len64(delta)
		if credit > 8 {
			credit = 8
		}
	}
	p.event1, p.event2 = value, p.event1
	p.updateEntropy(credit)
	return credit
}

// noise mixes the current time and returns the ticks elapsed since the
// previous sample, reduced mod 255.
func (p *Pool) noise() uint64 {
	now := p.clock.Now()
	elapsed := now.Sub(p.lastNoise)
	p.lastNoise = now
	if elapsed < 0 {
		elapsed = -elapsed
	}
	delta := uint64(elapsed/p.tick) % 0xff

	var ts [9]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(now.UnixNano()))
	ts[8] = byte(delta)
	p.addBytes(ts[:])
	return delta
}

func (p *Pool) addBytes(b []byte) {
	for _, c := range b {
		p.pool[p.addPos] ^= c
		p.addPos = (p.addPos + 1) % p.size
	}
}

func (p *Pool) updateEntropy(delta int) {
	p.entropy += delta
	if p.entropy < 0 {
		p.entropy = 0
	}
	if limit := p.size * 8; p.entropy > limit {
		p.entropy = limit
	}
}

// Stir rehashes the whole pool. The entropy estimate is unchanged.
func (p *Pool) Stir() {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	p.stir()
	metrics.Observe(metrics.OpPoolStir, p.hash.Name, start, nil)
}

func (p *Pool) stir() {
	entropy := p.entropy
	p.addEvent(int64(p.counter), nil)

	var word [12]byte
	for i := 0; i < p.size/p.dsize; i++ {
		h := p.hash.New()
		h.Write(p.pool)
		binary.BigEndian.PutUint32(word[0:4], p.counter)
		binary.BigEndian.PutUint32(word[4:8], uint32(i))
		binary.BigEndian.PutUint32(word[8:12], uint32(p.addPos))
		h.Write(word[:])
		p.addBytes(h.Sum(nil))
		p.counter++
	}
	p.addPos = 0
	p.getPos = p.dsize

	p.addEvent(int64(p.counter), nil)
	p.entropy = entropy
}

// GetBytes returns n bytes drawn from the pool and debits 8n bits from the
// entropy estimate.
func (p *Pool) GetBytes(n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.getBytes(n)
	metrics.SetPoolEntropy(p.entropy)
	return out
}

func (p *Pool) getBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, 0, n+p.dsize)
	h := p.hash.New()
	i := p.getPos
	for len(out) < n {
		end := i + p.dsize
		if end > p.size {
			end = p.size
		}
		h.Write(p.pool[i:end])
		out = h.Sum(out)
		i = (i + p.dsize) % p.size
		if i < p.dsize {
			p.stir()
			i = p.getPos
		}
	}
	p.getPos = i
	p.updateEntropy(-8 * n)
	return out[:n]
}

// Read fills b from the pool. It never fails.
func (p *Pool) Read(b []byte) (int, error) {
	copy(b, p.GetBytes(len(b)))
	return len(b), nil
}

// Zeroize clears the pool contents and entropy estimate.
func (p *Pool) Zeroize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	zero(p.pool)
	p.entropy = 0
	metrics.SetPoolEntropy(0)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
