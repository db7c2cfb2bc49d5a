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

package randpool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/jeremyhahn/go-pgpkit/pkg/provider"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage"
	"github.com/jeremyhahn/go-pgpkit/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by a fixed step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Unix(1_000_000, 0), step: time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no device") }

func TestNewWithoutSource(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, p.Size())
	assert.Equal(t, provider.SHA1, p.HashName())
	assert.Equal(t, 0, p.Entropy())
	assert.Equal(t, DefaultSize*8, p.Capacity())
}

func TestNewSeedsHalfCredit(t *testing.T) {
	p, err := New(&Options{Source: NewDeterministic("seed"), Clock: newStepClock()})
	require.NoError(t, err)
	assert.Equal(t, 4*DefaultSize, p.Entropy())
}

func TestNewFailingSourceIsSilent(t *testing.T) {
	p, err := New(&Options{Source: failingReader{}, Clock: newStepClock()})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Entropy())
}

func TestNewOptions(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
		err  error
	}{
		{"nil options", nil, nil},
		{"sha256", &Options{Size: 256, Hash: provider.SHA256}, nil},
		{"too small", &Options{Size: 10}, ErrPoolSize},
		{"too large", &Options{Size: MaxSize + 1}, ErrPoolSize},
		{"unknown hash", &Options{Hash: "nope"}, provider.ErrUnknownHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestEventsAccumulateEntropy(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)

	for i := int64(1); i <= 200; i++ {
		p.AddEvent(i, nil)
	}
	e := p.Entropy()
	assert.GreaterOrEqual(t, e, 100)
	assert.LessOrEqual(t, e, p.Capacity())

	a := p.GetBytes(16)
	b := p.GetBytes(16)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestRepeatedEventEarnsNothing(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)

	assert.Positive(t, p.AddEvent(1000, nil))
	assert.Equal(t, 0, p.AddEvent(1000, nil))
	assert.Positive(t, p.AddEvent(2000, nil))
	// equal to the event two back
	assert.Equal(t, 0, p.AddEvent(1000, nil))
}

func TestEntropyCapped(t *testing.T) {
	p, err := New(&Options{Source: NewDeterministic("cap"), Clock: newStepClock()})
	require.NoError(t, err)
	for i := int64(1); i <= 2000; i++ {
		p.AddEvent(i, []byte("x"))
	}
	assert.Equal(t, p.Capacity(), p.Entropy())
}

func TestStirPreservesEntropy(t *testing.T) {
	p, err := New(&Options{Source: NewDeterministic("stir"), Clock: newStepClock()})
	require.NoError(t, err)
	before := p.Entropy()
	p.Stir()
	p.Stir()
	assert.Equal(t, before, p.Entropy())
}

func TestGetBytesDebitsEntropy(t *testing.T) {
	p, err := New(&Options{Source: NewDeterministic("debit"), Clock: newStepClock()})
	require.NoError(t, err)

	for _, n := range []int{0, 1, 20, 33, 200, 1000} {
		before := p.Entropy()
		out := p.GetBytes(n)
		assert.Len(t, out, n)
		after := p.Entropy()
		assert.GreaterOrEqual(t, after, 0)
		assert.GreaterOrEqual(t, after, before-8*n)
	}
	assert.Equal(t, 0, p.Entropy())
}

func TestReadImplementsReader(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)

	buf := make([]byte, 777)
	n, err := io.ReadFull(p, buf)
	require.NoError(t, err)
	assert.Equal(t, 777, n)
	assert.NotEqual(t, make([]byte, 777), buf)
}

func TestZeroize(t *testing.T) {
	p, err := New(&Options{Source: NewDeterministic("z"), Clock: newStepClock()})
	require.NoError(t, err)
	p.Zeroize()
	assert.Equal(t, 0, p.Entropy())
	assert.Equal(t, make([]byte, p.Size()), p.pool)
}

func TestPersistRoundTrip(t *testing.T) {
	b := memory.New()
	key := storage.PoolPath("default")

	p, err := New(&Options{Source: NewDeterministic("persist"), Clock: newStepClock()})
	require.NoError(t, err)
	require.NoError(t, p.Save(b, key))

	r1, err := Open(b, key, &Options{Clock: newStepClock()})
	require.NoError(t, err)
	r2, err := Open(b, key, &Options{Clock: newStepClock()})
	require.NoError(t, err)

	assert.Equal(t, p.Entropy(), r1.Entropy())
	assert.Equal(t, r1.GetBytes(32), r2.GetBytes(32))
}

func TestOpenMissingStateCreatesFreshPool(t *testing.T) {
	p, err := Open(memory.New(), storage.PoolPath("none"), &Options{Clock: newStepClock()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, p.Size())
	assert.Equal(t, 0, p.Entropy())
}

func TestOpenRejectsSizeMismatch(t *testing.T) {
	b := memory.New()
	key := storage.PoolPath("default")

	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)
	require.NoError(t, p.Save(b, key))

	_, err = Open(b, key, &Options{Size: 256, Clock: newStepClock()})
	assert.ErrorIs(t, err, ErrPoolSize)
}

func TestOpenRejectsBadState(t *testing.T) {
	tests := []struct {
		name string
		st   state
		err  error
	}{
		{"version", state{Version: 2, Size: DefaultSize, Hash: provider.SHA1, Pool: make([]byte, DefaultSize)}, ErrStateVersion},
		{"hash", state{Version: stateVersion, Size: DefaultSize, Hash: provider.MD5, Pool: make([]byte, DefaultSize)}, ErrStateVersion},
		{"short pool", state{Version: stateVersion, Size: DefaultSize, Hash: provider.SHA1, Pool: make([]byte, 10)}, ErrPoolSize},
		{"cursor", state{Version: stateVersion, Size: DefaultSize, Hash: provider.SHA1, Pool: make([]byte, DefaultSize), AddPos: DefaultSize}, ErrStateVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.st)
			require.NoError(t, err)
			b := memory.New()
			require.NoError(t, b.Put("pool/x.seed", data, nil))

			_, err = Open(b, "pool/x.seed", &Options{Clock: newStepClock()})
			assert.ErrorIs(t, err, tt.err)
		})
	}

	b := memory.New()
	require.NoError(t, b.Put("pool/x.seed", []byte{0xff, 0x00}, nil))
	_, err := Open(b, "pool/x.seed", nil)
	assert.Equal(t, pgperr.KindFormat, pgperr.KindOf(err))
}

func TestGather(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)

	var prompt bytes.Buffer
	in := strings.NewReader(strings.Repeat("the quick brown fox ", 10))
	require.NoError(t, p.Gather(context.Background(), in, &prompt, 16))

	assert.GreaterOrEqual(t, p.Entropy(), 16)
	assert.Contains(t, prompt.String(), "16 bits of entropy are now required")
	assert.Contains(t, prompt.String(), "Thank you.")
}

func TestGatherNothingNeeded(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)
	assert.NoError(t, p.Gather(context.Background(), strings.NewReader(""), nil, 0))
}

func TestGatherShortInput(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)
	err = p.Gather(context.Background(), strings.NewReader("ab"), nil, 500)
	assert.ErrorIs(t, err, io.EOF)
}

func TestGatherCancelled(t *testing.T) {
	p, err := New(&Options{Clock: newStepClock()})
	require.NoError(t, err)

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.GatherKeyboard(ctx, pr, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, pgperr.KindCancelled, pgperr.KindOf(err))
}

func TestDeterministic(t *testing.T) {
	a := make([]byte, 100)
	b := make([]byte, 100)
	_, err := io.ReadFull(NewDeterministic("unit-test-seed-1"), a)
	require.NoError(t, err)
	_, err = io.ReadFull(NewDeterministic("unit-test-seed-1"), b)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c := make([]byte, 100)
	_, err = io.ReadFull(NewDeterministic("unit-test-seed-2"), c)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
