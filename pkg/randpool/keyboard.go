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
	"context"
	"fmt"
	"io"
)

// StirRounds is how many times GatherKeyboard stirs once enough entropy
// has been collected.
const StirRounds = 3

// GatherKeyboard reads characters from in one at a time, timestamping each
// as an event, until the entropy estimate reaches the pool's capacity. The
// number of bits still needed is written to prompt after every character.
// in is normally a terminal in raw mode. On cancellation the reader
// goroutine exits after the next byte arrives or in reports an error.
func (p *Pool) GatherKeyboard(ctx context.Context, in io.Reader, prompt io.Writer) error {
	want := p.Capacity() - p.Entropy()
	return p.Gather(ctx, in, prompt, want)
}

// Gather is GatherKeyboard with an explicit number of bits to collect.
func (p *Pool) Gather(ctx context.Context, in io.Reader, prompt io.Writer, want int) error {
	if prompt == nil {
		prompt = io.Discard
	}
	if want <= 0 {
		return nil
	}
	fmt.Fprintf(prompt, "%d bits of entropy are now required. Please type on the keyboard\n", want)
	fmt.Fprintln(prompt, "until enough randomness has been accumulated.")

	chars := make(chan byte)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		var b [1]byte
		for {
			if _, err := io.ReadFull(in, b[:]); err != nil {
				errc <- err
				return
			}
			select {
			case chars <- b[0]:
			case <-done:
				return
			}
		}
	}()

	var typed []byte
	defer func() { zero(typed) }()
	got := 0
	for got < want {
		fmt.Fprintf(prompt, "%6d\b\b\b\b\b\b", want-got)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case err := <-errc:
			return fmt.Errorf("randpool: reading events: %w", err)
		case c := <-chars:
			typed = append(typed, c)
			got += p.AddEvent(p.clock.Now().UnixMilli(), typed)
		}
	}

	h := p.hash.New()
	h.Write(typed)
	p.AddEvent(p.clock.Now().UnixMilli(), h.Sum(append([]byte(nil), typed...)))

	fmt.Fprintln(prompt, "\nEnough. Please wait a moment.")
	for i := 0; i < StirRounds; i++ {
		p.Stir()
	}
	fmt.Fprintln(prompt, "Thank you.")
	return nil
}
