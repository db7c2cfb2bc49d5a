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

package password

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{"valid passphrase", []byte("secure-passphrase-123"), false},
		{"empty passphrase", []byte{}, true},
		{"nil passphrase", nil, true},
		{"special characters", []byte("p@$$w0rd!#%&*()"), false},
		{"unicode passphrase", []byte("пароль密码🔐"), false},
		{"single character", []byte("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrEmptyPassword) {
					t.Errorf("New() error = %v, want ErrEmptyPassword", err)
				}
				return
			}
			if got := string(p.Bytes()); got != string(tt.input) {
				t.Errorf("Bytes() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	in := []byte("secret")
	p, err := New(in)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	in[0] = 'X'
	if s, _ := p.String(); s != "secret" {
		t.Errorf("String() = %q after modifying input, want secret", s)
	}

	out := p.Bytes()
	out[0] = 'Y'
	if s, _ := p.String(); s != "secret" {
		t.Errorf("String() = %q after modifying Bytes(), want secret", s)
	}
}

func TestClear(t *testing.T) {
	p, _ := FromString("secret")
	p.Clear()
	if p.Bytes() != nil {
		t.Error("Bytes() should return nil after Clear")
	}
	if _, err := p.String(); !errors.Is(err, ErrPasswordZeroed) {
		t.Errorf("String() error = %v, want ErrPasswordZeroed", err)
	}
	p.Clear()

	var nilp *Passphrase
	nilp.Clear()
	if nilp.Bytes() != nil {
		t.Error("nil Passphrase should have nil Bytes")
	}
}

func TestLookup(t *testing.T) {
	const env = "PGPKIT_TEST_PASSPHRASE"

	t.Setenv(env, "from-env")
	p, ok := Lookup("from-flag", env)
	if !ok {
		t.Fatal("Lookup() with a value should succeed")
	}
	if s, _ := p.String(); s != "from-flag" {
		t.Errorf("Lookup() = %q, want from-flag", s)
	}

	p, ok = Lookup("", env)
	if !ok {
		t.Fatal("Lookup() should fall back to the environment")
	}
	if s, _ := p.String(); s != "from-env" {
		t.Errorf("Lookup() = %q, want from-env", s)
	}

	t.Setenv(env, "")
	if _, ok := Lookup("", env); ok {
		t.Error("Lookup() should fail with an empty environment variable")
	}
	if _, ok := Lookup("", ""); ok {
		t.Error("Lookup() should fail with nothing to read")
	}
}

func TestEqualAndConfirm(t *testing.T) {
	a, _ := FromString("alpha")
	b, _ := FromString("alpha")
	c, _ := FromString("bravo")

	if eq, err := Equal(a, b); err != nil || !eq {
		t.Errorf("Equal(alpha, alpha) = %v, %v", eq, err)
	}
	if eq, err := Equal(a, c); err != nil || eq {
		t.Errorf("Equal(alpha, bravo) = %v, %v", eq, err)
	}

	got, err := Confirm(a, b)
	if err != nil {
		t.Fatalf("Confirm() returned error: %v", err)
	}
	if s, _ := got.String(); s != "alpha" {
		t.Errorf("Confirm() = %q, want alpha", s)
	}
	if b.Bytes() != nil {
		t.Error("Confirm() should clear the confirmation")
	}

	if _, err := Confirm(got, c); !errors.Is(err, ErrMismatch) {
		t.Errorf("Confirm() error = %v, want ErrMismatch", err)
	}
	if got.Bytes() != nil {
		t.Error("Confirm() should clear both on mismatch")
	}
	if _, err := Equal(got, c); !errors.Is(err, ErrPasswordZeroed) {
		t.Errorf("Equal() on cleared passphrase error = %v, want ErrPasswordZeroed", err)
	}
}
