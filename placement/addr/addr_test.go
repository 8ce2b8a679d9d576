// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package addr

import (
	"testing"
)

func TestPoolSequentialV4(t *testing.T) {
	p, err := NewPool("10.10.0.0/24", 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.10.0.0/30", "10.10.0.4/30", "10.10.0.8/30"}
	for _, w := range want {
		got, err := p.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.String() != w {
			t.Errorf("got %s, want %s", got.String(), w)
		}
	}
}

func TestPoolSkipsReserved(t *testing.T) {
	p, err := NewPool("10.10.0.0/24", 30, []string{"10.10.0.4/30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.String() != "10.10.0.0/30" {
		t.Errorf("got %s, want 10.10.0.0/30", first.String())
	}
	second, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.String() != "10.10.0.8/30" {
		t.Errorf("got %s, want 10.10.0.8/30 (10.10.0.4/30 was reserved)", second.String())
	}
}

func TestPoolExhausted(t *testing.T) {
	p, err := NewPool("10.10.0.0/30", 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Next(); err != nil {
		t.Fatalf("unexpected error on first allocation: %v", err)
	}
	if _, err := p.Next(); err != ErrExhausted {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestPoolV6(t *testing.T) {
	p, err := NewPool("fd00::/120", 126, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.String() != "fd00::/126" {
		t.Errorf("got %s, want fd00::/126", first.String())
	}
	second, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.String() != "fd00::4/126" {
		t.Errorf("got %s, want fd00::4/126", second.String())
	}
}
