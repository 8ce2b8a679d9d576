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

package store

import (
	"os"
	"testing"
)

func TestNewClientFromEnvRequiresHost(t *testing.T) {
	os.Unsetenv("ETCD_HOST")
	if _, err := NewClientFromEnv(); err == nil {
		t.Errorf("expected error when ETCD_HOST is unset")
	}
}

func TestNewClientFromEnvDefaultPort(t *testing.T) {
	os.Setenv("ETCD_HOST", "store.example.com")
	defer os.Unsetenv("ETCD_HOST")
	os.Unsetenv("ETCD_PORT")

	simple, err := NewClientFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "store.example.com:2379"; len(simple.seeds) != 1 || simple.seeds[0] != want {
		t.Errorf("seeds: got %v, want [%s]", simple.seeds, want)
	}
}

func TestSimpleInitMethodError(t *testing.T) {
	s := &Simple{} // method zero value is methodError
	if err := s.Init(); err == nil {
		t.Errorf("expected Init to fail on a zero-value Simple")
	}
}

func TestTLSConfigEmptyPath(t *testing.T) {
	s := NewClientFromSeeds([]string{"127.0.0.1:2379"}, "", "", "")
	cfg, err := s.tlsConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil tls config when no ca cert path is set")
	}
}

func TestTLSConfigMissingFile(t *testing.T) {
	s := NewClientFromSeeds([]string{"127.0.0.1:2379"}, "", "", "/no/such/ca.pem")
	if _, err := s.tlsConfig(); err == nil {
		t.Errorf("expected error for missing ca cert file")
	}
}

var _ Client = (*Simple)(nil) // compile-time interface assertion
