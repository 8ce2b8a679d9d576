// Mgmt
// Copyright (C) James Shubin and the project contributors
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
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package sshtunnel builds a store client tunnelled over SSH, for operators
// who can reach a jump host but not the store's network directly.
package sshtunnel

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/satctl/satctl/store"
	"github.com/satctl/satctl/util"
	"github.com/satctl/satctl/util/errwrap"

	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"google.golang.org/grpc"
)

const (
	defaultUser                       = "root"
	defaultSSHPort             uint16 = 22
	defaultSSHHostKeyFieldName        = "hostkey" // querystring field name
	defaultSSHDir                     = "~/.ssh/"
	defaultKnownHostsPath             = "~/.ssh/known_hosts"
	allowRSA                          = true // are big keys okay?
)

// Tunnel builds a store.Client by dialing an SSH jump host and tunnelling
// the store's gRPC traffic through it. Use the format james@server:22 or
// similar for URL. From there, it connects to each of Seeds, so those ip's
// should be relative to the jump host.
type Tunnel struct {
	// URL is the ssh server to connect to. If you pass a ?hostkey= query
	// string parameter, you can specify a base64, known_hosts key to use
	// for confirmation that you're connecting to the right host. Without
	// this, it looks in ~/.ssh/known_hosts, which may not exist yet.
	URL string

	// HostKey is the key part (already base64 encoded) from a
	// known_hosts file, representing the host we're connecting to. If
	// set, it overrides looking for it in the URL.
	HostKey string

	// SSHID is the path to the ~/.ssh/id_??? key to use for auth. If
	// empty, this looks for a private key in all possible paths.
	SSHID string

	// Seeds are the list of store endpoints to connect to, from the
	// perspective of the jump host.
	Seeds []string

	Debug bool
	Logf  func(format string, v ...interface{})

	sshClient *ssh.Client
	cleanups  []func() error
}

func (obj *Tunnel) logf(format string, v ...interface{}) {
	if obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

// keySigners gets a list of possible key signers. These are used to get the
// available types of the keys, and the auth methods.
func (obj *Tunnel) keySigners() ([]ssh.Signer, error) {
	sshDir, err := util.ExpandHome(defaultSSHDir)
	if err != nil {
		return nil, errwrap.Wrapf(err, "can't find home directory")
	}
	if sshDir == "" {
		return nil, fmt.Errorf("empty path found")
	}

	files, err := os.ReadDir(sshDir)
	if err != nil {
		return nil, err
	}

	signers := []ssh.Signer{}
	for _, file := range files {
		p := filepath.Join(sshDir, file.Name())

		if file.IsDir() || obj.isPossiblePrivateKeyFile(p) != nil {
			continue
		}

		signer, err := obj.keySigner(p)
		if err != nil {
			obj.logf("%s", err)
			continue
		}

		signers = append(signers, signer)
	}

	return signers, nil
}

// keySigner returns a single signer from an absolute path.
func (obj *Tunnel) keySigner(p string) (ssh.Signer, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("key file error: %s", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty key file at: %s", p)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if _, ok := err.(*ssh.PassphraseMissingError); ok {
			return nil, fmt.Errorf("password required for key file: %s", p)
		}
		return nil, fmt.Errorf("key file parsing error: %s", err)
	}

	obj.logf("found auth option in: %s", p)
	return signer, nil
}

// isPossiblePrivateKeyFile determines if we've found a private key file.
func (obj *Tunnel) isPossiblePrivateKeyFile(p string) error {
	b := filepath.Base(p)

	if !strings.HasPrefix(b, "id_") {
		return fmt.Errorf("keys start with id_???")
	}
	if strings.HasSuffix(b, ".pub") {
		return fmt.Errorf("this is a public key")
	}
	if _, err := os.Stat(p + ".pub"); err != nil {
		return fmt.Errorf("matching public key is inaccessible")
	}
	return nil
}

// prioritizeHostKeyAlgorithms returns the host key algorithms that we tell
// the server that we support. The order matters: once we send a list, the
// server only returns one, so the ordering needs to reflect what we have
// available at the top.
func (obj *Tunnel) prioritizeHostKeyAlgorithms(allHostKeyAlgos, keyTypes []string) []string {
	rank := make(map[string]int, len(keyTypes))
	for i, t := range keyTypes {
		rank[t] = i
	}

	sorted := make([]string, len(allHostKeyAlgos))
	copy(sorted, allHostKeyAlgos)

	sort.SliceStable(sorted, func(i, j int) bool {
		rankI, okI := rank[sorted[i]]
		rankJ, okJ := rank[sorted[j]]

		switch {
		case okI && okJ:
			return rankI < rankJ
		case okI:
			return true
		case okJ:
			return false
		default:
			return false
		}
	})

	return sorted
}

// knownHostsKey takes a known_hosts key entry (just the base64 key part)
// and turns it into the ssh.PublicKey needed for hostKeyCallback.
func (obj *Tunnel) knownHostsKey(hostkey string) (ssh.PublicKey, error) {
	key := make([]byte, base64.StdEncoding.DecodedLen(len(hostkey)))
	n, err := base64.StdEncoding.Decode(key, []byte(hostkey))
	if err != nil {
		return nil, err
	}
	key = key[:n]
	return ssh.ParsePublicKey(key)
}

// hostKeyCallback is a helper function to get the ssh callback function
// needed.
func (obj *Tunnel) hostKeyCallback(hostkey ssh.PublicKey) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		obj.logf("server host key type: %s", key.Type())
		obj.logf("host key fingerprint: %s", ssh.FingerprintSHA256(key))

		if hostkey != nil {
			fn := ssh.FixedHostKey(hostkey)
			if fn(hostname, remote, key) == nil {
				obj.logf("matched key")
				return nil // found it!
			}
			obj.logf("did not match known key: %s", ssh.FingerprintSHA256(hostkey))
		}

		s := defaultKnownHostsPath
		p, err := util.ExpandHome(s)
		if err != nil {
			return errwrap.Wrapf(err, "can't find home directory for known_hosts file")
		}
		if p == "" {
			return fmt.Errorf("empty known_hosts path specified")
		}

		fn, err := knownhosts.New(p)
		if err != nil {
			return err
		}
		obj.logf("trying known_hosts file at: %s", p)
		err = fn(hostname, remote, key)
		if err == nil {
			obj.logf("host key matched")
			return nil
		}

		ke, ok := err.(*knownhosts.KeyError)
		if !ok || len(ke.Want) == 0 {
			return err
		}

		types := []string{}
		for _, kk := range ke.Want {
			typ := kk.Key.Type()
			types = append(types, typ)
			if key.Type() == typ {
				return err
			}
		}

		return fmt.Errorf("no known_hosts entry matching type, have: %s", strings.Join(types, ", "))
	}
}

// Connect dials the SSH jump host, then constructs a store client whose gRPC
// dialer tunnels through that SSH connection to each of Seeds.
func (obj *Tunnel) Connect(ctx context.Context) (*store.Simple, error) {
	obj.cleanups = []func() error{}

	if len(obj.Seeds) == 0 {
		return nil, fmt.Errorf("at least one seed is required")
	}
	seedSSH := make(map[string]string)
	for _, seed := range obj.Seeds {
		u, err := url.Parse(seed)
		if err != nil {
			return nil, err
		}
		hostname := u.Hostname()
		if hostname == "" {
			return nil, fmt.Errorf("empty hostname")
		}
		port := strconv.Itoa(int(defaultSSHPort))
		if s := u.Port(); s != "" {
			port = s
		}
		addr := fmt.Sprintf("%s:%s", hostname, port)
		if s := u.Scheme; s != "http" && s != "https" {
			return nil, fmt.Errorf("invalid scheme: %s", s)
		}
		seedSSH[seed] = addr
	}
	if l := len(obj.Seeds) - len(seedSSH); l != 0 {
		return nil, fmt.Errorf("found %d duplicate tunnels", l)
	}

	s := obj.URL
	scheme := "ssh://"
	if !strings.HasPrefix(s, scheme) {
		s = scheme + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	user := defaultUser
	if s := u.User.Username(); s != "" {
		user = s
	}
	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("empty hostname")
	}
	port := strconv.Itoa(int(defaultSSHPort))
	if s := u.Port(); s != "" {
		port = s
	}

	base64Key := u.Query().Get(defaultSSHHostKeyFieldName)
	if obj.HostKey != "" {
		base64Key = obj.HostKey
	}
	var pubKey ssh.PublicKey
	if base64Key != "" {
		k, err := obj.knownHostsKey(base64Key)
		if err != nil {
			return nil, errwrap.Wrapf(err, "invalid known_hosts key")
		}
		pubKey = k
	}

	addr := fmt.Sprintf("%s:%s", hostname, port)

	keyTypes := []string{}
	auths := []ssh.AuthMethod{}

	if obj.SSHID != "" {
		p, err := util.ExpandHome(obj.SSHID)
		if err != nil {
			return nil, errwrap.Wrapf(err, "can't find home directory")
		}
		if p == "" {
			return nil, fmt.Errorf("empty path specified")
		}

		signer, err := obj.keySigner(p)
		if err != nil {
			return nil, err
		}
		typ := signer.PublicKey().Type()
		keyTypes = append(keyTypes, typ)
		auths = append(auths, ssh.PublicKeys(signer))
	}

	if len(auths) == 0 {
		signers, err := obj.keySigners()
		if err != nil {
			return nil, err
		}
		for _, signer := range signers {
			typ := signer.PublicKey().Type()
			keyTypes = append(keyTypes, typ)
		}
		if len(signers) > 0 {
			auths = append(auths, ssh.PublicKeys(signers...))
		}
	}

	if len(auths) == 0 {
		return nil, fmt.Errorf("no auth options available")
	}

	obj.logf("found %d available key types: %s", len(keyTypes), strings.Join(keyTypes, ", "))

	algorithms := ssh.SupportedAlgorithms()
	preferredAlgoOrder := algorithms.HostKeys
	if allowRSA {
		preferredAlgoOrder = append(preferredAlgoOrder, ssh.KeyAlgoRSA)
	}

	sshConfig := &ssh.ClientConfig{
		User:              user,
		Auth:              auths,
		HostKeyCallback:   obj.hostKeyCallback(pubKey),
		HostKeyAlgorithms: obj.prioritizeHostKeyAlgorithms(preferredAlgoOrder, keyTypes),
	}

	obj.logf("ssh: %s@%s", user, addr)
	obj.sshClient, err = dialSSHWithContext(ctx, "tcp", addr, sshConfig)
	if err != nil {
		return nil, err
	}
	obj.cleanups = append(obj.cleanups, func() error {
		e := obj.sshClient.Close()
		if obj.Debug && e != nil {
			obj.logf("ssh client close error: %+v", e)
		}
		return e
	})

	// This runs repeatedly when the store client tries to reconnect.
	grpcWithContextDialerFunc := func(ctx context.Context, addr string) (net.Conn, error) {
		var reterr error
		for _, seed := range obj.Seeds { // first successful connect wins
			if addr != seedSSH[seed] {
				continue
			}
			obj.logf("tunnel: %s", addr)

			tunnel, err := obj.sshClient.Dial("tcp", addr)
			if err != nil {
				reterr = err
				obj.logf("ssh dial error: %v", err)
				continue
			}

			obj.cleanups = append(obj.cleanups, func() error {
				e := tunnel.Close()
				if e == io.EOF {
					return nil
				}
				if obj.Debug && e != nil {
					obj.logf("ssh client close error: %+v", e)
				}
				return e
			})

			return tunnel, nil
		}

		if reterr != nil {
			return nil, reterr
		}
		return nil, fmt.Errorf("no ssh tunnels available")
	}

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints: obj.Seeds,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(grpcWithContextDialerFunc),
		},
	})
	if err != nil {
		return nil, errwrap.Append(obj.Close(), err)
	}
	obj.cleanups = append(obj.cleanups, func() error {
		e := etcdClient.Close()
		if obj.Debug && e != nil {
			obj.logf("etcd client close error: %+v", e)
		}
		return e
	})

	simple := store.NewClientFromClient(etcdClient)
	simple.Debug = obj.Debug
	simple.Logf = obj.Logf
	if err := simple.Init(); err != nil {
		return nil, errwrap.Append(obj.Close(), err)
	}

	return simple, nil
}

// Close performs all the "close" actions in reverse order.
func (obj *Tunnel) Close() error {
	var errs error
	for i := len(obj.cleanups) - 1; i >= 0; i-- {
		f := obj.cleanups[i]
		if err := f(); err != nil {
			errs = errwrap.Append(errs, err)
		}
	}
	obj.cleanups = nil
	return errs
}

// dialSSHWithContext wraps ssh.Dial so that we can have a context to cancel.
func dialSSHWithContext(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(c, chans, reqs), nil
}
