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
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/satctl/satctl/util/errwrap"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
)

// method represents the method we used to build the simple client.
type method uint8

const (
	methodError method = iota
	methodSeeds
	methodClient
)

// NewClientFromSeeds builds a new simple client by connecting to a list of
// seeds. user, pass, and caCertPath may all be empty.
func NewClientFromSeeds(seeds []string, user, pass, caCertPath string) *Simple {
	return &Simple{
		method: methodSeeds,
		wg:     &sync.WaitGroup{},

		seeds:      seeds,
		user:       user,
		pass:       pass,
		caCertPath: caCertPath,
	}
}

// NewClientFromEnv builds a new simple client from the ETCD_HOST, ETCD_PORT,
// ETCD_USER, ETCD_PASSWORD, and ETCD_CA_CERT environment variables, as
// specified for the agent and control commands. ETCD_HOST is required;
// ETCD_PORT defaults to 2379.
func NewClientFromEnv() (*Simple, error) {
	host := os.Getenv("ETCD_HOST")
	if host == "" {
		return nil, fmt.Errorf("ETCD_HOST is not set")
	}
	port := os.Getenv("ETCD_PORT")
	if port == "" {
		port = "2379"
	}
	seed := fmt.Sprintf("%s:%s", host, port)
	user := os.Getenv("ETCD_USER")
	pass := os.Getenv("ETCD_PASSWORD")
	caCertPath := os.Getenv("ETCD_CA_CERT")
	return NewClientFromSeeds([]string{seed}, user, pass, caCertPath), nil
}

// NewClientFromClient builds a new simple client by taking an existing
// client struct. It does not disconnect this when Close is called, as that
// is up to the parent, which is the owner of that client input struct.
func NewClientFromClient(client *etcd.Client) *Simple {
	return &Simple{
		method: methodClient,
		wg:     &sync.WaitGroup{},

		client: client,
	}
}

// Simple provides a simple store client for every other package in this
// module. Set Debug and Logf after you've built this with one of the
// NewClient* functions.
type Simple struct {
	Debug bool
	Logf  func(format string, v ...interface{})

	method method
	wg     *sync.WaitGroup

	// err is the error we set when using methodError
	err error

	// seeds is the list of endpoints to try to connect to.
	seeds      []string
	user       string
	pass       string
	caCertPath string

	// client is the etcd client connection.
	client *etcd.Client

	// kv and w are the interfaces we operate through. They're split out
	// from client so that a namespaced client can layer over them.
	kv etcd.KV
	w  etcd.Watcher
}

// logf is a safe wrapper around the Logf parameter that doesn't panic if the
// user didn't pass a logger in.
func (obj *Simple) logf(format string, v ...interface{}) {
	if obj.Logf == nil {
		return
	}
	obj.Logf(format, v...)
}

// tlsConfig builds a *tls.Config from obj.caCertPath, or returns nil if none
// was specified.
func (obj *Simple) tlsConfig() (*tls.Config, error) {
	if obj.caCertPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(obj.caCertPath)
	if err != nil {
		return nil, errwrap.Wrapf(err, "could not read ca cert")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("could not parse ca cert at %s", obj.caCertPath)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// config returns the config struct to be used for the etcd client connect.
func (obj *Simple) config() (etcd.Config, error) {
	tlsCfg, err := obj.tlsConfig()
	if err != nil {
		return etcd.Config{}, err
	}
	cfg := etcd.Config{
		Endpoints:   obj.seeds,
		DialTimeout: 5 * time.Second,
		Username:    obj.user,
		Password:    obj.pass,
		TLS:         tlsCfg,
	}
	return cfg, nil
}

// connect connects the client to a server, and then builds the *API
// structs.
func (obj *Simple) connect() error {
	if obj.client != nil { // memoize
		return nil
	}

	cfg, err := obj.config()
	if err != nil {
		return err
	}
	obj.client, err = etcd.New(cfg) // connect!
	if err != nil {
		return errwrap.Wrapf(err, "client connect error")
	}
	obj.kv = obj.client.KV
	obj.w = obj.client.Watcher
	return nil
}

// Init starts up the struct.
func (obj *Simple) Init() error {
	switch obj.method {
	case methodError:
		return obj.err // use the error we set

	case methodSeeds:
		if len(obj.seeds) <= 0 {
			return fmt.Errorf("zero seeds")
		}
		return obj.connect()

	case methodClient:
		if obj.client == nil {
			return fmt.Errorf("no client")
		}
		obj.kv = obj.client.KV
		obj.w = obj.client.Watcher
		return nil
	}

	return fmt.Errorf("unknown method: %+v", obj.method)
}

// WithNamespace returns a new Simple client that's identical to obj except
// all key access is prefixed with ns. The underlying connection is shared;
// Close on the result is a no-op, call Close on obj instead.
func (obj *Simple) WithNamespace(ns string) *Simple {
	if ns == "" {
		return obj
	}
	return &Simple{
		Debug:  obj.Debug,
		Logf:   obj.Logf,
		method: methodClient,
		wg:     obj.wg,
		client: obj.client,
		kv:     namespace.NewKV(obj.kv, ns),
		w:      namespace.NewWatcher(obj.w, ns),
	}
}

// Close cleans up the struct after we're finished.
func (obj *Simple) Close() error {
	defer obj.wg.Wait()
	switch obj.method {
	case methodError: // for consistency
		return fmt.Errorf("did not Init")

	case methodSeeds:
		return obj.client.Close()

	case methodClient:
		// we were given a client, so we don't own it or close it
		return nil
	}

	return fmt.Errorf("unknown method: %+v", obj.method)
}

// GetClient returns a handle to an open etcd Client. This is needed for
// certain APIs that don't support passing in KV and Watcher instead.
func (obj *Simple) GetClient() *etcd.Client {
	return obj.client
}

// Set runs a set operation. If you'd like more information about whether a
// value changed or not, use Txn instead.
func (obj *Simple) Set(ctx context.Context, key, value string, opts ...etcd.OpOption) error {
	resp, err := obj.kv.Put(ctx, key, value, opts...)
	if obj.Debug {
		obj.logf("set(%s): %v", key, resp)
	}
	return err
}

// Get runs a get operation.
func (obj *Simple) Get(ctx context.Context, path string, opts ...etcd.OpOption) (map[string]string, error) {
	resp, err := obj.kv.Get(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}

	result := make(map[string]string)
	for _, x := range resp.Kvs {
		result[string(x.Key)] = string(x.Value)
	}
	return result, nil
}

// Del runs a delete operation.
func (obj *Simple) Del(ctx context.Context, path string, opts ...etcd.OpOption) (int64, error) {
	resp, err := obj.kv.Delete(ctx, path, opts...)
	if err == nil {
		return resp.Deleted, nil
	}
	return -1, err
}

// Txn runs a transaction.
func (obj *Simple) Txn(ctx context.Context, ifCmps []etcd.Cmp, thenOps, elseOps []etcd.Op) (*etcd.TxnResponse, error) {
	resp, err := obj.kv.Txn(ctx).If(ifCmps...).Then(thenOps...).Else(elseOps...).Commit()
	if obj.Debug {
		obj.logf("txn: %v", resp)
	}
	return resp, err
}

// Watcher is a watcher that returns a chan of error's instead of a chan with
// all sorts of watcher data. This is useful when we only want an event
// signal, but we don't care about the specifics.
func (obj *Simple) Watcher(ctx context.Context, path string, opts ...etcd.OpOption) (chan error, error) {
	cancelCtx, cancel := context.WithCancel(ctx)
	info, err := obj.ComplexWatcher(cancelCtx, path, opts...)
	if err != nil {
		defer cancel()
		return nil, err
	}
	ch := make(chan error)
	obj.wg.Add(1)
	go func() {
		defer obj.wg.Done()
		defer close(ch)
		defer cancel()
		var data *WatcherData
		var ok bool
		for {
			select {
			case data, ok = <-info.Events:
				if !ok {
					return
				}
			case <-cancelCtx.Done():
				continue // wait for ch closure, but don't block
			}

			select {
			case ch <- data.Err: // send (might be nil!)
			case <-cancelCtx.Done():
				continue // wait for ch closure, but don't block
			}
		}
	}()
	return ch, nil
}

// ComplexWatcher is a more capable watcher that also returns data
// information. This starts a watch request. It writes on a channel that you
// can follow to know when an event or an error occurs. It always sends one
// startup event. It will not return until the watch has been started. If it
// cannot start, then it will return an error. Remember to add the
// WithPrefix() option if you want to watch recursively.
func (obj *Simple) ComplexWatcher(ctx context.Context, path string, opts ...etcd.OpOption) (*WatcherInfo, error) {
	if obj.client == nil {
		return nil, fmt.Errorf("client is nil") // extra safety!
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	eventsChan := make(chan *WatcherData)

	var count uint8
	wg := &sync.WaitGroup{}
	count++
	wg.Add(1)

	wOpts := []etcd.OpOption{
		etcd.WithCreatedNotify(),
	}
	wOpts = append(wOpts, opts...)
	var err error

	obj.wg.Add(1)
	go func() {
		defer obj.wg.Done()
		defer close(eventsChan)
		defer cancel() // it's safe to cancel() more than once!
		ch := obj.w.Watch(cancelCtx, path, wOpts...)
		for {
			var resp etcd.WatchResponse
			var ok bool
			var created bool
			select {
			case resp, ok = <-ch:
				if !ok {
					if count > 0 { // closed before startup
						err = fmt.Errorf("watch closed")
						count--
						wg.Done()
					}
					return
				}

				if count > 0 && resp.Created {
					created = true
					count--
					wg.Done()
				}

				isCanceled := resp.Canceled || resp.Err() == context.Canceled
				if resp.Header.Revision == 0 { // by inspection
					if obj.Debug {
						obj.logf("watch: received empty message") // switched client connection
					}
					isCanceled = true
				}

				if isCanceled {
					data := &WatcherData{
						Err: context.Canceled,
					}
					select {
					case eventsChan <- data:
					case <-ctx.Done():
						return
					}
					continue // channel should close shortly
				}
			}

			data := &WatcherData{
				Created: created,
				Path:    path,
				Header:  resp.Header,
				Events:  resp.Events,
				Err:     resp.Err(),
			}

			select {
			case eventsChan <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait() // wait for created event before we return

	return &WatcherInfo{
		Cancel: cancel,
		Events: eventsChan,
	}, err
}
