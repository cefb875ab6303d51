/*
Package auth hashes and verifies passwords with bcrypt, offloading the
CPU-bound KDF work to a bounded worker pool; the calling goroutine (a
connection's ProcessLoop) waits for the result. Verify failures are reported uniformly, without
disclosing whether the username or the password was wrong.
*/
package auth

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor, raised above bcrypt.DefaultCost (10) for
// a work factor suitable for interactive login.
const Cost = 12

// ErrMismatch is returned by Verify when the password doesn't match the
// hash. Callers must not distinguish this from "user not found" in any
// response sent to a peer.
var ErrMismatch = bcrypt.ErrMismatchedHashAndPassword

// job is one unit of KDF work submitted to the Pool.
type job struct {
	run  func() (string, error)
	done chan result
}

type result struct {
	hash string
	err  error
}

// Pool bounds concurrent bcrypt work to runtime.GOMAXPROCS(0) workers, so a
// burst of logins can't starve the rest of the server's goroutines of CPU.
type Pool struct {
	jobs chan job
	done chan struct{}
}

// NewPool starts a Pool sized to the available CPUs.
func NewPool() *Pool {
	p := &Pool{
		jobs: make(chan job),
		done: make(chan struct{}),
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	for {
		select {
		case j := <-p.jobs:
			hash, err := j.run()
			j.done <- result{hash: hash, err: err}
		case <-p.done:
			return
		}
	}
}

// Shutdown stops all workers. In-flight submissions already read off the
// jobs channel still complete. A submission made after this returns usually
// fails with a shutdown error, but one may still be picked up by a worker
// that has not yet seen the shutdown.
func (p *Pool) Shutdown() {
	close(p.done)
}

// Hash computes a bcrypt hash for password, off the calling goroutine.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	return p.submit(ctx, func() (string, error) {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
		return string(hash), err
	})
}

// Verify compares password against hash. Returns ErrMismatch on failure;
// callers must map this to the single invalid_username_password error token
// without revealing which of username/password was wrong.
func (p *Pool) Verify(ctx context.Context, hash, password string) error {
	_, err := p.submit(ctx, func() (string, error) {
		return "", bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	})
	return err
}

func (p *Pool) submit(ctx context.Context, run func() (string, error)) (string, error) {
	j := job{run: run, done: make(chan result, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", errors.New("auth: pool shut down")
	}

	select {
	case r := <-j.done:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
