package auth

import (
	"context"
	"testing"
	"time"
)

func TestHashThenVerifySucceeds(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hash, err := p.Hash(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if err := p.Verify(ctx, hash, "correct horse battery staple"); err != nil {
		t.Fatalf("Verify of correct password failed: %v", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hash, err := p.Hash(ctx, "right-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if err := p.Verify(ctx, hash, "wrong-password"); err != ErrMismatch {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestPoolHandlesConcurrentLogins(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := p.Hash(ctx, "concurrent-password")
			errs <- err
		}()
	}

	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Hash failed: %v", err)
		}
	}
}
