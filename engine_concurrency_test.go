package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// Two requests presenting the same backup code at the same time must not
// both authenticate; the per-user lock serializes the read-modify-write.
func TestConcurrentBackupCodeSingleWinner(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	_, backupCodes := enrollTwoFactor(t, engine, "user-alice")
	code := backupCodes[0]

	pendings := make([]string, 2)
	for i := range pendings {
		login, err := engine.Login(ctx, "alice", testPassword, testDevice())
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		pendings[i] = login.PendingToken
	}

	var wg sync.WaitGroup
	results := make([]error, len(pendings))
	for i := range pendings {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.VerifyTwoFactor(ctx, pendings[i], code, testDevice())
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrInvalidTwoFactorCode) {
			t.Fatalf("request %d: got %v, want ErrInvalidTwoFactorCode", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}

// Concurrent rotations of the same refresh secret race through the store's
// compare-and-swap; exactly one may win.
func TestConcurrentRefreshSingleWinner(t *testing.T) {
	engine, directory := newTestEngine(t)
	addUser(t, engine, directory, "user-alice", "alice")
	ctx := context.Background()

	login, err := engine.Login(ctx, "alice", testPassword, testDevice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.Refresh(ctx, login.RefreshSecret, testDevice())
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrRefreshReuse) && !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("request %d: got %v, want reuse or not-found", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
}
