package security

import (
	"context"
	"errors"
	"sync"
	"testing"
)

var denyAll = PolicyConfig{Default: AccessDeny}

type testKey struct{}

func TestIsBypassed_Default(t *testing.T) {
	if IsBypassed(context.Background()) {
		t.Error("background context must not be bypassed")
	}
}

func TestRunWithBypass_ScopedToCallTree(t *testing.T) {
	ctx := context.Background()

	got, err := RunWithBypass(ctx, func(inner context.Context) (string, error) {
		if !IsBypassed(inner) {
			t.Error("bypass should be active inside")
		}
		if err := Authorize(inner, "t", denyAll); err != nil {
			t.Errorf("Authorize inside bypass = %v", err)
		}
		nested := context.WithValue(inner, testKey{}, "derived")
		if !IsBypassed(nested) {
			t.Error("derived contexts inherit bypass")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("RunWithBypass = %q, %v", got, err)
	}
	if IsBypassed(ctx) {
		t.Error("bypass leaked to caller")
	}
}

func TestRunWithBypass_ErrorRestores(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := RunWithBypass(ctx, func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if IsBypassed(ctx) {
		t.Error("bypass active after failing task")
	}
	if Authorize(ctx, "t", denyAll) == nil {
		t.Error("authorization must apply after bypass returns")
	}
}

func TestRunWithBypass_PanicRestores(t *testing.T) {
	ctx := context.Background()
	func() {
		defer func() { _ = recover() }()
		_, _ = RunWithBypass(ctx, func(context.Context) (int, error) { panic("boom") })
	}()
	if IsBypassed(ctx) {
		t.Error("bypass active after panicking task")
	}
}

func TestEnforce_InsideBypass(t *testing.T) {
	_, _ = RunWithBypass(context.Background(), func(ctx context.Context) (struct{}, error) {
		if err := Authorize(Enforce(ctx), "t", denyAll); !errors.Is(err, ErrPolicyDenied) {
			t.Errorf("Enforce should re-enable policy, got %v", err)
		}
		return struct{}{}, nil
	})
}

func TestRunWithBypass_ConcurrentIsolation(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = RunWithBypass(ctx, func(inner context.Context) (struct{}, error) {
			close(entered)
			<-release
			if err := Authorize(inner, "t", denyAll); err != nil {
				t.Errorf("bypassed goroutine denied: %v", err)
			}
			return struct{}{}, nil
		})
	}()

	go func() {
		defer wg.Done()
		<-entered
		// Runs while the other goroutine is inside its bypass.
		if err := Authorize(ctx, "t", denyAll); !errors.Is(err, ErrPolicyDenied) {
			t.Errorf("unrelated goroutine saw bypass: %v", err)
		}
		close(release)
	}()

	wg.Wait()
}
