package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestSpawnCleanExitFiresDoneOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sup, err := Spawn(ctx, arbor.NewLogger(), []string{"echo", "hello"}, nil)
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if sup.Pid() == 0 {
		t.Fatal("expected a nonzero pid after successful spawn")
	}

	select {
	case outcome := <-sup.Done():
		if outcome.Err != nil {
			t.Fatalf("expected clean exit, got %v", outcome.Err)
		}
		if outcome.ExitCode != 0 {
			t.Fatalf("expected exit code 0, got %d", outcome.ExitCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not signal completion")
	}

	if sup.State() != StateExitedClean {
		t.Fatalf("expected StateExitedClean, got %v", sup.State())
	}
}

func TestSpawnMissingExecutableFailsImmediately(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Spawn(ctx, arbor.NewLogger(), []string{"definitely-not-a-real-binary-xyz"}, nil)
	if err == nil {
		t.Fatal("expected spawn error for missing executable")
	}
}
