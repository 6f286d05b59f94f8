package store

import (
	"context"
	"errors"
	"testing"
)

func TestRetryRunsTwiceOnTransientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryGivesUpAfterSecondFailure(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("expected boom after 2 calls, got %v after %d", err, calls)
	}
}

func TestRetryDoesNotRepeatDomainOutcomes(t *testing.T) {
	for _, domainErr := range []error{ErrNotFound, ErrConflict} {
		calls := 0
		_, err := RetryValue(context.Background(), func(context.Context) (int, error) {
			calls++
			return 0, domainErr
		})
		if !errors.Is(err, domainErr) || calls != 1 {
			t.Fatalf("expected %v after 1 call, got %v after %d", domainErr, err, calls)
		}
	}
}

func TestDualKeyIsOrderIndependent(t *testing.T) {
	if DualKey(3, 7) != DualKey(7, 3) {
		t.Fatalf("dual key depends on order: %s vs %s", DualKey(3, 7), DualKey(7, 3))
	}
	if DualKey(3, 7) != "dual:3:7" {
		t.Fatalf("unexpected dual key %s", DualKey(3, 7))
	}
}
