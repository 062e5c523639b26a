package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"transfers/internal/store"
)

func TestTransferScenario(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	accountA, err := service.CreateAccount(ctx, "alice", 100000)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	accountB, err := service.CreateAccount(ctx, "bob", 50000)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	// transfer 200.00 completes and moves exactly the amount
	first, replayed, err := service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 20000, IdempotencyKey: "K1",
	})
	if err != nil || replayed {
		t.Fatalf("first transfer: err=%v replayed=%v", err, replayed)
	}
	if first.Status != store.TransferStatusCompleted || first.Amount != "200.00" {
		t.Fatalf("unexpected result: %#v", first)
	}
	if got := state.balance(accountA.ID); got != 80000 {
		t.Fatalf("alice balance = %d, want 80000", got)
	}
	if got := state.balance(accountB.ID); got != 70000 {
		t.Fatalf("bob balance = %d, want 70000", got)
	}

	// overdraw is rejected and balances stay put
	_, _, err = service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 150000, IdempotencyKey: "K2",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if state.balance(accountA.ID) != 80000 || state.balance(accountB.ID) != 70000 {
		t.Fatal("balances moved on a rejected transfer")
	}

	// replaying K1 returns the identical result without re-debiting
	second, replayed, err := service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 20000, IdempotencyKey: "K1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replayed {
		t.Fatal("expected replay")
	}
	if second.TransferID != first.TransferID || second.Reference != first.Reference {
		t.Fatalf("replay produced a different transfer: %#v vs %#v", second, first)
	}
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("replay not byte-identical:\n%s\n%s", firstJSON, secondJSON)
	}
	if state.balance(accountA.ID) != 80000 || state.balance(accountB.ID) != 70000 {
		t.Fatal("replay moved balances")
	}

	// the failed K2 attempt is retryable with an amount that fits
	retry, replayed, err := service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 10000, IdempotencyKey: "K2",
	})
	if err != nil || replayed {
		t.Fatalf("retry after failure: err=%v replayed=%v", err, replayed)
	}
	if retry.Status != store.TransferStatusCompleted {
		t.Fatalf("unexpected retry result: %#v", retry)
	}
}

func TestAdmissionExclusivity(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	if _, err := service.CreateAccount(ctx, "alice", 100000); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "bob", 0); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed, conflicted, replayedCount int
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, replayed, err := service.ProcessTransfer(ctx, TransferRequest{
				FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 20000, IdempotencyKey: "K-shared",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && replayed:
				replayedCount++
			case err == nil:
				completed++
			case errors.Is(err, ErrKeyInFlight):
				conflicted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if completed != 1 {
		t.Fatalf("expected exactly one winning attempt, got %d", completed)
	}
	if completed+conflicted+replayedCount != callers {
		t.Fatalf("lost callers: completed=%d conflicted=%d replayed=%d", completed, conflicted, replayedCount)
	}
	// the balance moved exactly once
	aliceID := state.byOwner["alice"]
	if got := state.balance(aliceID); got != 80000 {
		t.Fatalf("alice balance = %d, want 80000", got)
	}
}

func TestConcurrentOverdrawKeepsTotalConstant(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	for _, owner := range []string{"alice", "r1", "r2"} {
		balance := int64(0)
		if owner == "alice" {
			balance = 100000
		}
		if _, err := service.CreateAccount(ctx, owner, balance); err != nil {
			t.Fatalf("create %s: %v", owner, err)
		}
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, dest := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			_, _, err := service.ProcessTransfer(ctx, TransferRequest{
				FromOwnerID: "alice", ToOwnerID: dest, AmountMinor: 60000,
				IdempotencyKey: "K-" + dest,
			})
			results[i] = err
		}(i, dest)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures == 0 {
		t.Fatal("both overdrawing transfers completed")
	}

	total := state.balance(state.byOwner["alice"]) +
		state.balance(state.byOwner["r1"]) +
		state.balance(state.byOwner["r2"])
	if total != 100000 {
		t.Fatalf("total balance = %d, want 100000", total)
	}
	if state.balance(state.byOwner["alice"]) < 0 {
		t.Fatal("negative balance observed")
	}
}

func TestOpposingTransfersBothComplete(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	if _, err := service.CreateAccount(ctx, "alice", 50000); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "bob", 50000); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	done := make(chan error, 2)
	go func() {
		_, _, err := service.ProcessTransfer(ctx, TransferRequest{
			FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 10000, IdempotencyKey: "K-ab",
		})
		done <- err
	}()
	go func() {
		_, _, err := service.ProcessTransfer(ctx, TransferRequest{
			FromOwnerID: "bob", ToOwnerID: "alice", AmountMinor: 5000, IdempotencyKey: "K-ba",
		})
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("opposing transfer failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("opposing transfers did not both complete")
		}
	}

	if state.balance(state.byOwner["alice"]) != 45000 {
		t.Fatalf("alice balance = %d, want 45000", state.balance(state.byOwner["alice"]))
	}
	if state.balance(state.byOwner["bob"]) != 55000 {
		t.Fatalf("bob balance = %d, want 55000", state.balance(state.byOwner["bob"]))
	}
}

func TestGetTransferAfterCompletion(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	if _, err := service.CreateAccount(ctx, "alice", 100000); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "bob", 0); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	result, _, err := service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 20000, IdempotencyKey: "K1",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	row, err := service.GetTransfer(ctx, result.TransferID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if row.Status != store.TransferStatusCompleted || row.Reference != result.Reference {
		t.Fatalf("unexpected row: %#v", row)
	}

	if _, err := service.GetTransfer(ctx, "missing"); !errors.Is(err, ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}
}

func TestReconcileAccountDifferenceIsInitialFunding(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	service := newMemService(state)

	if _, err := service.CreateAccount(ctx, "alice", 100000); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "bob", 0); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if _, _, err := service.ProcessTransfer(ctx, TransferRequest{
		FromOwnerID: "alice", ToOwnerID: "bob", AmountMinor: 20000, IdempotencyKey: "K1",
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	report, err := service.ReconcileAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.StoredBalance != 80000 || report.LedgerSum != -20000 {
		t.Fatalf("unexpected report: %#v", report)
	}
	// stored balance minus ledger movement is exactly the initial funding
	if report.Difference != 100000 {
		t.Fatalf("unexpected difference: %d", report.Difference)
	}

	if _, err := service.ReconcileAccount(ctx, "nobody"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCreateAccountDuplicateOwner(t *testing.T) {
	ctx := context.Background()
	service := newMemService(newMemState())
	if _, err := service.CreateAccount(ctx, "alice", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := service.CreateAccount(ctx, "alice", 0)
	if !errors.Is(err, ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}
}

func TestCreateAccountNegativeBalance(t *testing.T) {
	service := newMemService(newMemState())
	_, err := service.CreateAccount(context.Background(), "alice", -1)
	if !errors.Is(err, ErrNegativeInitialBalance) {
		t.Fatalf("expected ErrNegativeInitialBalance, got %v", err)
	}
}

func TestGetAccountMissing(t *testing.T) {
	service := newMemService(newMemState())
	_, err := service.GetAccount(context.Background(), "nobody")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestListTransfersUnknownOwner(t *testing.T) {
	service := newMemService(newMemState())
	_, err := service.ListTransfers(context.Background(), "nobody", 10)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
