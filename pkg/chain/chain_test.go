package chain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/facto-ai/facto/pkg/crypto"
)

func TestChain_AppendAdvancesHead(t *testing.T) {
	c := New()
	if c.LastHash() != crypto.ZeroHash {
		t.Fatalf("new chain head = %s, want zero hash", c.LastHash())
	}

	err := c.Append(func(prevHash string) (string, error) {
		if prevHash != crypto.ZeroHash {
			t.Errorf("first append prevHash = %s, want zero hash", prevHash)
		}
		return "h1", nil
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.LastHash() != "h1" {
		t.Errorf("head = %s, want h1", c.LastHash())
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestChain_FailedBuildDoesNotAdvance(t *testing.T) {
	c := New()
	err := c.Append(func(prevHash string) (string, error) {
		return "", fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if c.LastHash() != crypto.ZeroHash {
		t.Error("failed build must not advance the chain")
	}
	if c.Len() != 0 {
		t.Error("failed build must not increment length")
	}
}

func TestChain_ConcurrentAppendsSerialize(t *testing.T) {
	c := New()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Append(func(prevHash string) (string, error) {
				return fmt.Sprintf("h-%s-%d", prevHash, i), nil
			})
		}(i)
	}
	wg.Wait()
	if c.Len() != n {
		t.Errorf("len = %d, want %d", c.Len(), n)
	}
}

func TestValidateOrder_LinearChainValid(t *testing.T) {
	entries := []LinkEntry{
		{EventHash: "h1", PrevHash: crypto.ZeroHash, CompletedAt: 1},
		{EventHash: "h2", PrevHash: "h1", CompletedAt: 2},
		{EventHash: "h3", PrevHash: "h2", CompletedAt: 3},
	}
	// shuffle input order; ValidateOrder must not depend on slice order
	shuffled := []LinkEntry{entries[2], entries[0], entries[1]}
	if err := ValidateOrder(shuffled); err != nil {
		t.Errorf("ValidateOrder: %v", err)
	}
}

func TestValidateOrder_TiedCompletedAtLinkedIsValid(t *testing.T) {
	entries := []LinkEntry{
		{EventHash: "h1", PrevHash: crypto.ZeroHash, CompletedAt: 5},
		{EventHash: "h2", PrevHash: "h1", CompletedAt: 5},
	}
	if err := ValidateOrder(entries); err != nil {
		t.Errorf("ValidateOrder: %v", err)
	}
}

func TestValidateOrder_DisjointChainInvalid(t *testing.T) {
	entries := []LinkEntry{
		{EventHash: "h1", PrevHash: crypto.ZeroHash, CompletedAt: 1},
		{EventHash: "x1", PrevHash: crypto.ZeroHash, CompletedAt: 1},
	}
	if err := ValidateOrder(entries); err == nil {
		t.Error("expected error for two events sharing prev_hash")
	}
}

func TestValidateOrder_BrokenLinkInvalid(t *testing.T) {
	entries := []LinkEntry{
		{EventHash: "h1", PrevHash: crypto.ZeroHash, CompletedAt: 1},
		{EventHash: "h3", PrevHash: "h2", CompletedAt: 2}, // h2 never existed
	}
	if err := ValidateOrder(entries); err == nil {
		t.Error("expected error for broken prev_hash link")
	}
}
