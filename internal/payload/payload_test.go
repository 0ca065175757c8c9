package payload

import (
	"errors"
	"testing"

	"starfleet/internal/resolve"
)

func TestNewBuilder_RejectsUnserializableConfig(t *testing.T) {
	_, err := NewBuilder("echo", "run-1", map[string]any{"bad": make(chan int)})
	if !errors.Is(err, ErrConfigNotSerializable) {
		t.Fatalf("expected ErrConfigNotSerializable, got %v", err)
	}
}

func TestBuild_SnapshotIsIsolatedPerInvocation(t *testing.T) {
	config := map[string]any{
		"commit": true,
		"nested": map[string]any{"key": "value"},
	}
	b, err := NewBuilder("echo", "run-1", config)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	// Mutating the original config after construction must not leak into
	// built invocations.
	config["commit"] = false
	config["nested"].(map[string]any)["key"] = "mutated"

	target := resolve.Target{AccountID: "111111111111", Region: "us-east-1"}
	first := b.Build(target, 1)
	if first.Config["commit"] != true {
		t.Fatalf("config snapshot leaked post-construction mutation: %+v", first.Config)
	}
	if first.Config["nested"].(map[string]any)["key"] != "value" {
		t.Fatalf("nested config snapshot leaked mutation: %+v", first.Config)
	}

	// Mutating one invocation's config must not affect another's.
	first.Config["nested"].(map[string]any)["key"] = "scribbled"
	second := b.Build(target, 2)
	if second.Config["nested"].(map[string]any)["key"] != "value" {
		t.Fatalf("invocations share config state: %+v", second.Config)
	}
}

func TestBuild_IdentityFields(t *testing.T) {
	b, err := NewBuilder("inventory", "run-9", nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	target := resolve.Target{AccountID: "222222222222", Region: "eu-west-1"}
	inv := b.Build(target, 3)

	if inv.Worker != "inventory" || inv.RunID != "run-9" {
		t.Fatalf("unexpected identity: %+v", inv)
	}
	if inv.AccountID != "222222222222" || inv.Region != "eu-west-1" || inv.Attempt != 3 {
		t.Fatalf("unexpected target/attempt: %+v", inv)
	}
	if inv.Target() != "222222222222/eu-west-1" {
		t.Fatalf("Target() = %q", inv.Target())
	}
	if inv.ID == "" {
		t.Fatal("invocation ID must be set")
	}

	other := b.Build(target, 4)
	if other.ID == inv.ID {
		t.Fatal("each attempt must get a fresh invocation ID")
	}
}
