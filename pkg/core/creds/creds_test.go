package creds

import (
	"path/filepath"
	"testing"

	"github.com/parley-ai/parley/pkg/core"
)

func TestGate_AbsentByDefault(t *testing.T) {
	gate := NewGate(NewMapStore())

	if gate.Present() {
		t.Fatal("fresh gate should report credentials absent")
	}

	_, err := gate.Get()
	if !core.IsType(err, core.ErrMissingCredentials) {
		t.Fatalf("Get() error = %v, want missing_credentials", err)
	}
}

func TestGate_PartialCredentialsAreAbsent(t *testing.T) {
	store := NewMapStore()
	store.Set(KeyCompletion, "sk-test")
	gate := NewGate(store)

	if gate.Present() {
		t.Fatal("gate with only the completion key should report absent")
	}
}

func TestGate_SetThenGet(t *testing.T) {
	gate := NewGate(NewMapStore())

	want := Credentials{CompletionKey: "sk-test", SynthesisKey: "el-test"}
	if err := gate.Set(want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !gate.Present() {
		t.Fatal("gate should report credentials present after Set")
	}
	got, err := gate.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestGate_BlankKeysAreAbsent(t *testing.T) {
	store := NewMapStore()
	store.Set(KeyCompletion, "  ")
	store.Set(KeySynthesis, "el-test")
	gate := NewGate(store)

	if gate.Present() {
		t.Fatal("whitespace-only key should count as absent")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)

	if _, ok := store.Get(KeyCompletion); ok {
		t.Fatal("missing file should read as absent")
	}

	if err := store.Set(KeyCompletion, "sk-test"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(KeySynthesis, "el-test"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A fresh store over the same file sees the persisted values.
	reopened := NewFileStore(path)
	if v, ok := reopened.Get(KeyCompletion); !ok || v != "sk-test" {
		t.Errorf("Get(%s) = %q, %v", KeyCompletion, v, ok)
	}
	if v, ok := reopened.Get(KeySynthesis); !ok || v != "el-test" {
		t.Errorf("Get(%s) = %q, %v", KeySynthesis, v, ok)
	}
}

func TestFileStore_GateIntegration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	gate := NewGate(NewFileStore(path))

	if gate.Present() {
		t.Fatal("gate over empty file store should report absent")
	}
	if err := gate.Set(Credentials{CompletionKey: "a", SynthesisKey: "b"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !NewGate(NewFileStore(path)).Present() {
		t.Fatal("persisted credentials should survive reopening the store")
	}
}
