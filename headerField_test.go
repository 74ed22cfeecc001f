package http2

import "testing"

func TestHeaderFieldSetAndGet(t *testing.T) {
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.Set("content-type", "text/plain")

	if hf.Name() != "content-type" {
		t.Fatalf("name = %q, want content-type", hf.Name())
	}
	if hf.Value() != "text/plain" {
		t.Fatalf("value = %q, want text/plain", hf.Value())
	}
	if hf.Empty() {
		t.Fatal("expected Empty() = false")
	}
}

func TestHeaderFieldReset(t *testing.T) {
	hf := &HeaderField{}
	hf.Set("x-a", "1")
	hf.SetSensible(true)
	hf.Reset()

	if !hf.Empty() {
		t.Fatal("expected Empty() = true after Reset")
	}
	if hf.IsSensible() {
		t.Fatal("expected IsSensible() = false after Reset")
	}
}

func TestHeaderFieldIsPseudo(t *testing.T) {
	hf := &HeaderField{}
	hf.SetName(":path")
	if !hf.IsPseudo() {
		t.Fatal("expected :path to be a pseudo-header")
	}

	hf.SetName("content-type")
	if hf.IsPseudo() {
		t.Fatal("expected content-type to not be a pseudo-header")
	}
}

func TestHeaderFieldSize(t *testing.T) {
	hf := &HeaderField{}
	hf.Set("ab", "cde")

	if want := 2 + 3 + 32; hf.Size() != want {
		t.Fatalf("size = %d, want %d", hf.Size(), want)
	}
}

func TestHeaderFieldCopyToDoesNotAlias(t *testing.T) {
	hf := &HeaderField{}
	hf.Set("x-a", "1")

	other := &HeaderField{}
	hf.CopyTo(other)

	hf.Set("x-a", "changed")
	if other.Value() != "1" {
		t.Fatal("CopyTo aliased the value slice")
	}
}

func TestHeaderFieldString(t *testing.T) {
	hf := &HeaderField{}
	hf.Set("x-a", "1")

	if got, want := hf.String(), "x-a: 1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
