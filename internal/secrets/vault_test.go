package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	v, err := NewVault(testKey(7))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := v.Seal([]byte(`{"api_key":"k"}`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != `{"api_key":"k"}` {
		t.Fatalf("Open = %s", got)
	}
}

func TestOpenWrongKey(t *testing.T) {
	t.Parallel()
	a, _ := NewVault(testKey(1))
	b, _ := NewVault(testKey(2))
	sealed, _ := a.Seal([]byte("x"))
	if _, err := b.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
	if _, err := a.Open([]byte("short")); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestVaultKeyErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewVault("c2hvcnQ="); !errors.Is(err, ErrBadKey) {
		t.Fatalf("err = %v, want ErrBadKey", err)
	}
	v, err := NewVault("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Open([]byte("x")); !errors.Is(err, ErrNoKey) {
		t.Fatalf("err = %v, want ErrNoKey", err)
	}
}
