package gateways

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

func writePublicKey(t *testing.T, entity *openpgp.Entity, path string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, "PGP PUBLIC KEY BLOCK", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestSignatureVerifier(t *testing.T) {
	dir := t.TempDir()
	signer, err := openpgp.NewEntity("Policy Signer", "", "signer@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	keyring := filepath.Join(dir, "keyring.asc")
	writePublicKey(t, signer, keyring)

	policy := []byte("activePolicySet: strict\n")
	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(policy), nil); err != nil {
		t.Fatal(err)
	}

	v, err := NewSignatureVerifier(keyring)
	if err != nil {
		t.Fatalf("NewSignatureVerifier() error = %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"signed content", policy, false},
		{"tampered content", []byte("activePolicySet: lenient\n"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.data, sig.Bytes())
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSignatureVerifier_MissingKeyring(t *testing.T) {
	if _, err := NewSignatureVerifier(filepath.Join(t.TempDir(), "missing.asc")); err == nil {
		t.Error("expected an error for a missing keyring")
	}
}
