package gpg

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// newSigner generates a throwaway key pair and writes its public key to dir
func newSigner(t *testing.T, dir string) (*openpgp.Entity, string) {
	t.Helper()

	entity, err := openpgp.NewEntity("Policy Signer", "test", "signer@example.com", nil)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}

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

	keyPath := filepath.Join(dir, "signer.asc")
	if err := os.WriteFile(keyPath, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	return entity, keyPath
}

func signFile(t *testing.T, signer *openpgp.Entity, dataPath string, armored bool) string {
	t.Helper()

	data, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatal(err)
	}

	var sig bytes.Buffer
	if armored {
		err = openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(data), nil)
	} else {
		err = openpgp.DetachSign(&sig, signer, bytes.NewReader(data), nil)
	}
	if err != nil {
		t.Fatalf("sign error = %v", err)
	}

	sigPath := dataPath + ".sig"
	if armored {
		sigPath = dataPath + ".asc"
	}
	if err := os.WriteFile(sigPath, sig.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	return sigPath
}

func TestVerifier_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	signer, keyPath := newSigner(t, dir)

	dataPath := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(dataPath, []byte("activePolicySet: default\n"), 0600); err != nil {
		t.Fatal(err)
	}

	v := NewVerifier()
	if err := v.ImportKeyFromFile(keyPath); err != nil {
		t.Fatalf("ImportKeyFromFile() error = %v", err)
	}
	if v.GetKeyringSize() != 1 {
		t.Errorf("keyring size = %d, want 1", v.GetKeyringSize())
	}

	for _, armored := range []bool{true, false} {
		sigPath := signFile(t, signer, dataPath, armored)
		if err := v.VerifySignatureFromFile(dataPath, sigPath); err != nil {
			t.Errorf("VerifySignatureFromFile(armored=%v) error = %v", armored, err)
		}
	}

	// Tampering must be detected
	sigPath := signFile(t, signer, dataPath, true)
	if err := os.WriteFile(dataPath, []byte("activePolicySet: lax\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.VerifySignatureFromFile(dataPath, sigPath); err == nil {
		t.Error("expected verification failure for modified content")
	}
}

func TestVerifier_ImportKeyFromFile_NonexistentFile(t *testing.T) {
	v := NewVerifier()

	err := v.ImportKeyFromFile("/nonexistent/key.asc")
	if err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to open key file") {
		t.Errorf("Expected 'failed to open key file' error, got: %v", err)
	}
}

func TestVerifier_ImportKeyFromFile_InvalidKey(t *testing.T) {
	v := NewVerifier()
	keyPath := filepath.Join(t.TempDir(), "empty.asc")
	if err := os.WriteFile(keyPath, []byte("not a gpg key"), 0600); err != nil {
		t.Fatal(err)
	}

	err := v.ImportKeyFromFile(keyPath)
	if err == nil {
		t.Fatal("Expected error for invalid key file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read key") {
		t.Errorf("Expected 'failed to read key' error, got: %v", err)
	}
}

func TestVerifier_VerifySignatureFromFile_NoKeysImported(t *testing.T) {
	v := NewVerifier()

	err := v.VerifySignatureFromFile("/some/file", "/some/file.sig")
	if err == nil {
		t.Fatal("Expected error when no keys imported, got nil")
	}
	if !strings.Contains(err.Error(), "no GPG keys imported") {
		t.Errorf("Expected 'no GPG keys imported' error, got: %v", err)
	}
}

func TestVerifier_VerifySignatureFromFile_NonexistentFiles(t *testing.T) {
	dir := t.TempDir()
	_, keyPath := newSigner(t, dir)

	v := NewVerifier()
	if err := v.ImportKeyFromFile(keyPath); err != nil {
		t.Fatal(err)
	}

	if err := v.VerifySignatureFromFile(filepath.Join(dir, "data"), filepath.Join(dir, "missing.sig")); err == nil ||
		!strings.Contains(err.Error(), "failed to open signature file") {
		t.Errorf("unexpected error for missing signature: %v", err)
	}

	sigPath := filepath.Join(dir, "present.sig")
	if err := os.WriteFile(sigPath, []byte("sig"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.VerifySignatureFromFile(filepath.Join(dir, "missing"), sigPath); err == nil ||
		!strings.Contains(err.Error(), "failed to open data file") {
		t.Errorf("unexpected error for missing data file: %v", err)
	}
}
