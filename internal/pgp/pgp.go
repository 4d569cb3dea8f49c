// Package pgp verifies detached PGP signatures on the target's release
// archive, after the digest check and before unpacking.
package pgp

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// MaxKeySize bounds how large an embedded/cached public key may be.
const MaxKeySize = 100 * 1024

// ParseFingerprint normalizes a fingerprint by removing spaces and
// uppercasing it. Returns an error if the result isn't 40 hex characters.
func ParseFingerprint(fp string) (string, error) {
	fp = strings.ToUpper(strings.ReplaceAll(fp, " ", ""))
	if len(fp) != 40 {
		return "", fmt.Errorf("fingerprint must be 40 hex characters, got %d", len(fp))
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return "", fmt.Errorf("fingerprint contains invalid hex characters: %w", err)
	}
	return fp, nil
}

// LoadKey parses an armored public key and checks it against the
// expected fingerprint.
func LoadKey(armoredKey, expectedFingerprint string) (*crypto.Key, error) {
	if len(armoredKey) > MaxKeySize {
		return nil, fmt.Errorf("key exceeds maximum size of %d bytes", MaxKeySize)
	}
	key, err := crypto.NewKeyFromArmored(armoredKey)
	if err != nil {
		return nil, fmt.Errorf("parse PGP key: %w", err)
	}
	expected, err := ParseFingerprint(expectedFingerprint)
	if err != nil {
		return nil, err
	}
	got := strings.ToUpper(key.GetFingerprint())
	if got != expected {
		return nil, fmt.Errorf("key fingerprint mismatch: expected %s, got %s", expected, got)
	}
	return key, nil
}

// VerifyDetached verifies a detached signature (armored or binary) over
// the contents of filePath using key.
func VerifyDetached(filePath string, signatureData []byte, key *crypto.Key) error {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read file for signature verification: %w", err)
	}

	signature, err := crypto.NewPGPSignatureFromArmored(string(signatureData))
	if err != nil {
		signature = crypto.NewPGPSignature(signatureData)
	}

	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		return fmt.Errorf("build keyring: %w", err)
	}

	message := crypto.NewPlainMessage(fileData)
	// verifyTime 0 accepts signatures regardless of creation time; the
	// archive digest (checked separately) is what binds content to plan.
	if err := keyRing.VerifyDetached(message, signature, 0); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// FormatFingerprint renders a 40-character fingerprint as groups of 4
// hex digits, the conventional GPG display format.
func FormatFingerprint(fp string) string {
	fp = strings.ToUpper(strings.ReplaceAll(fp, " ", ""))
	if len(fp) != 40 {
		return fp
	}
	var parts []string
	for i := 0; i < 40; i += 4 {
		parts = append(parts, fp[i:i+4])
	}
	return strings.Join(parts, " ")
}
