package secrets

// StoredSecret resolves the legacy-plaintext question once, at the storage
// boundary, instead of shape-sniffing at every call site. A value read from
// the database is classified exactly once; consumers then only deal with
// the revealed plaintext.
type StoredSecret struct {
	value     string
	encrypted bool
}

// Classify wraps a raw stored value as either an encrypted envelope or a
// legacy plaintext secret based on its shape.
func Classify(value string) StoredSecret {
	return StoredSecret{value: value, encrypted: IsEncrypted(value)}
}

// Encrypted reports whether the stored value is an envelope.
func (s StoredSecret) Encrypted() bool { return s.encrypted }

// Raw returns the stored value as-is (envelope or plaintext).
func (s StoredSecret) Raw() string { return s.value }

// Reveal returns the plaintext secret, decrypting when necessary.
func (s StoredSecret) Reveal(c *Cipher) (string, error) {
	if !s.encrypted {
		return s.value, nil
	}
	return c.Decrypt(s.value)
}
