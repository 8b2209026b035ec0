package veaauth

// EncryptSensitiveData seals plaintext with AES-256-GCM. The result has the
// form hex(iv):hex(tag):hex(ciphertext).
func (e *Engine) EncryptSensitiveData(plaintext string) (string, error) {
	if e == nil || e.cipher == nil {
		return "", ErrEngineNotReady
	}
	return e.cipher.Encrypt(plaintext)
}

// DecryptSensitiveData opens a payload produced by EncryptSensitiveData.
// Malformed input yields ErrInvalidFormat, tampering ErrAuthenticationFailed.
func (e *Engine) DecryptSensitiveData(payload string) (string, error) {
	if e == nil || e.cipher == nil {
		return "", ErrEngineNotReady
	}
	return e.cipher.Decrypt(payload)
}
