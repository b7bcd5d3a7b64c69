package ucc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keyLen  = chacha20poly1305.KeySize
)

// Mode selects salt handling (spec §4.2 "Key derivation").
type Mode int

const (
	ModePerMessageSalt Mode = iota
	ModeFixedSalt
)

// Cipher encrypts/decrypts capability payloads. It never panics and
// never returns an error from its public surface: every failure
// collapses to the empty string, per the component's never-throw
// contract.
type Cipher struct {
	mode     Mode
	password []byte

	mu          sync.Mutex
	cachedSalt  [saltSize]byte
	cachedKey   []byte
	cachedValid bool
}

// NewCipher derives its behavior from cmn.UCCConf: secret is either the
// raw password or, when SecretSource is "file_path", the caller has
// already resolved it to the SHA-256 of the file's contents before
// calling in (resolution of secret_source lives at the config-loading
// boundary, not inside ucc).
func NewCipher(mode Mode, secret string) *Cipher {
	c := &Cipher{mode: mode, password: []byte(secret)}
	if mode == ModeFixedSalt {
		sum := sha256.Sum256(c.password)
		copy(c.cachedSalt[:], sum[:saltSize])
	}
	return c
}

// Encrypt implements the encrypt contract of spec §4.2, returning the
// "cap.sym=...&cap.msg=..." query string.
func (c *Cipher) Encrypt(plaintext []byte) string {
	h := &header{version: version, kdfID: kdfID, aeadID: aeadID, scryptN: scryptN, scryptR: scryptR, scryptP: scryptP}

	switch c.mode {
	case ModeFixedSalt:
		h.salt = c.cachedSalt
	default:
		if _, err := rand.Read(h.salt[:]); err != nil {
			return ""
		}
	}
	if _, err := rand.Read(h.nonce[:]); err != nil {
		return ""
	}

	key, zero := c.deriveKey(h.salt)
	defer zero()
	if key == nil {
		return ""
	}

	headerBytes := h.marshal()
	sym := base64.RawURLEncoding.EncodeToString(headerBytes)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return ""
	}
	ciphertext := aead.Seal(nil, h.nonce[:], plaintext, []byte(sym))
	msg := base64.RawURLEncoding.EncodeToString(ciphertext)

	return "cap.sym=" + sym + "&cap.msg=" + msg
}

// Decrypt implements the decrypt contract of spec §4.2. query
// may be a raw query string ("cap.sym=...&cap.msg=...") with '+' as
// space and percent-encoding, parsed with fasthttp.Args the way the
// teacher's http-facing packages parse CGI query strings.
func (c *Cipher) Decrypt(query string) []byte {
	args := &fasthttp.Args{}
	args.Parse(strings.TrimPrefix(query, "?"))

	sym := string(args.Peek("cap.sym"))
	msg := string(args.Peek("cap.msg"))
	if sym == "" || msg == "" {
		return nil
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(sym)
	if err != nil || len(headerBytes) != headerSize {
		return nil
	}
	h, err := unmarshalHeader(headerBytes)
	if err != nil {
		return nil
	}

	ciphertext, err := base64.RawURLEncoding.Strict().DecodeString(msg)
	if err != nil || len(ciphertext) < tagSize {
		return nil
	}

	key, zero := c.deriveKeyForDecrypt(h)
	defer zero()
	if key == nil {
		return nil
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil
	}
	plaintext, err := aead.Open(nil, h.nonce[:], ciphertext, []byte(sym))
	if err != nil {
		return nil
	}
	return plaintext
}

// deriveKey runs scrypt with the component's fixed constants (scryptN,
// scryptR, scryptP); it is the encrypt-path derivation. In fixed-salt mode the result is cached; the returned zero func
// overwrites the key bytes unless they are the live cache entry.
func (c *Cipher) deriveKey(salt [saltSize]byte) (key []byte, zero func()) {
	if c.mode == ModeFixedSalt {
		c.mu.Lock()
		if c.cachedValid && c.cachedSalt == salt {
			k := c.cachedKey
			c.mu.Unlock()
			return k, func() {}
		}
		c.mu.Unlock()
	}

	k, err := scrypt.Key(c.password, salt[:], scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, func() {}
	}

	if c.mode == ModeFixedSalt {
		c.mu.Lock()
		c.cachedKey = k
		c.cachedSalt = salt
		c.cachedValid = true
		c.mu.Unlock()
		return k, func() {}
	}
	return k, func() { zeroBytes(k) }
}

// deriveKeyForDecrypt mirrors deriveKey but derives with the header's
// advertised scrypt parameters (already sanity-checked by
// unmarshalHeader) rather than the component's own constants, since a
// capability may have been minted by a peer running different tuning.
func (c *Cipher) deriveKeyForDecrypt(h *header) (key []byte, zero func()) {
	if c.mode == ModeFixedSalt {
		c.mu.Lock()
		if c.cachedValid && c.cachedSalt == h.salt {
			k := c.cachedKey
			c.mu.Unlock()
			return k, func() {}
		}
		c.mu.Unlock()
	}

	k, err := scrypt.Key(c.password, h.salt[:], int(h.scryptN), int(h.scryptR), int(h.scryptP), keyLen)
	if err != nil {
		return nil, func() {}
	}

	if c.mode == ModeFixedSalt {
		c.mu.Lock()
		c.cachedKey = k
		c.cachedSalt = h.salt
		c.cachedValid = true
		c.mu.Unlock()
		return k, func() {}
	}
	return k, func() { zeroBytes(k) }
}

// zeroBytes overwrites b in place. The compiler may in principle elide
// this as a dead store since b is about to go out of scope; acceptable
// here given the values are short-lived stack/heap garbage regardless.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
