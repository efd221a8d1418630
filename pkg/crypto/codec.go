// Package crypto encrypts the free-text fields of notes with a passphrase.
//
// The ciphertext format is the OpenSSL "Salted__" envelope (EVP_BytesToKey
// with MD5, AES-256-CBC, PKCS#7 padding, base64), which is what other clients
// of the remote store already write.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	saltHeader = "Salted__"
	saltLen    = 8
	keyLen     = 32
)

// Codec applies encryption with a fixed passphrase. The zero value has no key
// and passes notes through untouched.
type Codec struct {
	key string
}

// New returns a Codec for passphrase key.
func New(key string) *Codec {
	return &Codec{key: key}
}

// HasKey reports whether a passphrase is configured.
func (c *Codec) HasKey() bool { return c != nil && c.key != "" }

// EncryptText encrypts plaintext with key.
func EncryptText(plaintext, key string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return encryptWithSalt(plaintext, key, salt)
}

func encryptWithSalt(plaintext, key string, salt []byte) (string, error) {
	k, iv := deriveKeyIV([]byte(key), salt)
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}
	data := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	buf := make([]byte, 0, len(saltHeader)+saltLen+len(out))
	buf = append(buf, saltHeader...)
	buf = append(buf, salt...)
	buf = append(buf, out...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecryptText reverses EncryptText. Any failure that points at a bad
// passphrase, including an empty result, is reported as core.ErrWrongKey.
func DecryptText(ciphertext, key string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < len(saltHeader)+saltLen || !bytes.HasPrefix(raw, []byte(saltHeader)) {
		return "", fmt.Errorf("malformed ciphertext: %w", core.ErrWrongKey)
	}
	salt := raw[len(saltHeader) : len(saltHeader)+saltLen]
	body := raw[len(saltHeader)+saltLen:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", fmt.Errorf("malformed ciphertext: %w", core.ErrWrongKey)
	}

	k, iv := deriveKeyIV([]byte(key), salt)
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil || len(plain) == 0 || !utf8.Valid(plain) {
		return "", core.ErrWrongKey
	}
	return string(plain), nil
}

// EncryptNote encrypts title, content and source. Empty fields stay empty.
// Without a key the note is returned unchanged and is not marked encrypted.
func (c *Codec) EncryptNote(n core.Note) (core.Note, error) {
	if !c.HasKey() {
		return n, nil
	}
	for _, f := range []**string{&n.Title, &n.Content, &n.Source} {
		if *f == nil || **f == "" {
			continue
		}
		ct, err := EncryptText(**f, c.key)
		if err != nil {
			return n, fmt.Errorf("failed to encrypt note %s: %w", n.ID, err)
		}
		*f = core.String(ct)
	}
	n.Encrypted = core.Bool(true)
	return n, nil
}

// DecryptNote reverses EncryptNote for notes flagged encrypted.
func (c *Codec) DecryptNote(n core.Note) (core.Note, error) {
	if !n.IsEncrypted() {
		return n, nil
	}
	if !c.HasKey() {
		return n, fmt.Errorf("note %s: %w", n.ID, core.ErrMissingKey)
	}
	for _, f := range []**string{&n.Title, &n.Content, &n.Source} {
		if *f == nil || **f == "" {
			continue
		}
		pt, err := DecryptText(**f, c.key)
		if err != nil {
			return n, fmt.Errorf("failed to decrypt note %s: %w", n.ID, err)
		}
		*f = core.String(pt)
	}
	n.Encrypted = core.Bool(false)
	return n, nil
}

// deriveKeyIV is OpenSSL's EVP_BytesToKey with MD5 and one iteration.
func deriveKeyIV(pass, salt []byte) (key, iv []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+aes.BlockSize]
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

var errPadding = errors.New("invalid padding")

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
