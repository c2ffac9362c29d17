// Package vault implements an at-rest credential store for SSH secrets:
// passwords, private keys, and key passphrases. Every secret field is
// encrypted independently under a key derived from a user-supplied
// password; the vault can verify that password without ever decrypting
// a secret, so a wrong password is rejected cleanly (I1, P3).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations  = 100_000
	kdfKeyLen      = 32
	saltLen        = 16
	verifyPlaintext = "velocitycollector-vault-v1"
)

var (
	// ErrAlreadyInitialized is returned by Initialize on an existing vault.
	ErrAlreadyInitialized = errors.New("vault: already initialized")
	// ErrNotInitialized is returned when no envelope exists yet.
	ErrNotInitialized = errors.New("vault: not initialized")
	// ErrLocked is returned by any mutating or reading operation before Unlock.
	ErrLocked = errors.New("vault: locked")
	// ErrCorrupt is returned when the ciphertext set fails to decrypt under
	// an otherwise-verified key.
	ErrCorrupt = errors.New("vault-corrupt")
)

// Credential is the plaintext view of a vault record, returned only after
// a successful Unlock + Get/List call. Callers must treat it as ephemeral.
type Credential struct {
	Name          string
	Username      string
	Password      string
	KeyPEM        string
	KeyPassphrase string
	IsDefault     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Summary is the List view: presence flags only, never plaintext secrets.
type Summary struct {
	Name          string
	Username      string
	HasPassword   bool
	HasKey        bool
	HasPassphrase bool
	IsDefault     bool
}

// record is the on-disk representation of one credential.
type record struct {
	Name              string `json:"name"`
	Username          string `json:"username"`
	PasswordCT        []byte `json:"password_ct,omitempty"`
	PasswordNonce     []byte `json:"password_nonce,omitempty"`
	KeyCT             []byte `json:"key_ct,omitempty"`
	KeyNonce          []byte `json:"key_nonce,omitempty"`
	PassphraseCT      []byte `json:"passphrase_ct,omitempty"`
	PassphraseNonce   []byte `json:"passphrase_nonce,omitempty"`
	IsDefault         bool   `json:"is_default"`
	CreatedAtUnix     int64  `json:"created_at"`
	UpdatedAtUnix     int64  `json:"updated_at"`
}

// envelope is the on-disk KDF/verification metadata (spec.md §3, §6).
type envelope struct {
	Salt             []byte `json:"salt"`
	Iterations       int    `json:"iterations"`
	VerificationTag  []byte `json:"verification_tag"`
}

// document is the whole vault.json file shape.
type document struct {
	Envelope envelope          `json:"envelope"`
	Records  map[string]record `json:"records"`
}

// Store persists the document to and loads it from durable storage
// (typically a single JSON file). Implementations must make Save atomic.
type Store interface {
	Load() (*document, error)
	Save(*document) error
	Exists() bool
}

// Vault is a credential store guarded by a password-derived key. All
// state transitions (lock/unlock/rotate) are serialized by mu; Get is
// safe to call concurrently once unlocked, since the derived key is
// immutable until Lock (§5).
type Vault struct {
	store Store

	mu      sync.Mutex
	doc     *document
	key     []byte
	unlocked bool
}

// New constructs a Vault over the given Store. The on-disk document is
// not read until Initialize or Unlock is called.
func New(store Store) *Vault {
	return &Vault{store: store}
}

// Initialize creates a new vault envelope. Fails if one already exists.
func (v *Vault) Initialize(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.store.Exists() {
		return ErrAlreadyInitialized
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("vault: generating salt: %w", err)
	}

	key := deriveKey(password, salt, kdfIterations)
	tag := verificationTag(key)

	doc := &document{
		Envelope: envelope{Salt: salt, Iterations: kdfIterations, VerificationTag: tag},
		Records:  make(map[string]record),
	}
	if err := v.store.Save(doc); err != nil {
		return err
	}

	v.doc = doc
	v.key = key
	v.unlocked = true
	return nil
}

// Unlock derives the key from password and checks it against the stored
// verification tag. It returns (true, nil) only on a correct password;
// a wrong password returns (false, nil) without ever attempting to
// decrypt a secret field (P3).
func (v *Vault) Unlock(password string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.store.Exists() {
		return false, ErrNotInitialized
	}
	doc, err := v.store.Load()
	if err != nil {
		return false, err
	}

	key := deriveKey(password, doc.Envelope.Salt, doc.Envelope.Iterations)
	if !hmac.Equal(verificationTag(key), doc.Envelope.VerificationTag) {
		return false, nil
	}

	v.doc = doc
	v.key = key
	v.unlocked = true
	return true, nil
}

// Lock zeros the in-memory key reference. Subsequent operations fail
// with ErrLocked until Unlock is called again.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	v.doc = nil
	v.unlocked = false
}

// Unlocked reports whether the vault currently holds a derived key.
func (v *Vault) Unlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlocked
}

// Add creates or replaces a credential record. If isDefault is true,
// every other record's default flag is cleared atomically (I2).
func (v *Vault) Add(c Credential) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}

	r := record{
		Name:          c.Name,
		Username:      c.Username,
		IsDefault:     c.IsDefault,
		CreatedAtUnix: c.CreatedAt.Unix(),
		UpdatedAtUnix: c.UpdatedAt.Unix(),
	}
	if r.CreatedAtUnix == 0 {
		r.CreatedAtUnix = nowFunc().Unix()
	}
	r.UpdatedAtUnix = nowFunc().Unix()

	var err error
	if c.Password != "" {
		if r.PasswordCT, r.PasswordNonce, err = seal(v.key, []byte(c.Password)); err != nil {
			return err
		}
	}
	if c.KeyPEM != "" {
		if r.KeyCT, r.KeyNonce, err = seal(v.key, []byte(c.KeyPEM)); err != nil {
			return err
		}
	}
	if c.KeyPassphrase != "" {
		if r.PassphraseCT, r.PassphraseNonce, err = seal(v.key, []byte(c.KeyPassphrase)); err != nil {
			return err
		}
	}

	if c.IsDefault {
		v.clearDefaults()
	}
	v.doc.Records[c.Name] = r
	return v.store.Save(v.doc)
}

// Remove deletes a credential record by name.
func (v *Vault) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}
	delete(v.doc.Records, name)
	return v.store.Save(v.doc)
}

// SetDefault marks name as the sole default credential (I2).
func (v *Vault) SetDefault(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}
	r, ok := v.doc.Records[name]
	if !ok {
		return fmt.Errorf("vault: no such credential %q", name)
	}
	v.clearDefaults()
	r.IsDefault = true
	v.doc.Records[name] = r
	return v.store.Save(v.doc)
}

func (v *Vault) clearDefaults() {
	for n, r := range v.doc.Records {
		if r.IsDefault {
			r.IsDefault = false
			v.doc.Records[n] = r
		}
	}
}

// List returns every credential's presence summary; never plaintext.
func (v *Vault) List() ([]Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return nil, ErrLocked
	}
	out := make([]Summary, 0, len(v.doc.Records))
	for _, r := range v.doc.Records {
		out = append(out, Summary{
			Name:          r.Name,
			Username:      r.Username,
			HasPassword:   len(r.PasswordCT) > 0,
			HasKey:        len(r.KeyCT) > 0,
			HasPassphrase: len(r.PassphraseCT) > 0,
			IsDefault:     r.IsDefault,
		})
	}
	return out, nil
}

// Get resolves a credential by name, or the current default if name is
// empty. Returns (nil, nil) if name is empty and no default is set.
func (v *Vault) Get(name string) (*Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return nil, ErrLocked
	}

	var r record
	var found bool
	if name == "" {
		for _, cand := range v.doc.Records {
			if cand.IsDefault {
				r, found = cand, true
				break
			}
		}
		if !found {
			return nil, nil
		}
	} else {
		r, found = v.doc.Records[name]
		if !found {
			return nil, fmt.Errorf("vault: no such credential %q", name)
		}
	}

	c := &Credential{
		Name:      r.Name,
		Username:  r.Username,
		IsDefault: r.IsDefault,
		CreatedAt: time.Unix(r.CreatedAtUnix, 0),
		UpdatedAt: time.Unix(r.UpdatedAtUnix, 0),
	}
	var err error
	if len(r.PasswordCT) > 0 {
		if c.Password, err = open(v.key, r.PasswordCT, r.PasswordNonce); err != nil {
			return nil, ErrCorrupt
		}
	}
	if len(r.KeyCT) > 0 {
		if c.KeyPEM, err = open(v.key, r.KeyCT, r.KeyNonce); err != nil {
			return nil, ErrCorrupt
		}
	}
	if len(r.PassphraseCT) > 0 {
		if c.KeyPassphrase, err = open(v.key, r.PassphraseCT, r.PassphraseNonce); err != nil {
			return nil, ErrCorrupt
		}
	}
	return c, nil
}

// ChangePassword re-encrypts every secret field under a key derived from
// newPassword, then commits the new envelope. The rewrite is staged by
// the Store's Save implementation (temp-file-then-rename), so a crash
// mid-rotation leaves the old envelope intact rather than a half-written
// one; this specification does not mandate a rollback protocol beyond
// that (open question, see SPEC_FULL.md §6).
func (v *Vault) ChangePassword(oldPassword, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}

	oldKey := deriveKey(oldPassword, v.doc.Envelope.Salt, v.doc.Envelope.Iterations)
	if !hmac.Equal(verificationTag(oldKey), v.doc.Envelope.VerificationTag) {
		return errors.New("vault: old password incorrect")
	}

	newSalt := make([]byte, saltLen)
	if _, err := rand.Read(newSalt); err != nil {
		return err
	}
	newKey := deriveKey(newPassword, newSalt, kdfIterations)

	newRecords := make(map[string]record, len(v.doc.Records))
	for name, r := range v.doc.Records {
		nr := r
		var err error
		if len(r.PasswordCT) > 0 {
			pt, derr := open(v.key, r.PasswordCT, r.PasswordNonce)
			if derr != nil {
				return ErrCorrupt
			}
			if nr.PasswordCT, nr.PasswordNonce, err = seal(newKey, []byte(pt)); err != nil {
				return err
			}
		}
		if len(r.KeyCT) > 0 {
			pt, derr := open(v.key, r.KeyCT, r.KeyNonce)
			if derr != nil {
				return ErrCorrupt
			}
			if nr.KeyCT, nr.KeyNonce, err = seal(newKey, []byte(pt)); err != nil {
				return err
			}
		}
		if len(r.PassphraseCT) > 0 {
			pt, derr := open(v.key, r.PassphraseCT, r.PassphraseNonce)
			if derr != nil {
				return ErrCorrupt
			}
			if nr.PassphraseCT, nr.PassphraseNonce, err = seal(newKey, []byte(pt)); err != nil {
				return err
			}
		}
		newRecords[name] = nr
	}

	newDoc := &document{
		Envelope: envelope{Salt: newSalt, Iterations: kdfIterations, VerificationTag: verificationTag(newKey)},
		Records:  newRecords,
	}
	if err := v.store.Save(newDoc); err != nil {
		return err
	}

	v.doc = newDoc
	v.key = newKey
	return nil
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, kdfKeyLen, sha256.New)
}

func verificationTag(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(verifyPlaintext))
	return mac.Sum(nil)
}

func seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(key, ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// nowFunc is a seam for deterministic tests; production code leaves it
// as time.Now.
var nowFunc = time.Now
