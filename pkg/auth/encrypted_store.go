package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"igbenford/pkg/storage"
)

// PassphraseEnv overrides the generated passphrase of EncryptedFileStore
const PassphraseEnv = "IGBENFORD_PASSPHRASE"

const (
	vaultVersion     = 2
	vaultIterations  = 210000
	vaultSaltSize    = 16
	vaultKeySize     = 32
	passphraseFile   = ".passphrase"
	passphraseLength = 32
)

// vaultFile is the on-disk envelope. Every save draws a fresh salt and
// nonce; the iteration count is stored so it can be raised later without
// breaking existing files.
type vaultFile struct {
	Version    int       `json:"version"`
	Iterations int       `json:"iterations"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	Modified   time.Time `json:"modified"`
}

// EncryptedFileStore keeps accounts in an AES-256-GCM encrypted file. The
// key is derived with PBKDF2-SHA256 from the passphrase in PassphraseEnv or,
// when unset, from a random passphrase kept beside the file.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewEncryptedFileStore opens the store at path. The file itself is created
// on the first Store.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), passphraseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store adds or replaces the account
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(accounts map[string]Account) error {
		accounts[account.Username] = *account
		return nil
	})
}

// Retrieve returns the stored account for username
func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.Lock()
	accounts, err := e.read()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	account, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns the stored accounts sorted by username
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.Lock()
	accounts, err := e.read()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	list := make([]*Account, 0, len(accounts))
	for _, account := range accounts {
		account := account
		list = append(list, &account)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	return list, nil
}

// Delete removes the account. The file goes away with the last account.
func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(accounts map[string]Account) error {
		if _, ok := accounts[username]; !ok {
			return ErrCredentialsNotFound
		}
		delete(accounts, username)
		return nil
	})
}

// Exists checks if credentials exist
func (e *EncryptedFileStore) Exists(username string) bool {
	account, err := e.Retrieve(username)
	return err == nil && account != nil
}

// update applies fn to the decrypted accounts and writes the result back
func (e *EncryptedFileStore) update(fn func(accounts map[string]Account) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.read()
	if err != nil {
		return err
	}
	if err := fn(accounts); err != nil {
		return err
	}

	if len(accounts) == 0 {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credential file: %w", err)
		}
		return nil
	}
	return e.write(accounts)
}

// read decrypts the file; a missing file is an empty store
func (e *EncryptedFileStore) read() (map[string]Account, error) {
	content, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Account), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var vault vaultFile
	if err := json.Unmarshal(content, &vault); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if vault.Version != vaultVersion {
		return nil, fmt.Errorf("unsupported credential file version %d", vault.Version)
	}

	gcm, err := e.cipher(vault.Salt, vault.Iterations)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, vault.Nonce, vault.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential file: %w", err)
	}

	accounts := make(map[string]Account)
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, nil
}

func (e *EncryptedFileStore) write(accounts map[string]Account) error {
	plaintext, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	vault := vaultFile{
		Version:    vaultVersion,
		Iterations: vaultIterations,
		Salt:       make([]byte, vaultSaltSize),
		Modified:   time.Now().UTC(),
	}
	if _, err := io.ReadFull(rand.Reader, vault.Salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := e.cipher(vault.Salt, vault.Iterations)
	if err != nil {
		return err
	}
	vault.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, vault.Nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	vault.Ciphertext = gcm.Seal(nil, vault.Nonce, plaintext, nil)

	if err := storage.WriteAtomic(e.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(vault)
	}); err != nil {
		return fmt.Errorf("failed to save credential file: %w", err)
	}
	return os.Chmod(e.path, 0600)
}

func (e *EncryptedFileStore) cipher(salt []byte, iterations int) (cipher.AEAD, error) {
	if len(salt) == 0 || iterations <= 0 {
		return nil, errors.New("credential file has no key parameters")
	}
	key := pbkdf2.Key(e.passphrase, salt, iterations, vaultKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// loadPassphrase returns the passphrase from the environment, else from
// path, generating and saving a random one on first use
func loadPassphrase(path string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return []byte(pass), nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return content, nil
	}

	raw := make([]byte, passphraseLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := []byte(base64.RawURLEncoding.EncodeToString(raw))
	if err := os.WriteFile(path, passphrase, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
