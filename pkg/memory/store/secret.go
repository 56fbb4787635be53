package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Vault is opaque keyed secret storage. It deliberately has no
// enumeration: the secret adapter keeps its own metadata index so it can
// still answer listing queries.
type Vault interface {
	// Get returns the value for key, reporting whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

const (
	secretIndexKey     = "recall/index"
	secretContentSpace = "recall/content"
)

// secretMeta is the per-file entry of the metadata index.
type secretMeta struct {
	AccessedAt int64  `json:"atime"`
	ModifiedAt int64  `json:"mtime"`
	Summary    string `json:"summary,omitempty"`
}

// secretIndex is the serialized side-channel that stands in for the
// enumeration the vault lacks. It must be rewritten on every content
// write to stay consistent.
type secretIndex struct {
	Files map[string]secretMeta `json:"files"`
	Dirs  []string              `json:"dirs"`
}

// secretMedium stores content in a Vault and bookkeeping in the index
// blob. The index is read-modify-written non-atomically per call, which
// is accepted under the single-caller assumption.
type secretMedium struct {
	vault Vault
}

// NewSecret creates the encrypted-at-rest backend over the given vault.
func NewSecret(vault Vault, opts ...Option) *Engine {
	return newEngine(&secretMedium{vault: vault}, opts...)
}

func contentKey(path string) string {
	return secretContentSpace + path
}

func (m *secretMedium) loadIndex(ctx context.Context) (*secretIndex, error) {
	raw, ok, err := m.vault.Get(ctx, secretIndexKey)
	if err != nil {
		return nil, fmt.Errorf("store: load metadata index: %w", err)
	}
	idx := &secretIndex{Files: make(map[string]secretMeta)}
	if !ok {
		return idx, nil
	}
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, fmt.Errorf("store: decode metadata index: %w", err)
	}
	if idx.Files == nil {
		idx.Files = make(map[string]secretMeta)
	}
	return idx, nil
}

func (m *secretMedium) saveIndex(ctx context.Context, idx *secretIndex) error {
	sort.Strings(idx.Dirs)
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("store: encode metadata index: %w", err)
	}
	if err := m.vault.Set(ctx, secretIndexKey, raw); err != nil {
		return fmt.Errorf("store: save metadata index: %w", err)
	}
	return nil
}

func (m *secretMedium) getFile(ctx context.Context, path string) (*record, error) {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	meta, ok := idx.Files[path]
	if !ok {
		return nil, nil
	}
	raw, ok, err := m.vault.Get(ctx, contentKey(path))
	if err != nil {
		return nil, fmt.Errorf("store: read secret for %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("store: metadata index references %s but the vault has no content for it", path)
	}
	return &record{
		Content:    string(raw),
		AccessedAt: time.Unix(0, meta.AccessedAt),
		ModifiedAt: time.Unix(0, meta.ModifiedAt),
		Summary:    meta.Summary,
	}, nil
}

func (m *secretMedium) putFile(ctx context.Context, path string, rec *record) error {
	if err := m.vault.Set(ctx, contentKey(path), []byte(rec.Content)); err != nil {
		return fmt.Errorf("store: write secret for %s: %w", path, err)
	}
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	idx.Files[path] = secretMeta{
		AccessedAt: rec.AccessedAt.UnixNano(),
		ModifiedAt: rec.ModifiedAt.UnixNano(),
		Summary:    rec.Summary,
	}
	return m.saveIndex(ctx, idx)
}

func (m *secretMedium) deleteFile(ctx context.Context, path string) error {
	if err := m.vault.Delete(ctx, contentKey(path)); err != nil {
		return fmt.Errorf("store: delete secret for %s: %w", path, err)
	}
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	delete(idx.Files, path)
	return m.saveIndex(ctx, idx)
}

func (m *secretMedium) filePaths(ctx context.Context) ([]string, error) {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		out = append(out, p)
	}
	return out, nil
}

func (m *secretMedium) dirPaths(ctx context.Context) ([]string, error) {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), idx.Dirs...), nil
}

func (m *secretMedium) putDir(ctx context.Context, path string) error {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	for _, d := range idx.Dirs {
		if d == path {
			return nil
		}
	}
	idx.Dirs = append(idx.Dirs, path)
	return m.saveIndex(ctx, idx)
}

func (m *secretMedium) deleteDir(ctx context.Context, path string) error {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	kept := idx.Dirs[:0]
	for _, d := range idx.Dirs {
		if d != path {
			kept = append(kept, d)
		}
	}
	idx.Dirs = kept
	return m.saveIndex(ctx, idx)
}

func (m *secretMedium) touchAccess(ctx context.Context, path string, t time.Time) error {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	meta, ok := idx.Files[path]
	if !ok {
		return nil
	}
	meta.AccessedAt = t.UnixNano()
	idx.Files[path] = meta
	return m.saveIndex(ctx, idx)
}

func (m *secretMedium) putSummary(ctx context.Context, path, summary string) error {
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return err
	}
	meta, ok := idx.Files[path]
	if !ok {
		return nil
	}
	meta.Summary = summary
	idx.Files[path] = meta
	return m.saveIndex(ctx, idx)
}

// FileVault is an encrypted-at-rest Vault: one sealed file per key under
// a private directory. Values are sealed with XChaCha20-Poly1305 using a
// key derived from the caller's master secret; file names are hashes of
// the logical key, so neither key names nor contents are readable on
// disk.
type FileVault struct {
	dir  string
	aead cipher.AEAD
}

// NewFileVault creates the vault directory and derives the sealing key
// from masterKey, which may be any non-empty secret.
func NewFileVault(dir string, masterKey []byte) (*FileVault, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("store: vault master key cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: create vault directory: %w", err)
	}

	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("recall vault v1"))
	sealKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, sealKey); err != nil {
		return nil, fmt.Errorf("store: derive vault key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("store: init vault cipher: %w", err)
	}
	return &FileVault{dir: dir, aead: aead}, nil
}

func (v *FileVault) pathForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(v.dir, hex.EncodeToString(sum[:])+".sealed")
}

// Get returns the decrypted value for key.
func (v *FileVault) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(v.pathForKey(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: read sealed value: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, false, fmt.Errorf("store: sealed value for %q is truncated", key)
	}
	nonce, ct := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := v.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("store: unseal value for %q: %w", key, err)
	}
	return plain, true, nil
}

// Set seals value and writes it atomically via a temporary file.
func (v *FileVault) Set(_ context.Context, key string, value []byte) error {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("store: generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, value, []byte(key))

	path := v.pathForKey(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("store: write sealed value: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: commit sealed value: %w", err)
	}
	return nil
}

// Delete removes the sealed value for key.
func (v *FileVault) Delete(_ context.Context, key string) error {
	err := os.Remove(v.pathForKey(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete sealed value: %w", err)
	}
	return nil
}

var _ Vault = (*FileVault)(nil)
