package filestore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	DefaultFileName = "session.json"
	nonceSize       = 24
)

var _ storage.Storage = (*FileStore)(nil)

// FileStore keeps every key in one JSON document on disk. Each call re-reads the
// file so several processes sharing a data folder observe each other's writes.
type FileStore struct {
	path      string
	secretKey *[32]byte
	lock      sync.Mutex
}

type Option func(*FileStore)

// WithSecretKey seals the document with nacl/secretbox.
func WithSecretKey(key *[32]byte) Option {
	return func(f *FileStore) {
		f.secretKey = key
	}
}

func WithFileName(name string) Option {
	return func(f *FileStore) {
		f.path = filepath.Join(filepath.Dir(f.path), name)
	}
}

func New(folder string, options ...Option) (*FileStore, error) {
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrapf(apperrors.ErrStorage, "create data folder %s: %v", folder, err)
	}
	f := &FileStore{path: filepath.Join(folder, DefaultFileName)}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// ParseSecretKey accepts a 32 byte key as hex or standard/url base64.
func ParseSecretKey(s string) (*[32]byte, error) {
	s = strings.TrimSpace(s)
	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, decode := range decoders {
		b, err := decode(s)
		if err == nil && len(b) == 32 {
			var key [32]byte
			copy(key[:], b)
			return &key, nil
		}
	}
	return nil, errors.New("storage secret must be 32 bytes encoded as hex or base64")
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(key string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(key, value string) error {
	return f.SetMany(map[string]string{key: value})
}

func (f *FileStore) SetMany(entries map[string]string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range entries {
		values[k] = v
	}
	return f.write(values)
}

func (f *FileStore) Remove(keys ...string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.write(values)
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrStorage, "read %s: %v", f.path, err)
	}

	if f.secretKey != nil {
		if data, err = f.open(data); err != nil {
			return nil, err
		}
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrapf(apperrors.ErrStorage, "corrupt storage file %s: %v", f.path, err)
	}
	return values, nil
}

// write replaces the file via a temp file and rename so a crash never leaves a half-written document.
func (f *FileStore) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "encode storage document")
	}
	if f.secretKey != nil {
		if data, err = f.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.tmp")
	if err != nil {
		return errors.Wrapf(apperrors.ErrStorage, "create temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(apperrors.ErrStorage, "write temp file: %v", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrapf(apperrors.ErrStorage, "chmod temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(apperrors.ErrStorage, "close temp file: %v", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(apperrors.ErrStorage, "replace %s: %v", f.path, err)
	}
	return nil
}

func (f *FileStore) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return secretbox.Seal(nonce[:], plain, &nonce, f.secretKey), nil
}

func (f *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.Wrapf(apperrors.ErrStorage, "sealed storage file %s is truncated", f.path)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, f.secretKey)
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrStorage, "cannot open sealed storage file %s", f.path)
	}
	return plain, nil
}
