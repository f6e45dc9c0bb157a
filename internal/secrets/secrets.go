// Package secrets manages the age identity used to seal keyword lists at rest.
package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// ErrNoIdentity means Init has not been run for the directory.
var ErrNoIdentity = errors.New("no age identity (run 'aegismask lists keygen')")

// Manager handles list encryption with a single X25519 identity.
type Manager struct {
	configDir string
	keyFile   string
}

// NewManager creates a new secrets manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir: configDir,
		keyFile:   filepath.Join(configDir, "keys.txt"),
	}
}

// KeyFile returns the path of the identity file.
func (m *Manager) KeyFile() string {
	return m.keyFile
}

// Init generates a new age Identity (keypair) if one doesn't exist and
// returns its public recipient.
func (m *Manager) Init() (string, error) {
	if _, err := os.Stat(m.keyFile); err == nil {
		return "", fmt.Errorf("keys already exist at %s", m.keyFile)
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create secrets dir: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("failed to generate identity: %w", err)
	}

	f, err := os.OpenFile(m.keyFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# Public key: %s\n%s\n", identity.Recipient().String(), identity.String()); err != nil {
		return "", err
	}

	return identity.Recipient().String(), nil
}

func (m *Manager) identities() ([]age.Identity, error) {
	f, err := os.Open(m.keyFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	return ids, nil
}

// Recipient returns the public key for the managed identity
func (m *Manager) Recipient() (string, error) {
	ids, err := m.identities()
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if x, ok := id.(*age.X25519Identity); ok {
			return x.Recipient().String(), nil
		}
	}
	return "", fmt.Errorf("%w: key file holds no X25519 identity", ErrNoIdentity)
}

// Seal encrypts plaintext to the managed identity, or to the extra
// recipients when given. Armored output is PEM-like text.
func (m *Manager) Seal(dst io.Writer, plaintext []byte, armored bool, extra ...string) error {
	var recipients []age.Recipient
	if len(extra) == 0 {
		pub, err := m.Recipient()
		if err != nil {
			return err
		}
		extra = []string{pub}
	}
	for _, s := range extra {
		r, err := age.ParseX25519Recipient(s)
		if err != nil {
			return fmt.Errorf("invalid recipient %q: %w", s, err)
		}
		recipients = append(recipients, r)
	}

	out := dst
	var armorWriter io.WriteCloser
	if armored {
		armorWriter = armor.NewWriter(dst)
		out = armorWriter
	}

	w, err := age.Encrypt(out, recipients...)
	if err != nil {
		return fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish encryption: %w", err)
	}
	if armorWriter != nil {
		return armorWriter.Close()
	}
	return nil
}

// Open decrypts a sealed payload, armored or binary.
func (m *Manager) Open(src io.Reader) ([]byte, error) {
	ids, err := m.identities()
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(src)
	var in io.Reader = br
	if head, _ := br.Peek(len(armor.Header)); bytes.Equal(head, []byte(armor.Header)) {
		in = armor.NewReader(br)
	}

	r, err := age.Decrypt(in, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return io.ReadAll(r)
}

// OpenFile decrypts the file at path.
func (m *Manager) OpenFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return m.Open(f)
}

// SealFile encrypts src into dst with 0600 permissions.
func (m *Manager) SealFile(src, dst string, armored bool) error {
	plaintext, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := m.Seal(&buf, plaintext, armored); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0600)
}
