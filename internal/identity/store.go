package identity

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/radio-control/wifid/internal/errcode"
)

// ErrNotFound is returned when the identity file or the discriminator key is absent.
var ErrNotFound = errors.New("identity not found")

// maxDiscriminator is the largest 12-bit setup discriminator.
const maxDiscriminator = 0xFFF

// Identity is the content of the identity file.
type Identity struct {
	Discriminator *uint16 `yaml:"discriminator"`
	VendorID      uint16  `yaml:"vendorId,omitempty"`
	ProductID     uint16  `yaml:"productId,omitempty"`
}

// FileStore reads the identity file on every lookup, so re-commissioning is picked up without
// a restart.
type FileStore struct {
	path string
}

// NewFileStore returns a store reading path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load parses the identity file.
func (s *FileStore) Load() (Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("read %s: %v: %w", s.path, err, errcode.ErrReadFailed)
	}

	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parse %s: %v: %w", s.path, err, errcode.ErrReadFailed)
	}
	return id, nil
}

// Discriminator returns the setup discriminator.
func (s *FileStore) Discriminator() (uint16, error) {
	id, err := s.Load()
	if err != nil {
		return 0, err
	}
	if id.Discriminator == nil {
		return 0, fmt.Errorf("discriminator in %s: %w", s.path, ErrNotFound)
	}
	if *id.Discriminator > maxDiscriminator {
		return 0, fmt.Errorf("discriminator %d exceeds 12 bits: %w", *id.Discriminator, errcode.ErrInvalidArgument)
	}
	return *id.Discriminator, nil
}
