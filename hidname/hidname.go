// Package hidname manages the USB identification strings the device reports
// when it emulates a USB peripheral.
//
// The effective identity is a set of compiled-in defaults layered under an
// optional YAML override document:
//
//	otg:
//	  vendor_id: 4660
//	  product_id: 22136
//	  manufacturer: Test
//	  product: Device
//	  serial: ABC
//
// Keys missing from the override keep their default. An override that cannot
// be read or parsed is ignored as a whole.
package hidname

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultOverridePath is where the override document lives on the device.
const DefaultOverridePath = "/etc/kvmd/override.d/hidname.yaml"

// Identity is the USB device identification.
type Identity struct {
	VendorID     uint16 `json:"vendor_id" yaml:"vendor_id" toml:"vendor_id"`
	ProductID    uint16 `json:"product_id" yaml:"product_id" toml:"product_id"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer" toml:"manufacturer"`
	Product      string `json:"product" yaml:"product" toml:"product"`
	Serial       string `json:"serial" yaml:"serial" toml:"serial"`
}

// DefaultIdentity is the identity of a stock device.
var DefaultIdentity = Identity{
	VendorID:     0x1D6B,
	ProductID:    0x0104,
	Manufacturer: "GLKVM",
	Product:      "Composite KVM Device",
	Serial:       "CAFEBABE",
}

// override is the partial identity found in the override document.
type override struct {
	VendorID     *uint16 `yaml:"vendor_id"`
	ProductID    *uint16 `yaml:"product_id"`
	Manufacturer *string `yaml:"manufacturer"`
	Product      *string `yaml:"product"`
	Serial       *string `yaml:"serial"`
}

func (o override) apply(id Identity) Identity {
	if o.VendorID != nil {
		id.VendorID = *o.VendorID
	}
	if o.ProductID != nil {
		id.ProductID = *o.ProductID
	}
	if o.Manufacturer != nil {
		id.Manufacturer = *o.Manufacturer
	}
	if o.Product != nil {
		id.Product = *o.Product
	}
	if o.Serial != nil {
		id.Serial = *o.Serial
	}
	return id
}

// overrideDocument is the top-level override document. Only the otg section
// is ours.
type overrideDocument[T any] struct {
	OTG T `yaml:"otg"`
}

// errNoOverride is returned when no override document exists.
var errNoOverride = errors.New("no override document")

// InvalidOverrideError is returned when the override document exists but
// cannot be read or parsed.
type InvalidOverrideError struct {
	Path string
	Err  error
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override document %s: %v", e.Path, e.Err)
}

func (e *InvalidOverrideError) Unwrap() error { return e.Err }

// Store loads and saves the identity override document.
type Store struct {
	defaults Identity
	path     string
	logger   *slog.Logger
}

// NewStore creates a new Store that layers the document at path over
// defaults.
func NewStore(defaults Identity, path string, logger *slog.Logger) *Store {
	return &Store{
		defaults: defaults,
		path:     path,
		logger:   logger,
	}
}

// Path returns the path of the override document.
func (s *Store) Path() string { return s.path }

// Defaults returns the default identity.
func (s *Store) Defaults() Identity { return s.defaults }

// Load returns the effective identity. It never fails: a missing or broken
// override document yields the defaults.
func (s *Store) Load() Identity {
	o, err := s.readOverride()
	switch {
	case errors.Is(err, errNoOverride):
		return s.defaults
	case err != nil:
		s.logger.Warn(
			"ignoring override document",
			"path", s.path,
			"err", err)
		return s.defaults
	default:
		return o.apply(s.defaults)
	}
}

func (s *Store) readOverride() (override, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return override{}, errNoOverride
		}
		return override{}, &InvalidOverrideError{s.path, err}
	}

	var doc overrideDocument[override]
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return override{}, &InvalidOverrideError{s.path, err}
	}

	return doc.OTG, nil
}

// Save writes the full identity into the override document, replacing
// whatever it held. Parent directories are created as needed.
func (s *Store) Save(id Identity) error {
	b, err := yaml.Marshal(overrideDocument[Identity]{OTG: id})
	if err != nil {
		return fmt.Errorf("cannot marshal override document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("cannot create override directory: %w", err)
	}

	if err := os.WriteFile(s.path, b, 0644); err != nil {
		return fmt.Errorf("cannot write override document: %w", err)
	}

	return nil
}
