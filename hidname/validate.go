package hidname

import (
	"fmt"
	"strconv"
	"strings"
)

// Params are the raw identity fields of an update request.
type Params struct {
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Serial       string
}

// ValidationError is returned when a field of an update is invalid.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// Validate checks every field of p and returns the identity it describes.
func (p Params) Validate() (Identity, error) {
	var id Identity
	var err error

	if id.VendorID, err = ParseUSBID("vendor_id", p.VendorID); err != nil {
		return Identity{}, err
	}
	if id.ProductID, err = ParseUSBID("product_id", p.ProductID); err != nil {
		return Identity{}, err
	}
	if id.Manufacturer, err = StrippedString("manufacturer", p.Manufacturer); err != nil {
		return Identity{}, err
	}
	if id.Product, err = StrippedString("product", p.Product); err != nil {
		return Identity{}, err
	}
	if id.Serial, err = StrippedString("serial", p.Serial); err != nil {
		return Identity{}, err
	}

	return id, nil
}

// ParseUSBID parses a USB vendor or product ID. Decimal and 0x-prefixed
// hexadecimal are accepted; the value must fit in 16 bits.
func ParseUSBID(field, value string) (uint16, error) {
	s := strings.TrimSpace(value)

	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		s = rest
		base = 16
	}

	n, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, &ValidationError{Field: field, Value: value}
	}

	return uint16(n), nil
}

// StrippedString trims surrounding whitespace from value and rejects the
// result if it is empty.
func StrippedString(field, value string) (string, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return "", &ValidationError{Field: field, Value: value}
	}
	return s, nil
}
