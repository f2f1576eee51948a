// Package decode turns raw request payloads into strongly-typed command
// objects using the embedded type discriminator.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-cmdbind/internal/metadata"
)

// DefaultDiscriminator is the JSON property carrying the command name.
const DefaultDiscriminator = "$command"

// DefaultMaxBodySize caps request bodies at 1 MiB unless configured otherwise.
const DefaultMaxBodySize = 1 << 20

// Sentinel errors for deserialization failures. They can be matched with
// errors.Is() to derive the reason code reported to the client.
var (
	// ErrEmptyBody indicates an empty or whitespace-only payload.
	ErrEmptyBody = errors.New("cmdbind: empty request body")

	// ErrInvalidJSON indicates the payload is not well-formed JSON.
	ErrInvalidJSON = errors.New("cmdbind: invalid JSON payload")

	// ErrTypeMismatch indicates the discriminator is missing, unknown, or the
	// payload does not decode into the resolved command type.
	ErrTypeMismatch = errors.New("cmdbind: command type mismatch")

	// ErrMissingField indicates a required payload field is absent.
	ErrMissingField = errors.New("cmdbind: missing required field")

	// ErrBodyTooLarge indicates the payload exceeds the configured cap.
	ErrBodyTooLarge = errors.New("cmdbind: request body too large")
)

// Resolver looks up command metadata by discriminator value.
type Resolver func(name string) (*metadata.CommandMetadata, bool)

// Decoder deserializes JSON payloads into registered command types.
type Decoder struct {
	discriminator string
	maxBodySize   int64
	resolve       Resolver
}

// Result is a successfully deserialized command.
type Result struct {
	// Command is a pointer to the decoded command struct.
	Command interface{}
	// Metadata is the registration metadata of the decoded command type.
	Metadata *metadata.CommandMetadata
	// Fingerprint is a 64-bit hash of the trimmed payload, used by the audit
	// trail to correlate otherwise identical submissions.
	Fingerprint uint64
	// PayloadSize is the trimmed payload size in bytes.
	PayloadSize int
}

// NewDecoder creates a decoder. An empty discriminator or non-positive size
// cap falls back to the package defaults.
func NewDecoder(discriminator string, maxBodySize int64, resolve Resolver) *Decoder {
	if discriminator == "" {
		discriminator = DefaultDiscriminator
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Decoder{
		discriminator: discriminator,
		maxBodySize:   maxBodySize,
		resolve:       resolve,
	}
}

// Discriminator returns the JSON property name carrying the command name.
func (d *Decoder) Discriminator() string {
	return d.discriminator
}

// Decode reads the payload from r and deserializes it into the command type
// named by the discriminator property.
func (d *Decoder) Decode(r io.Reader) (*Result, error) {
	if r == nil {
		return nil, ErrEmptyBody
	}

	data, err := io.ReadAll(io.LimitReader(r, d.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(data)) > d.maxBodySize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrBodyTooLarge, d.maxBodySize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		if json.Valid(trimmed) {
			// Well-formed JSON that is not an object cannot carry a
			// discriminator and therefore never matches a command type.
			return nil, fmt.Errorf("%w: payload must be a JSON object", ErrTypeMismatch)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	rawName, ok := envelope[d.discriminator]
	if !ok {
		return nil, fmt.Errorf("%w: payload is missing the '%s' property", ErrTypeMismatch, d.discriminator)
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return nil, fmt.Errorf("%w: the '%s' property must be a non-empty string", ErrTypeMismatch, d.discriminator)
	}

	meta, ok := d.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown command '%s'", ErrTypeMismatch, name)
	}

	for _, field := range meta.RequiredFields() {
		if _, present := envelope[field.JSONName]; !present {
			return nil, fmt.Errorf("%w: '%s'", ErrMissingField, field.JSONName)
		}
	}

	for _, field := range meta.Fields {
		if !field.IsDecimal {
			continue
		}
		if err := validateDecimal(field.JSONName, envelope[field.JSONName]); err != nil {
			return nil, err
		}
	}

	command := reflect.New(meta.CommandType).Interface()
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(command); err != nil {
		return nil, fmt.Errorf("%w: payload does not match command '%s': %v", ErrTypeMismatch, name, err)
	}

	return &Result{
		Command:     command,
		Metadata:    meta,
		Fingerprint: xxhash.Sum64(trimmed),
		PayloadSize: len(trimmed),
	}, nil
}

// validateDecimal checks that a decimal-typed field carries a value decimal
// arithmetic can represent: a JSON number, or a string holding a decimal
// literal. Absent and null values pass; they surface as zero or nil after
// decoding.
func validateDecimal(jsonName string, raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if _, err := decimal.NewFromString(str); err != nil {
			return fmt.Errorf("%w: field '%s' is not a valid decimal: %q", ErrTypeMismatch, jsonName, str)
		}
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return fmt.Errorf("%w: field '%s' must be a decimal number or string", ErrTypeMismatch, jsonName)
	}
	return nil
}

// ImplementsFamily reports whether the command type (or a pointer to it)
// satisfies the given interface type. A nil family accepts every command.
func ImplementsFamily(meta *metadata.CommandMetadata, family reflect.Type) bool {
	if family == nil {
		return true
	}
	if family.Kind() != reflect.Interface {
		return false
	}
	return meta.CommandType.Implements(family) ||
		reflect.PointerTo(meta.CommandType).Implements(family)
}
