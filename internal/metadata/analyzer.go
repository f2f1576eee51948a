package metadata

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// CommandMetadata holds metadata information about a registered command type.
// It is computed once when the command is registered and treated as read-only
// afterwards, so lookups during request handling never touch reflection again.
type CommandMetadata struct {
	CommandType reflect.Type
	CommandName string
	// AllowAnonymous is true when the command type declares that it may be
	// submitted without an authenticated caller.
	AllowAnonymous bool
	// RequiredRoles lists the roles of which the caller must hold at least one.
	// Empty means no role requirement.
	RequiredRoles []string
	// RequiredClaim is the claim the caller's identity must carry, or nil.
	RequiredClaim *ClaimRequirement
	Fields        []FieldMetadata
}

// ClaimRequirement describes a claim type/value pair a caller must present.
type ClaimRequirement struct {
	Type  string
	Value string
}

// FieldMetadata holds metadata information about a command payload field.
type FieldMetadata struct {
	Name      string
	JSONName  string
	Type      reflect.Type
	IsDecimal bool
	// Required is set via the `cmdbind:"required"` struct tag and enforced
	// during deserialization.
	Required bool
}

// Marker interfaces commands can implement to declare authorization
// requirements. They are looked up once during analysis.
type (
	namer interface{ CommandName() string }

	anonymousMarker interface{ AllowAnonymous() bool }

	roleMarker interface{ RequiredRoles() []string }

	claimMarker interface {
		RequiredClaim() (claimType, claimValue string)
	}
)

var (
	decimalType    = reflect.TypeOf(decimal.Decimal{})
	decimalPtrType = reflect.TypeOf(&decimal.Decimal{})
)

// AnalyzeCommand extracts metadata from a command prototype. The prototype is
// typically a pointer to the zero value of the command struct, e.g.
// AnalyzeCommand(&CreateOrder{}).
func AnalyzeCommand(command interface{}) (*CommandMetadata, error) {
	if command == nil {
		return nil, fmt.Errorf("command cannot be nil")
	}

	named, ok := command.(namer)
	if !ok {
		return nil, fmt.Errorf("command type %T does not implement CommandName()", command)
	}

	name := strings.TrimSpace(named.CommandName())
	if name == "" {
		return nil, fmt.Errorf("command type %T returned an empty command name", command)
	}

	commandType := reflect.TypeOf(command)
	if commandType.Kind() == reflect.Ptr {
		commandType = commandType.Elem()
	}
	if commandType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("command must be a struct, got %s", commandType.Kind())
	}

	meta := &CommandMetadata{
		CommandType: commandType,
		CommandName: name,
	}

	if marker, ok := command.(anonymousMarker); ok {
		meta.AllowAnonymous = marker.AllowAnonymous()
	}
	if marker, ok := command.(roleMarker); ok {
		meta.RequiredRoles = normalizeRoles(marker.RequiredRoles())
	}
	if marker, ok := command.(claimMarker); ok {
		claimType, claimValue := marker.RequiredClaim()
		claimType = strings.TrimSpace(claimType)
		if claimType == "" {
			return nil, fmt.Errorf("command '%s' declares a required claim with an empty type", name)
		}
		meta.RequiredClaim = &ClaimRequirement{Type: claimType, Value: claimValue}
	}

	for i := 0; i < commandType.NumField(); i++ {
		field := commandType.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			// Embedded structs contribute their own fields through the JSON
			// codec; skip the embedded field itself.
			continue
		}

		property := analyzeField(field)
		if property.JSONName == "-" {
			continue
		}
		meta.Fields = append(meta.Fields, property)
	}

	return meta, nil
}

// analyzeField extracts metadata from a single struct field.
func analyzeField(field reflect.StructField) FieldMetadata {
	property := FieldMetadata{
		Name:     field.Name,
		JSONName: field.Name,
		Type:     field.Type,
	}

	if jsonTag, ok := field.Tag.Lookup("json"); ok {
		name := jsonTag
		if idx := strings.Index(jsonTag, ","); idx != -1 {
			name = jsonTag[:idx]
		}
		if name != "" {
			property.JSONName = name
		}
	}

	if cmdbindTag, ok := field.Tag.Lookup("cmdbind"); ok {
		for _, option := range strings.Split(cmdbindTag, ",") {
			if strings.TrimSpace(option) == "required" {
				property.Required = true
			}
		}
	}

	property.IsDecimal = field.Type == decimalType || field.Type == decimalPtrType

	return property
}

// RequiredFields returns the metadata of all fields marked as required.
func (m *CommandMetadata) RequiredFields() []FieldMetadata {
	var required []FieldMetadata
	for _, field := range m.Fields {
		if field.Required {
			required = append(required, field)
		}
	}
	return required
}

func normalizeRoles(roles []string) []string {
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		normalized = append(normalized, role)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
