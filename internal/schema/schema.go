// Package schema implements card validation and the V1 to V2 migration.
//
// Validation comes in two grades: structural checks, run by the codec while
// decoding and escalated as corrupt-data errors, and advisory issues, which
// flag editing problems (an empty name, a lore entry without keys) without
// blocking anything.
package schema

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// ValidationIssue is a non-fatal advisory about card content.
type ValidationIssue struct {
	Field   types.Field
	Message string
}

func (i ValidationIssue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// cardV2Schema covers the structural invariants of a chara_card_v2 wrapper:
// the spec marker, the version string, and a data object. Content rules
// stay advisory.
var cardV2Schema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"spec", "spec_version", "data"},
	Properties: map[string]*jsonschema.Schema{
		"spec":         {Type: "string", Enum: []any{types.SpecV2}},
		"spec_version": {Type: "string"},
		"data":         {Type: "object"},
	},
}

// cardV1Schema only demands that a legacy card is an object at all; every
// V1 field is optional in the wild.
var cardV1Schema = &jsonschema.Schema{Type: "object"}

var (
	resolvedV2 = mustResolve(cardV2Schema)
	resolvedV1 = mustResolve(cardV1Schema)
)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("schema: failed to resolve card schema: %v", err))
	}
	return resolved
}

// CheckStructure validates decoded card JSON against the structural schema
// for the given version. A non-nil error means the payload is corrupt, not
// merely incomplete.
func CheckStructure(decoded any, version types.SchemaVersion) error {
	switch version {
	case types.SchemaV2:
		if err := resolvedV2.Validate(decoded); err != nil {
			return fmt.Errorf("invalid chara_card_v2 structure: %w", err)
		}
	default:
		if err := resolvedV1.Validate(decoded); err != nil {
			return fmt.Errorf("invalid v1 card structure: %w", err)
		}
	}
	return nil
}

// Validate inspects a card for advisory problems. An empty result means
// the card is clean; issues never block saving or generation.
func Validate(card *types.CharacterCard) []ValidationIssue {
	var issues []ValidationIssue

	if strings.TrimSpace(card.Data.Name) == "" {
		issues = append(issues, ValidationIssue{
			Field:   types.FieldName,
			Message: "name is empty",
		})
	}
	if card.Spec != types.SpecV2 {
		issues = append(issues, ValidationIssue{
			Message: fmt.Sprintf("unexpected spec marker %q", card.Spec),
		})
	}

	for i, greeting := range card.Data.AlternateGreetings {
		if strings.TrimSpace(greeting) == "" {
			issues = append(issues, ValidationIssue{
				Message: fmt.Sprintf("alternate greeting %d is empty", i+1),
			})
		}
	}

	if book := card.Data.CharacterBook; book != nil {
		for i, entry := range book.Entries {
			if entry.Enabled && len(entry.Keys) == 0 {
				issues = append(issues, ValidationIssue{
					Message: fmt.Sprintf("book entry %d is enabled but has no keys", i+1),
				})
			}
		}
	}

	return issues
}
