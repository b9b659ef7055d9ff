package types

// Field names one addressable card field, used by generation slots and the
// merge step to read and write fields without reflection.
type Field string

const (
	FieldName                    Field = "name"
	FieldDescription             Field = "description"
	FieldPersonality             Field = "personality"
	FieldScenario                Field = "scenario"
	FieldFirstMes                Field = "first_mes"
	FieldMesExample              Field = "mes_example"
	FieldCreatorNotes            Field = "creator_notes"
	FieldSystemPrompt            Field = "system_prompt"
	FieldPostHistoryInstructions Field = "post_history_instructions"

	// FieldPortrait is the pseudo-field a generation template uses to
	// target the image backend instead of a text field.
	FieldPortrait Field = "portrait"
)

// TextFields returns the free-form text fields in their editing order.
func TextFields() []Field {
	return []Field{
		FieldName,
		FieldDescription,
		FieldPersonality,
		FieldScenario,
		FieldFirstMes,
		FieldMesExample,
		FieldCreatorNotes,
		FieldSystemPrompt,
		FieldPostHistoryInstructions,
	}
}

// FieldValue reads a text field by name. Unknown fields read as empty.
func (d *CardData) FieldValue(f Field) string {
	switch f {
	case FieldName:
		return d.Name
	case FieldDescription:
		return d.Description
	case FieldPersonality:
		return d.Personality
	case FieldScenario:
		return d.Scenario
	case FieldFirstMes:
		return d.FirstMes
	case FieldMesExample:
		return d.MesExample
	case FieldCreatorNotes:
		return d.CreatorNotes
	case FieldSystemPrompt:
		return d.SystemPrompt
	case FieldPostHistoryInstructions:
		return d.PostHistoryInstructions
	default:
		return ""
	}
}

// SetFieldValue writes a text field by name. Unknown fields are ignored.
func (d *CardData) SetFieldValue(f Field, value string) {
	switch f {
	case FieldName:
		d.Name = value
	case FieldDescription:
		d.Description = value
	case FieldPersonality:
		d.Personality = value
	case FieldScenario:
		d.Scenario = value
	case FieldFirstMes:
		d.FirstMes = value
	case FieldMesExample:
		d.MesExample = value
	case FieldCreatorNotes:
		d.CreatorNotes = value
	case FieldSystemPrompt:
		d.SystemPrompt = value
	case FieldPostHistoryInstructions:
		d.PostHistoryInstructions = value
	}
}
