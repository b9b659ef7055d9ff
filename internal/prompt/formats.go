package prompt

import (
	"fmt"
	"strings"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// Instruct format ids shipped with the editor.
const (
	FormatAlpaca  = "alpaca"
	FormatChatML  = "chatml"
	FormatVicuna  = "vicuna"
	FormatPlain   = "plain"
	FormatDefault = FormatPlain
)

// systemText is the shared generation charter. It is the same rulebook for
// every instruct format; only the chat markup around it changes.
const systemText = `You generate TavernAI character card content from a creator brief, one field at a time.
Write vivid but concise prose. Use immersive sensory detail and natural dialogue.
Refer to the character as {{char}} and the person talking to them as {{user}}.
Respect platform safety, keep a coherent point of view, and never contradict already-established fields.
Return ONLY the text of the requested field, with no labels, headers, or commentary.`

// contextText surfaces everything already known about the card. Fields not
// yet written render as nothing at all.
const contextText = `{{if .name}}Character name: {{.name}}
{{end}}{{if .brief}}Creator brief: {{.brief}}
{{end}}{{if .description}}Established description:
{{.description}}
{{end}}{{if .personality}}Established personality:
{{.personality}}
{{end}}{{if .scenario}}Established scenario:
{{.scenario}}
{{end}}{{if .first_mes}}Established first message:
{{.first_mes}}
{{end}}`

// slotTasks are the per-field marching orders, in generation order. Later
// slots lean on the fields the earlier ones produced.
var slotTasks = []struct {
	field types.Field
	task  string
}{
	{types.FieldDescription, `Write the "description" field: appearance, background, skills, notable props, and setting. Under 1200 words.`},
	{types.FieldPersonality, `Write the "personality" field: layered traits, quirks, strengths, and vulnerabilities that fit the description. Under 1200 words.`},
	{types.FieldScenario, `Write the "scenario" field: a present-moment scene that makes sense for this character's life and pulls {{user}} in. Under 1200 words.`},
	{types.FieldFirstMes, `Write the "first_mes" field: an in-character opening message the bot sends first. Do not write any {{user}} lines.`},
	{types.FieldMesExample, `Write the "mes_example" field: one or two short exchanges that demonstrate voice and style. Wrap each block in <EXAMPLE START> and <EXAMPLE END>, prefix assistant lines with {{char}}:, and keep {{user}} lines minimal.`},
}

// portraitBody turns the card description into an image prompt. Identical
// across formats because image backends take a bare prompt.
const portraitBody = `{{if .description}}{{.description}}{{else}}{{.brief}}{{end}}

Style: cinematic portrait, soft key light, sharp focus, detailed textures, natural color, PNG output.`

func init() {
	for _, format := range []string{FormatAlpaca, FormatChatML, FormatVicuna, FormatPlain} {
		mustRegister(buildFormat(format))
	}
}

// buildFormat assembles the maximum-effort template for one instruct
// format by wrapping the shared system, context, and task text in that
// format's chat markup.
func buildFormat(format string) *GenerationTemplate {
	t := &GenerationTemplate{Format: format}
	for _, st := range slotTasks {
		t.Slots = append(t.Slots, Slot{
			Field: st.field,
			Body:  wrapInstruct(format, st.task),
		})
	}
	t.Slots = append(t.Slots, Slot{Field: types.FieldPortrait, Body: portraitBody})
	return t
}

func wrapInstruct(format, task string) string {
	user := contextText + "\n" + task
	switch format {
	case FormatAlpaca:
		return fmt.Sprintf("### Instruction:\n%s\n\n%s\n\n### Response:\n", systemText, user)
	case FormatChatML:
		return fmt.Sprintf("<|im_start|>system\n%s<|im_end|>\n<|im_start|>user\n%s<|im_end|>\n<|im_start|>assistant\n", systemText, user)
	case FormatVicuna:
		return fmt.Sprintf("SYSTEM: %s\n\nUSER: %s\n\nASSISTANT: ", systemText, user)
	default:
		// Plain concatenation; hosted chat APIs apply their own wrapper.
		return strings.Join([]string{systemText, user}, "\n\n")
	}
}
