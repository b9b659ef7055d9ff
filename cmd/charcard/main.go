// Package main provides the charcard CLI for inspecting, editing, and
// generating character card PNGs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/candre23/AI-CharCard-Editor/internal/codec"
	"github.com/candre23/AI-CharCard-Editor/internal/config"
	"github.com/candre23/AI-CharCard-Editor/internal/editor"
	"github.com/candre23/AI-CharCard-Editor/internal/generation"
	"github.com/candre23/AI-CharCard-Editor/internal/library"
	"github.com/candre23/AI-CharCard-Editor/internal/models"
	"github.com/candre23/AI-CharCard-Editor/internal/schema"
	"github.com/candre23/AI-CharCard-Editor/internal/tokens"
	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "new":
		newCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	case "validate":
		validateCmd(os.Args[2:])
	case "extract":
		extractCmd(os.Args[2:])
	case "embed":
		embedCmd(os.Args[2:])
	case "portrait":
		portraitCmd(os.Args[2:])
	case "worldbook":
		worldbookCmd(os.Args[2:])
	case "tokens":
		tokensCmd(os.Args[2:])
	case "list":
		listCmd(os.Args[2:])
	case "generate":
		generateCmd(os.Args[2:])
	case "version":
		fmt.Printf("charcard v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`charcard - Character card PNG editor CLI

Usage:
  charcard <command> [flags]

Commands:
  new         Create a blank V2 card with a placeholder portrait
  inspect     Show a card's fields and image properties
  validate    Run advisory checks against a card
  extract     Dump the embedded card JSON
  embed       Embed card JSON into a PNG
  portrait    Replace a card's portrait image
  worldbook   Import a worldbook file into a card's character book
  tokens      Estimate the card's token footprint
  list        List card files in a directory
  generate    Fill card fields with an AI backend
  version     Show version information
  help        Show this help message

Examples:
  charcard new card.png --name "Aria"
  charcard inspect card.png
  charcard extract card.png --out card.json
  charcard embed card.png --json card.json --out updated.png
  charcard generate card.png --brief "a wandering bard" --backend openai`)
}

func newCmd(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	name := fs.String("name", "", "Character name for the new card")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: charcard new <out.png> [--name NAME]")
	}
	out := fs.Arg(0)

	ed := editor.New(config.Load())
	session, err := ed.NewBlankCard()
	if err != nil {
		log.Fatalf("failed to create card: %v", err)
	}
	if *name != "" {
		session.SetField(types.FieldName, *name)
	}
	if err := ed.Save(session, out); err != nil {
		log.Fatalf("failed to save card: %v", err)
	}
	fmt.Printf("Created %s\n", out)
}

func inspectCmd(args []string) {
	container := loadCard(args, "inspect")

	data := container.Card.Data
	fmt.Printf("Name:              %s\n", data.Name)
	fmt.Printf("Creator:           %s\n", data.Creator)
	fmt.Printf("Character version: %s\n", data.CharacterVersion)
	fmt.Printf("Source schema:     %s\n", container.SourceVersion)
	fmt.Printf("Tags:              %v\n", data.Tags)
	fmt.Printf("Greetings:         1 primary, %d alternate\n", len(data.AlternateGreetings))
	if data.CharacterBook != nil {
		fmt.Printf("Character book:    %d entries\n", len(data.CharacterBook.Entries))
	}
	fmt.Printf("Portrait:          %dx%d, bit depth %d, color type %d\n",
		container.Portrait.Width, container.Portrait.Height,
		container.Portrait.BitDepth, container.Portrait.ColorType)
	fmt.Printf("Tokens (est.):     %d\n", tokens.EstimateCard(&data, tokens.VocabBig))
}

func validateCmd(args []string) {
	container := loadCard(args, "validate")

	issues := schema.Validate(container.Card)
	if len(issues) == 0 {
		fmt.Println("✓ No issues found")
		return
	}
	for _, issue := range issues {
		fmt.Printf("  ! %s: %s\n", issue.Field, issue.Message)
	}
	os.Exit(1)
}

func extractCmd(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	out := fs.String("out", "", "Write JSON to this file instead of stdout")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: charcard extract <card.png> [--out card.json]")
	}

	container, err := codec.LoadFile(fs.Arg(0))
	if err != nil {
		log.Fatalf("failed to load card: %v", err)
	}
	raw, err := json.MarshalIndent(container.Card, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal card: %v", err)
	}
	if *out == "" {
		fmt.Println(string(raw))
		return
	}
	if err := os.WriteFile(*out, append(raw, '\n'), 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", *out, err)
	}
	fmt.Printf("Wrote %s\n", *out)
}

func embedCmd(args []string) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	jsonPath := fs.String("json", "", "Card JSON file to embed (V1 or V2)")
	out := fs.String("out", "", "Output PNG path (defaults to in-place)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 || *jsonPath == "" {
		log.Fatal("usage: charcard embed <card.png> --json card.json [--out new.png]")
	}
	path := fs.Arg(0)
	if *out == "" {
		*out = path
	}

	container, err := codec.LoadFile(path)
	if err != nil {
		log.Fatalf("failed to load image: %v", err)
	}
	raw, err := os.ReadFile(*jsonPath)
	if err != nil {
		log.Fatalf("failed to read JSON: %v", err)
	}
	card, err := parseCardJSON(raw)
	if err != nil {
		log.Fatalf("failed to parse card JSON: %v", err)
	}
	container.Card = card
	if err := codec.SaveFile(container, *out); err != nil {
		log.Fatalf("failed to save card: %v", err)
	}
	fmt.Printf("Embedded %s into %s\n", *jsonPath, *out)
}

func portraitCmd(args []string) {
	fs := flag.NewFlagSet("portrait", flag.ExitOnError)
	image := fs.String("image", "", "Replacement portrait PNG")
	out := fs.String("out", "", "Output PNG path (defaults to in-place)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 || *image == "" {
		log.Fatal("usage: charcard portrait <card.png> --image new.png [--out out.png]")
	}
	path := fs.Arg(0)
	if *out == "" {
		*out = path
	}

	container, err := codec.LoadFile(path)
	if err != nil {
		log.Fatalf("failed to load card: %v", err)
	}
	pixels, err := os.ReadFile(*image)
	if err != nil {
		log.Fatalf("failed to read portrait: %v", err)
	}
	if err := container.ReplacePortrait(pixels); err != nil {
		log.Fatalf("failed to replace portrait: %v", err)
	}
	if err := codec.SaveFile(container, *out); err != nil {
		log.Fatalf("failed to save card: %v", err)
	}
	fmt.Printf("Replaced portrait in %s\n", *out)
}

func worldbookCmd(args []string) {
	fs := flag.NewFlagSet("worldbook", flag.ExitOnError)
	book := fs.String("book", "", "Worldbook JSON file to import")
	out := fs.String("out", "", "Output PNG path (defaults to in-place)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 || *book == "" {
		log.Fatal("usage: charcard worldbook <card.png> --book book.json [--out out.png]")
	}
	path := fs.Arg(0)
	if *out == "" {
		*out = path
	}

	container, err := codec.LoadFile(path)
	if err != nil {
		log.Fatalf("failed to load card: %v", err)
	}
	raw, err := os.ReadFile(*book)
	if err != nil {
		log.Fatalf("failed to read worldbook: %v", err)
	}
	src, err := schema.ParseWorldbook(raw)
	if err != nil {
		log.Fatalf("failed to parse worldbook: %v", err)
	}
	container.Card.Data.CharacterBook = schema.ImportWorldbook(container.Card.Data.CharacterBook, src)
	if err := codec.SaveFile(container, *out); err != nil {
		log.Fatalf("failed to save card: %v", err)
	}
	fmt.Printf("Imported %d entries into %s\n", len(src.Entries), *out)
}

func tokensCmd(args []string) {
	fs := flag.NewFlagSet("tokens", flag.ExitOnError)
	small := fs.Bool("small-vocab", false, "Assume a small-vocabulary tokenizer")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: charcard tokens <card.png> [--small-vocab]")
	}

	container, err := codec.LoadFile(fs.Arg(0))
	if err != nil {
		log.Fatalf("failed to load card: %v", err)
	}
	vocab := tokens.VocabBig
	if *small {
		vocab = tokens.VocabSmall
	}
	data := container.Card.Data
	for _, field := range types.TextFields() {
		fmt.Printf("  %-26s %6d\n", field, tokens.Estimate(data.FieldValue(field), vocab))
	}
	fmt.Printf("  %-26s %6d\n", "total", tokens.EstimateCard(&data, vocab))
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	_ = fs.Parse(args)
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	entries, err := library.Scan(dir)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", dir, err)
	}
	if len(entries) == 0 {
		fmt.Println("No card files found")
		return
	}
	for _, entry := range entries {
		name := entry.Name
		if !entry.HasCard {
			name = "(no card data)"
		}
		fmt.Printf("  %-30s %s  %s\n", name, entry.ModTime.Format("2006-01-02 15:04"), entry.Path)
	}
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	brief := fs.String("brief", "", "Short concept driving generation")
	backend := fs.String("backend", models.TextOpenAI, "Text backend (openai, xai, openrouter, gemini, koboldcpp)")
	imageBackend := fs.String("image-backend", "", "Image backend for the portrait slot (openai-image, gemini-image, koboldcpp-sd)")
	format := fs.String("format", "", "Instruct format (alpaca, chatml, vicuna, plain)")
	onlyEmpty := fs.Bool("only-empty", false, "Only fill fields that are still blank")
	out := fs.String("out", "", "Output PNG path (defaults to in-place)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: charcard generate <card.png> --brief TEXT [flags]")
	}
	path := fs.Arg(0)
	if *out == "" {
		*out = path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ed := editor.New(config.Load())
	session, err := ed.Open(path)
	if err != nil {
		log.Fatalf("failed to open card: %v", err)
	}
	defer ed.Close(session)

	job, err := ed.StartGenerationJob(ctx, session, editor.GenerateParams{
		TemplateID:     *format,
		TextBackendID:  *backend,
		ImageBackendID: *imageBackend,
		Brief:          *brief,
		OnlyFillEmpty:  *onlyEmpty,
	})
	if err != nil {
		log.Fatalf("failed to start generation: %v", err)
	}

	fmt.Printf("Generating with %s...\n", *backend)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	lastField := types.Field("")
	for {
		select {
		case <-ctx.Done():
			ed.Cancel(job)
			<-job.Done()
		case <-ticker.C:
			if status := ed.Poll(job); status.State == generation.StateRunning && status.SlotField != lastField {
				lastField = status.SlotField
				fmt.Printf("  ... %s\n", lastField)
			}
			continue
		case <-job.Done():
		}
		break
	}

	status := ed.Poll(job)
	switch status.State {
	case generation.StateComplete:
		for _, field := range status.Merge.Applied {
			fmt.Printf("  ✓ %s\n", field)
		}
		for _, field := range status.Merge.Skipped {
			fmt.Printf("  - %s (kept existing)\n", field)
		}
		if status.Merge.PortraitApplied {
			fmt.Println("  ✓ portrait")
		}
	case generation.StateCancelled:
		fmt.Println("Generation cancelled; keeping any fields already merged")
	default:
		log.Fatalf("generation failed: %v", status.Err)
	}

	if err := ed.Save(session, *out); err != nil {
		log.Fatalf("failed to save card: %v", err)
	}
	fmt.Printf("Saved %s\n", *out)
}

func loadCard(args []string, cmd string) *codec.CardContainer {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatalf("usage: charcard %s <card.png>", cmd)
	}
	container, err := codec.LoadFile(fs.Arg(0))
	if err != nil {
		log.Fatalf("failed to load card: %v", err)
	}
	return container
}

// parseCardJSON accepts either a V2 wrapper or bare V1 fields.
func parseCardJSON(raw []byte) (*types.CharacterCard, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["spec"]; ok {
		if err := schema.CheckStructure(mustAny(raw), types.SchemaV2); err != nil {
			return nil, err
		}
		var card types.CharacterCard
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, err
		}
		card.Normalize()
		return &card, nil
	}
	var data types.CardData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return schema.MigrateV1ToV2(data), nil
}

func mustAny(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
