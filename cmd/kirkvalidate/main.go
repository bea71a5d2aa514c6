// Command kirkvalidate replays a JSON array of events through
// pkg/validator and prints the resulting outcome. It takes no action on
// a mint or transport — it is the offline auditing counterpart to
// kirknode's live observer loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/game/coinflip"
	"github.com/EthnTuttle/kirk/pkg/game/parity"
	"github.com/EthnTuttle/kirk/pkg/mint"
	"github.com/EthnTuttle/kirk/pkg/validator"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)

	var (
		inputPath = flag.String("in", "", "path to a JSON file containing an array of events (default: stdin)")
		pretty    = flag.Bool("pretty", true, "pretty-print the result JSON")
		checkMint = flag.Bool("check-mint", false, "consult a local stub mint for revealed-token validity and cross-sequence replay (offline auditing has no real mint to ask, so this only catches replays within the stub's own issuance record)")
	)
	flag.Parse()

	events, err := readEvents(*inputPath)
	if err != nil {
		log.Fatalf("kirkvalidate: %v", err)
	}

	registry := game.NewRegistry()
	registry.Register(coinflip.New())
	registry.Register(parity.New())

	var mintChecker mint.Mint
	if *checkMint {
		mintChecker = mint.NewStubMint()
	}

	result := validator.Validate(events, registry, mintChecker, time.Now().Unix())

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		log.Fatalf("kirkvalidate: encode result: %v", err)
	}

	if !result.IsValid {
		os.Exit(1)
	}
}

func readEvents(path string) ([]event.Event, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var events []event.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse event array: %w", err)
	}
	return events, nil
}
