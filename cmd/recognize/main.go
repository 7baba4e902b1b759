// Command recognize runs field extraction against a single receipt
// image or PDF and prints the result. It is a connectivity and prompt
// smoke test, not part of the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/infrastructure/external/openai"
	"github.com/HadassahLevi/tiktax/internal/infrastructure/storage"
)

func main() {
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	model := flag.String("model", "gpt-4o", "Vision model to use")
	timeout := flag.Duration("timeout", 60*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: recognize [--key sk-...] [--model gpt-4o] <receipt.jpg|pdf>\n")
		os.Exit(1)
	}
	imagePath := flag.Arg(0)

	_ = gotenv.Load()
	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		os.Exit(1)
	}

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	content, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot read %s: %v\n", imagePath, err)
		os.Exit(1)
	}

	// Stage the file through a throwaway image store so the exact
	// server-side resolution path runs.
	tmpDir, err := os.MkdirTemp("", "recognize-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	images := storage.NewLocalImageStore(tmpDir, logger)
	ref, err := images.Store(context.Background(), "cli", filepath.Base(imagePath), content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	registry := entity.NewCategoryRegistry(entity.SeedCategories())
	recognizer := openai.NewRecognizer(*apiKey, *model, 0.1, 1500, *timeout, images, registry, logger)

	fmt.Printf("Recognizing %s with %s...\n", imagePath, *model)
	start := time.Now()

	result, err := recognizer.Recognize(context.Background(), ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: recognition failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done in %v, %d fields extracted:\n\n", time.Since(start).Round(time.Millisecond), len(result.Fields))

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
