package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/taskweave/taskweave/internal/bridge"
	"github.com/taskweave/taskweave/internal/cluster"
	"github.com/taskweave/taskweave/internal/embedding"
	"github.com/taskweave/taskweave/internal/gaps"
	"github.com/taskweave/taskweave/internal/ingest"
	"github.com/taskweave/taskweave/internal/store"
)

func main() {
	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("[config] Loaded .env file")
	}

	dbPath := flag.String("db", envOr("TASKWEAVE_DB", "state/taskweave.db"), "Path to the task database")
	ollamaURL := flag.String("ollama", os.Getenv("OLLAMA_URL"), "Ollama base URL")
	embedModel := flag.String("embed-model", os.Getenv("EMBED_MODEL"), "Embedding model")
	genModel := flag.String("gen-model", os.Getenv("GENERATION_MODEL"), "Generation model")
	vocabPath := flag.String("vocab", os.Getenv("VOCAB_PATH"), "Optional YAML stage/skill vocabulary")
	threshold := flag.Float64("threshold", 0.7, "Similarity threshold for cluster")
	linkSeq := flag.Bool("link", false, "Chain imported tasks with prerequisite edges")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	s, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	vocab := loadVocab(*vocabPath)
	llm := embedding.NewClient(*ollamaURL, *embedModel)
	if *genModel != "" {
		llm.SetGenerationModel(*genModel)
	}

	switch args[0] {
	case "import":
		runImport(s, llm, args[1:], *linkSeq)
	case "detect":
		runDetect(s, vocab, args[1:])
	case "cluster":
		runCluster(s, args[1:], *threshold)
	case "weave":
		runWeave(s, vocab, llm, args[1:])
	case "stats":
		runStats(s)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `taskweave - task graph gap detection and bridging

Usage:
  taskweave [flags] import <file>...      import task lists from markdown or text documents
  taskweave [flags] detect <task-id>...   analyze a task sequence for gaps
  taskweave [flags] cluster <task-id>...  group tasks by embedding similarity
  taskweave [flags] weave <task-id>...    detect gaps, generate and insert bridging tasks
  taskweave [flags] stats                 print store statistics

Flags:`)
	flag.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadVocab(path string) *gaps.Vocabulary {
	if path == "" {
		return gaps.DefaultVocabulary()
	}
	v, err := gaps.LoadVocabulary(path)
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}
	log.Printf("[config] Loaded vocabulary from %s (%d stages)", path, len(v.Stages))
	return v
}

func runImport(s *store.Store, llm *embedding.Client, paths []string, linkSeq bool) {
	if len(paths) == 0 {
		log.Fatal("import requires at least one document path")
	}
	importer := ingest.NewImporter(s, llm)
	importer.LinkSequential = linkSeq
	for _, path := range paths {
		result, err := importer.ImportFile(path)
		if err != nil {
			log.Fatalf("Import of %s failed: %v", path, err)
		}
		printJSON(result)
	}
}

func runDetect(s *store.Store, vocab *gaps.Vocabulary, ids []string) {
	if len(ids) < 2 {
		log.Fatal("detect requires at least two task ids")
	}
	detector := gaps.NewDetector(s, vocab)
	result, err := detector.Detect(ids)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}
	printJSON(result)
}

func runCluster(s *store.Store, ids []string, threshold float64) {
	if len(ids) < 1 {
		log.Fatal("cluster requires at least one task id")
	}
	tasks, missing, err := s.GetTasksByIDs(ids)
	if err != nil {
		log.Fatalf("Failed to load tasks: %v", err)
	}
	if len(missing) > 0 {
		log.Fatalf("Tasks not found: %s", strings.Join(missing, ", "))
	}

	items := make([]cluster.Item, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, cluster.Item{ID: t.ID, Vector: t.Embedding})
	}
	result, err := cluster.BySimilarity(items, threshold)
	if err != nil {
		log.Fatalf("Clustering failed: %v", err)
	}
	printJSON(result)
}

func runWeave(s *store.Store, vocab *gaps.Vocabulary, llm *embedding.Client, ids []string) {
	if len(ids) < 2 {
		log.Fatal("weave requires at least two task ids")
	}
	weaver := bridge.NewWeaver(
		gaps.NewDetector(s, vocab),
		bridge.NewGenerator(llm),
		bridge.NewInserter(s, llm),
	)
	result, err := weaver.Weave(ids)
	if err != nil {
		log.Fatalf("Weave failed: %v", err)
	}
	printJSON(result)
}

func runStats(s *store.Store) {
	stats, err := s.Stats()
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	log.Printf("Tasks: %d", stats["tasks"])
	log.Printf("Relationships: %d", stats["relationships"])
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
