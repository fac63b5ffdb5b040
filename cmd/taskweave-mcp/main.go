// taskweave-mcp exposes the gap detection, bridging insertion and
// similarity clustering operations as MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taskweave/taskweave/internal/bridge"
	"github.com/taskweave/taskweave/internal/cluster"
	"github.com/taskweave/taskweave/internal/embedding"
	"github.com/taskweave/taskweave/internal/gaps"
	"github.com/taskweave/taskweave/internal/store"
)

type deps struct {
	store *store.Store
	vocab *gaps.Vocabulary
	llm   *embedding.Client
}

func main() {
	_ = godotenv.Load()

	dbPath := os.Getenv("TASKWEAVE_DB")
	if dbPath == "" {
		dbPath = "state/taskweave.db"
	}

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	vocab := gaps.DefaultVocabulary()
	if path := os.Getenv("VOCAB_PATH"); path != "" {
		if v, err := gaps.LoadVocabulary(path); err == nil {
			vocab = v
		} else {
			fmt.Fprintf(os.Stderr, "Vocabulary load failed, using default: %v\n", err)
		}
	}

	llm := embedding.NewClient(os.Getenv("OLLAMA_URL"), os.Getenv("EMBED_MODEL"))
	if m := os.Getenv("GENERATION_MODEL"); m != "" {
		llm.SetGenerationModel(m)
	}

	d := &deps{store: st, vocab: vocab, llm: llm}

	s := server.NewMCPServer(
		"taskweave",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(detectGapsTool(), d.handleDetectGaps)
	s.AddTool(insertBridgingTool(), d.handleInsertBridging)
	s.AddTool(clusterTool(), d.handleCluster)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func detectGapsTool() mcp.Tool {
	return mcp.NewTool("detect_gaps",
		mcp.WithDescription("Analyze an ordered task sequence for execution gaps. Each adjacent pair is scored on four indicators (time gap, workflow stage jump, missing dependency, skill jump); pairs with two or more indicators are reported with a calibrated confidence."),
		mcp.WithString("task_ids",
			mcp.Required(),
			mcp.Description("Comma-separated ordered list of task ids"),
		),
	)
}

func (d *deps) handleDetectGaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ids := splitIDs(args["task_ids"])
	if len(ids) < 2 {
		return mcp.NewToolResultError("task_ids must list at least two ids"), nil
	}

	detector := gaps.NewDetector(d.store, d.vocab)
	result, err := detector.Detect(ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("detection failed: %v", err)), nil
	}
	return jsonResult(result)
}

func insertBridgingTool() mcp.Tool {
	return mcp.NewTool("insert_bridging_tasks",
		mcp.WithDescription("Generate and insert an AI-proposed bridging task between two existing tasks. The insertion is validated for duplicates and dependency cycles; on failure nothing is committed."),
		mcp.WithString("predecessor_id",
			mcp.Required(),
			mcp.Description("Task id the bridging task comes after"),
		),
		mcp.WithString("successor_id",
			mcp.Required(),
			mcp.Description("Task id the bridging task comes before"),
		),
	)
}

func (d *deps) handleInsertBridging(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	predID, _ := args["predecessor_id"].(string)
	succID, _ := args["successor_id"].(string)
	if predID == "" || succID == "" {
		return mcp.NewToolResultError("predecessor_id and successor_id are required"), nil
	}

	weaver := bridge.NewWeaver(
		gaps.NewDetector(d.store, d.vocab),
		bridge.NewGenerator(d.llm),
		bridge.NewInserter(d.store, d.llm),
	)
	result, err := weaver.Weave([]string{predID, succID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("weave failed: %v", err)), nil
	}
	return jsonResult(result)
}

func clusterTool() mcp.Tool {
	return mcp.NewTool("cluster_tasks",
		mcp.WithDescription("Group tasks into clusters by embedding similarity using single-link agglomerative merging at the given cosine threshold."),
		mcp.WithString("task_ids",
			mcp.Required(),
			mcp.Description("Comma-separated list of task ids"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Cosine similarity threshold (0-1). Default 0.7."),
		),
	)
}

func (d *deps) handleCluster(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ids := splitIDs(args["task_ids"])
	if len(ids) == 0 {
		return mcp.NewToolResultError("task_ids is required"), nil
	}
	threshold := 0.7
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}

	tasks, missing, err := d.store.GetTasksByIDs(ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load tasks: %v", err)), nil
	}
	if len(missing) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("tasks not found: %s", strings.Join(missing, ", "))), nil
	}

	items := make([]cluster.Item, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, cluster.Item{ID: t.ID, Vector: t.Embedding})
	}
	result, err := cluster.BySimilarity(items, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("clustering failed: %v", err)), nil
	}
	return jsonResult(result)
}

func splitIDs(v any) []string {
	s, _ := v.(string)
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
