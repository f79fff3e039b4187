package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"audio-eval/internal/remote"
	"audio-eval/internal/schemas"
)

func main() {
	base := envOr("API_BASE_URL", "http://localhost:8000")
	token := envOr("API_TOKEN", "")

	baseFlag := flag.String("base", base, "API base URL (e.g., http://localhost:8000)")
	tokenFlag := flag.String("token", token, "API token for write endpoints")
	archive := flag.Bool("archive", false, "Also enqueue an archive job for the smoke rater")
	keep := flag.Bool("keep", false, "Keep the smoke rater instead of deleting it")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c := remote.New(*baseFlag, remote.WithToken(*tokenFlag))
	httpc := &http.Client{Timeout: 12 * time.Second}

	// 1) Health
	if err := c.Health(ctx); err != nil {
		fatalf("health: %v", err)
	}
	fmt.Println("✅ API healthy")

	// 2) Register a throwaway rater
	raterID := "smoke-" + uuid.NewString()[:8]
	u, err := c.CreateUser(ctx, raterID, "Smoke Tester")
	if err != nil {
		fatalf("create user: %v", err)
	}
	fmt.Printf("✅ Created rater: id=%s name=%s\n", u.ID, u.Name)

	// 3) Save one record per tool
	records := map[schemas.Tool]any{
		schemas.ToolComparison: map[string]map[string]string{"item-001": {"rebuild_01": "good", "rebuild_02": "bad"}},
		schemas.ToolABTest:     map[string]any{"item-001": "rebuild_02", "item-002": nil},
		schemas.ToolMOS:        map[string]any{"item-001:GT": 5, "item-001:rebuild_01": 3},
	}
	for _, tool := range schemas.Tools {
		b, _ := json.Marshal(records[tool])
		if err := c.SaveProgress(ctx, string(tool), "smoke", raterID, b); err != nil {
			fatalf("save %s: %v", tool, err)
		}
	}
	fmt.Println("✅ Saved progress for every tool")

	// 4) Read it back
	for _, tool := range schemas.Tools {
		data, found, err := c.GetProgress(ctx, string(tool), "smoke", raterID)
		if err != nil {
			fatalf("get %s: %v", tool, err)
		}
		if !found {
			fatalf("get %s: no data stored", tool)
		}
		fmt.Printf("✅ Loaded %s: %s\n", tool, string(data))
	}

	// 5) Per-rater summary and full export
	var list schemas.UserProgressList
	if err := getJSON(ctx, httpc, fmt.Sprintf("%s/api/users/%s/progress", *baseFlag, raterID), &list); err != nil {
		fatalf("list progress: %v", err)
	}
	fmt.Printf("✅ Progress summary:\n%s\n", compactJSON(list))

	export, err := c.Export(ctx, raterID)
	if err != nil {
		fatalf("export: %v", err)
	}
	fmt.Printf("✅ Exported %d records\n", len(export.Progress))

	// 6) Optional archive
	if *archive {
		acc, err := c.Archive(ctx, raterID)
		if err != nil {
			fatalf("archive: %v", err)
		}
		fmt.Printf("✅ Enqueued archive: task=%s\n", acc.TaskID)

		deadline := time.Now().Add(30 * time.Second)
		for {
			list, err := c.ListArchives(ctx, raterID)
			if err != nil {
				fatalf("list archives: %v", err)
			}
			if len(list) > 0 {
				fmt.Printf("✅ Archive stored: %s (%d records)\n", list[0].ObjectRef, list[0].Records)
				break
			}
			if time.Now().After(deadline) {
				fatalf("archive not stored after 30s (is the worker running?)")
			}
			time.Sleep(time.Second)
		}
	}

	if !*keep {
		for _, tool := range schemas.Tools {
			if err := c.DeleteProgress(ctx, string(tool), "smoke", raterID); err != nil {
				fatalf("delete %s: %v", tool, err)
			}
		}
		fmt.Println("✅ Cleaned up smoke progress")
	}

	fmt.Printf("🎉 Smoke run OK. Rater=%s\n", raterID)
}

// --- helpers ---

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("GET %s -> %d: %s", url, res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func compactJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func fatalf(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}
