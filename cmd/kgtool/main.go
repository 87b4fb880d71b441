package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	redisclient "github.com/yungbote/videograph-backend/internal/clients/redis"
	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/modules/resolution"
	"github.com/yungbote/videograph-backend/internal/platform/envutil"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
	"github.com/yungbote/videograph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/videograph-backend/internal/platform/openai"
)

const usage = `kgtool <command> [flags]

Commands:
  init-schema          create constraints and indexes
  merge                merge one extraction payload (JSON on stdin or -file)
  stats                print graph totals
  resolution-stats     print conflict and mention counts (-video optional)
  conflicts            list conflict flags pending review
  resolve              record a decision on a conflict flag
  apply                write back the relationship a resolved flag withheld
  search               find entities by name fragment
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(envutil.Int("KGTOOL_TIMEOUT_SECONDS", 300))*time.Second)
	defer cancel()

	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("neo4j init failed", "error", err)
	}
	if client == nil {
		log.Fatal("NEO4J_URI is not set")
	}
	defer client.Close(context.Background())

	store, err := graph.NewNeo4jStore(client, log)
	if err != nil {
		log.Fatal("store init failed", "error", err)
	}

	if err := run(ctx, log, store, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal("command failed", "command", os.Args[1], "error", err)
	}
}

func run(ctx context.Context, log *logger.Logger, store graph.Store, command string, args []string) error {
	switch command {
	case "init-schema":
		return store.InitSchema(ctx)

	case "merge":
		fs := flag.NewFlagSet("merge", flag.ExitOnError)
		file := fs.String("file", "", "payload file (defaults to stdin)")
		fs.Parse(args)
		return runMerge(ctx, log, store, *file)

	case "stats":
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "resolution-stats":
		fs := flag.NewFlagSet("resolution-stats", flag.ExitOnError)
		videoID := fs.String("video", "", "restrict to one video")
		fs.Parse(args)
		stats, err := store.ResolutionStats(ctx, *videoID)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "conflicts":
		flags, err := resolution.PendingConflicts(ctx, resolution.ReviewDeps{Log: log, Store: store})
		if err != nil {
			return err
		}
		return printJSON(flags)

	case "resolve":
		fs := flag.NewFlagSet("resolve", flag.ExitOnError)
		videoID := fs.String("video", "", "video id of the flag")
		newRel := fs.String("new", "", "serialized new relationship")
		existingRel := fs.String("existing", "", "serialized existing relationship")
		decision := fs.String("decision", "", "keep_existing | use_new | merge")
		resolvedBy := fs.String("by", "", "reviewer identity")
		apply := fs.Bool("apply", false, "also write back the withheld relationship")
		fs.Parse(args)

		res, err := domain.ParseConflictResolution(*decision)
		if err != nil {
			return err
		}
		deps := resolution.ReviewDeps{Log: log, Store: store}
		out, err := resolution.ResolveConflict(ctx, deps, *videoID, *newRel, *existingRel, res, *resolvedBy)
		if err != nil {
			return err
		}
		if !out.Found {
			return fmt.Errorf("no conflict flag matches that key")
		}
		if *apply {
			if _, err := resolution.ApplyResolution(ctx, deps, *out.Flag); err != nil {
				return err
			}
		}
		return printJSON(out)

	case "apply":
		fs := flag.NewFlagSet("apply", flag.ExitOnError)
		videoID := fs.String("video", "", "video id of the flag")
		newRel := fs.String("new", "", "serialized new relationship")
		existingRel := fs.String("existing", "", "serialized existing relationship")
		fs.Parse(args)

		cf, err := store.GetConflictFlag(ctx, *videoID, *newRel, *existingRel)
		if err != nil {
			return err
		}
		if cf == nil {
			return fmt.Errorf("no conflict flag matches that key")
		}
		created, err := resolution.ApplyResolution(ctx, resolution.ReviewDeps{Log: log, Store: store}, *cf)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"created": created})

	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		query := fs.String("q", "", "name fragment")
		limit := fs.Int("limit", 20, "max results")
		fs.Parse(args)
		entities, err := store.SearchEntities(ctx, *query, *limit)
		if err != nil {
			return err
		}
		return printJSON(entities)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// mergePayload is the extraction output for one video.
type mergePayload struct {
	VideoID       string          `json:"video_id"`
	Entities      []domain.Entity `json:"entities"`
	Relationships []domain.Triple `json:"relationships"`
}

func runMerge(ctx context.Context, log *logger.Logger, store graph.Store, file string) error {
	in := os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var payload mergePayload
	if err := json.NewDecoder(in).Decode(&payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	var ai openai.Client
	if os.Getenv("OPENAI_API_KEY") != "" {
		client, err := openai.NewClient(log)
		if err != nil {
			return err
		}
		ai = client
	} else {
		log.Warn("OPENAI_API_KEY not set, merging without semantic resolution")
	}

	cache, err := redisclient.NewJudgeCacheFromEnv(log)
	if err != nil {
		log.Warn("judge cache init failed, continuing without it", "error", err)
	}
	defer cache.Close()

	stats, err := resolution.ResolveAndMergeVideoGraph(ctx, resolution.MergeDeps{
		Log:   log,
		Store: store,
		AI:    ai,
		Cache: cache,
	}, resolution.MergeInput{
		VideoID:       payload.VideoID,
		Entities:      payload.Entities,
		Relationships: payload.Relationships,
	})
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
