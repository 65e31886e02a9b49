package datastoreMatching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	redisHost = os.Getenv("REDIS_HOST")
	redisPort = os.Getenv("REDIS_PORT")

	redisClient *redis.Client
)

func init() {
	functions.CloudEvent("datastore-matching", matchDatastores)

	redisClient = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
	})
}

type MessagePublishedData struct {
	Message PubSubMessage `json:"message"`
}

type PubSubMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// batchEntry is one element of a queued batch: either a bare datastore name
// or an {id,name} object.
type batchEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (b *batchEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		b.Name = name
		return nil
	}
	type plain batchEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = batchEntry(p)
	return nil
}

func resultKey(batchKey string) string {
	return fmt.Sprintf("datastore_match_result:%s", batchKey)
}

func matchDatastores(ctx context.Context, e event.Event) error {
	var msg MessagePublishedData
	if err := e.DataAs(&msg); err != nil {
		return fmt.Errorf("event.DataAs: %v", err)
	}

	batchKey := msg.Message.Attributes["batchKey"]
	processingId := msg.Message.Attributes["processingId"]

	if batchKey == "" {
		batchKey = "unmatched_datastores"
	}

	return processBatch(ctx, batchKey, processingId)
}

func processBatch(ctx context.Context, batchKey string, processingId string) error {
	// Idempotency key built from both the batchKey and processingId so
	// Pub/Sub redeliveries are suppressed.
	idempotencyKey := fmt.Sprintf("%s:%s:processed", batchKey, processingId)

	exists, err := redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Printf("Error checking idempotency key: %v", err)
	} else if exists > 0 {
		log.Printf("Message with processingId %s for batch %s already processed, skipping",
			processingId, batchKey)
		return nil
	}

	// Set the idempotency key without TTL
	redisClient.Set(ctx, idempotencyKey, "1", 0)

	data, err := redisClient.Get(ctx, batchKey).Result()
	if err == redis.Nil || data == "" {
		log.Printf("No data found for batch key: %s", batchKey)
		return nil
	} else if err != nil {
		log.Printf("Redis GET error: %v", err)
		return fmt.Errorf("redis GET error: %w", err)
	}

	log.Printf("Processing batch: %s", batchKey)

	var entries []batchEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		log.Printf("Failed to unmarshal batch data: %v", err)
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	rows := make([]InputRow, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		rows = append(rows, InputRow{ID: entry.ID, Name: name})
	}

	log.Printf("Found %d datastores to process", len(rows))

	if len(rows) == 0 {
		log.Printf("No datastores to process, removing batch key: %s", batchKey)
		return redisClient.Del(ctx, batchKey).Err()
	}

	cfg := ConfigFromEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.ReferenceFile == "" {
		return fmt.Errorf("ACAT_REFERENCE_FILE is not set")
	}

	reference, err := LoadReference(cfg.ReferenceFile)
	if err != nil {
		return fmt.Errorf("loading reference list: %w", err)
	}

	pipeline, err := BuildPipeline(cfg, NewRedisCycleCache(redisClient, cfg.EOLCacheTTL))
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	runID := processingId
	if runID == "" {
		runID = uuid.NewString()
	}

	report := pipeline.Run(ctx, runID, reference, rows)

	payload, err := report.JSON()
	if err != nil {
		log.Printf("Failed to marshal run report: %v", err)
		return fmt.Errorf("marshal run report: %w", err)
	}

	if err := redisClient.Set(ctx, resultKey(batchKey), string(payload), 0).Err(); err != nil {
		log.Printf("Failed to store run report in Redis: %v", err)
		return err
	}

	log.Printf("Stored run report for batch %s: %d matches, %d success, %d not found, %d errors",
		batchKey, len(report.Matches), len(report.Successes), len(report.NotFound), len(report.Errors))

	log.Printf("Successfully processed batch, removing batch key: %s", batchKey)
	return redisClient.Del(ctx, batchKey).Err()
}
