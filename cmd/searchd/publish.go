package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const publishBatchSize = 500

func newPublishCmd() *cobra.Command {
	var (
		file       string
		collection string
		language   string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish newline-delimited JSON documents as insert events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()

			n, err := publish(cmd.Context(), producer, in, collection, language)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d documents to %s\n", n, cfg.Kafka.DocumentTopic)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "NDJSON file to read, - for stdin")
	cmd.Flags().StringVar(&collection, "collection", "", "target collection")
	cmd.Flags().StringVar(&language, "language", "", "language of the documents")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

func publish(ctx context.Context, p batchPublisher, r io.Reader, collection, language string) (int, error) {
	events, err := readEvents(r, collection, language)
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(events); start += publishBatchSize {
		end := min(start+publishBatchSize, len(events))
		if err := p.PublishBatch(ctx, events[start:end]); err != nil {
			return start, fmt.Errorf("publishing documents %d-%d: %w", start, end-1, err)
		}
		slog.Debug("batch published", "from", start, "to", end-1)
	}
	return len(events), nil
}

// readEvents turns each non-blank line into an insert event. A string "id"
// field becomes the event ID so the event key keeps one document's events
// on one partition.
func readEvents(r io.Reader, collection, language string) ([]kafka.Event, error) {
	var events []kafka.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var doc schema.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev := consumer.DocumentEvent{
			Op:         consumer.OpInsert,
			Collection: collection,
			Document:   doc,
			Language:   language,
		}
		if id, ok := doc["id"].(string); ok {
			ev.ID = id
		}
		events = append(events, kafka.Event{Key: ev.Key(), Value: ev})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return events, nil
}
