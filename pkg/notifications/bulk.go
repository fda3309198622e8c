package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const DefaultBulkBatchSize = 100

// BulkOptions controls a bulk create.
type BulkOptions struct {
	// BatchSize is the number of notifications per storage call.
	BatchSize        int
	DeliveryChannels []Channel
	// ScheduleDelivery leaves created notifications pending for the
	// background processor.
	ScheduleDelivery bool
	SkipEncryption   bool
}

// BulkReport aggregates the per-item outcome of a bulk create. Items has
// one entry per input notification, in input order.
type BulkReport struct {
	Items      []BulkItemResult `json:"items"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Batches    int              `json:"batches"`
}

// BulkCreate validates every notification, stores the valid ones in chunks
// and reports each item's outcome. Invalid items and items of a failed
// chunk are reported as failed; the remaining chunks still run. It only
// returns an error for empty input or an invalid batch size.
func (s *Service) BulkCreate(ctx context.Context, items []Notification, opts BulkOptions) (BulkReport, error) {
	if len(items) == 0 {
		return BulkReport{}, ErrEmptyBatch
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBulkBatchSize
	}
	if opts.BatchSize < 0 || opts.BatchSize > maxBulkBatchSize {
		return BulkReport{}, fmt.Errorf("%w: %d", ErrInvalidBatchSize, opts.BatchSize)
	}

	report := BulkReport{Items: make([]BulkItemResult, len(items)), Total: len(items)}
	createOpts := CreateOptions{
		Channels:         opts.DeliveryChannels,
		ScheduleDelivery: opts.ScheduleDelivery,
		SkipEncryption:   opts.SkipEncryption,
	}

	var (
		valid   []Notification
		indexes []int
	)
	for i, n := range items {
		report.Items[i] = BulkItemResult{Index: i}
		plain, err := s.prepare(ctx, n, createOpts)
		if err == nil {
			plain, err = s.seal(ctx, plain, opts.SkipEncryption)
		}
		if err != nil {
			report.Items[i].Error = err.Error()
			continue
		}
		valid = append(valid, plain)
		indexes = append(indexes, i)
	}

	var created []string
	for start := 0; start < len(valid); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(valid))
		chunk, chunkIdx := valid[start:end], indexes[start:end]
		report.Batches++

		results, err := s.store.BulkCreate(ctx, BulkCreateRequest{
			Notifications:    chunk,
			DeliveryChannels: slices.Clone(opts.DeliveryChannels),
			ScheduleDelivery: opts.ScheduleDelivery,
		})
		if err != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "bulk chunk failed",
				slog.Int("batch", report.Batches),
				slog.Int("size", len(chunk)),
				logger.Error(err),
			)
			for _, idx := range chunkIdx {
				report.Items[idx].Error = err.Error()
			}
			continue
		}

		for j, idx := range chunkIdx {
			res := chunkResult(results, j)
			res.Index = idx
			if res.Success && res.ID == "" {
				res.ID = chunk[j].ID
			}
			report.Items[idx] = res
			if res.Success {
				created = append(created, res.ID)
			}
		}
	}

	for _, item := range report.Items {
		if item.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}

	if !opts.ScheduleDelivery {
		for _, id := range created {
			if _, err := s.dispatcher.Deliver(ctx, id, nil); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "bulk item stored but delivery failed",
					logger.NotificationID(id), logger.Error(err))
			}
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "bulk create finished",
		slog.Int("total", report.Total),
		slog.Int("successful", report.Successful),
		slog.Int("failed", report.Failed),
		slog.Int("batches", report.Batches),
	)
	return report, nil
}

const maxBulkBatchSize = 1000

// chunkResult finds the result for position j of a chunk. Stores report
// results in request order, but an Index field takes precedence when set.
func chunkResult(results []BulkItemResult, j int) BulkItemResult {
	for _, r := range results {
		if r.Index == j && (r.Success || r.Error != "") {
			return r
		}
	}
	if j < len(results) {
		return results[j]
	}
	return BulkItemResult{Error: "no result returned by storage"}
}
