package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/aws"
)

const (
	metricStoreCalls   = "DraftStoreCalls"
	metricStoreLatency = "DraftStoreLatency"
)

type countKey struct {
	op      string
	outcome string
}

type latencyStats struct {
	count, sum, min, max float64
}

// CloudWatchRecorder aggregates store calls in memory and publishes them
// with PutMetricData on Flush.
type CloudWatchRecorder struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    zerolog.Logger
	nowFunc   func() time.Time

	mu      sync.Mutex
	counts  map[countKey]float64
	latency map[string]*latencyStats
}

// NewCloudWatchRecorder returns a recorder publishing under namespace.
func NewCloudWatchRecorder(client aws.CloudWatchAPI, namespace string, logger zerolog.Logger) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
		counts:    map[countKey]float64{},
		latency:   map[string]*latencyStats{},
	}
}

func (r *CloudWatchRecorder) Record(op string, err error, latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[countKey{op: op, outcome: outcome(err)}]++
	st, ok := r.latency[op]
	if !ok {
		r.latency[op] = &latencyStats{count: 1, sum: ms, min: ms, max: ms}
		return
	}
	st.count++
	st.sum += ms
	if ms < st.min {
		st.min = ms
	}
	if ms > st.max {
		st.max = ms
	}
}

// Flush publishes everything recorded since the last flush. Aggregates are
// reset before the call, so a failed publish drops that interval.
func (r *CloudWatchRecorder) Flush(ctx context.Context) error {
	data := r.drain()
	if len(data) == 0 {
		return nil
	}
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (r *CloudWatchRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.Flush(flushCtx); err != nil {
				r.logger.Warn().Err(err).Msg("final metrics flush failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("metrics flush failed")
			}
		}
	}
}

func (r *CloudWatchRecorder) drain() []types.MetricDatum {
	r.mu.Lock()
	counts, latency := r.counts, r.latency
	r.counts = map[countKey]float64{}
	r.latency = map[string]*latencyStats{}
	r.mu.Unlock()

	now := r.nowFunc()
	var data []types.MetricDatum

	keys := make([]countKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].op != keys[j].op {
			return keys[i].op < keys[j].op
		}
		return keys[i].outcome < keys[j].outcome
	})
	for _, k := range keys {
		data = append(data, types.MetricDatum{
			MetricName: sdkaws.String(metricStoreCalls),
			Dimensions: []types.Dimension{
				{Name: sdkaws.String("Operation"), Value: sdkaws.String(k.op)},
				{Name: sdkaws.String("Outcome"), Value: sdkaws.String(k.outcome)},
			},
			Unit:      types.StandardUnitCount,
			Value:     sdkaws.Float64(counts[k]),
			Timestamp: &now,
		})
	}

	ops := make([]string, 0, len(latency))
	for op := range latency {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		st := latency[op]
		data = append(data, types.MetricDatum{
			MetricName: sdkaws.String(metricStoreLatency),
			Dimensions: []types.Dimension{
				{Name: sdkaws.String("Operation"), Value: sdkaws.String(op)},
			},
			Unit: types.StandardUnitMilliseconds,
			StatisticValues: &types.StatisticSet{
				SampleCount: sdkaws.Float64(st.count),
				Sum:         sdkaws.Float64(st.sum),
				Minimum:     sdkaws.Float64(st.min),
				Maximum:     sdkaws.Float64(st.max),
			},
			Timestamp: &now,
		})
	}
	return data
}
