package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/logging"
	"github.com/JonMunkholm/graphload/internal/progress"
)

// DistanceProperty holds the distance in meters on proximity edges.
const DistanceProperty = "distance_m"

// RelationshipBuilder creates edges between nodes already in the store.
// It pages through the driving kind's nodes in key order, so its batches
// are resumable the same way entity batches are.
type RelationshipBuilder struct {
	runner
	store graph.ReadWriter
}

// NewRelationshipBuilder wires a builder over a store that can both read
// and write nodes.
func NewRelationshipBuilder(store graph.ReadWriter, ps *progress.Store, opts ...Option) *RelationshipBuilder {
	return &RelationshipBuilder{runner: newRunner(ps, opts), store: store}
}

// Build runs every relationship of ds in declaration order.
func (b *RelationshipBuilder) Build(ctx context.Context, ds Dataset) (*RunReport, error) {
	start := b.now()
	report := &RunReport{RunID: logging.RunIDFromContext(ctx)}

	for _, rel := range ds.Relationships {
		src, ok := ds.Kind(rel.Source)
		if !ok {
			return report, &ConfigError{Op: "relationship " + rel.Kind, Err: fmt.Errorf("unknown source kind %q", rel.Source)}
		}
		dst, ok := ds.Kind(rel.Target)
		if !ok {
			return report, &ConfigError{Op: "relationship " + rel.Kind, Err: fmt.Errorf("unknown target kind %q", rel.Target)}
		}

		kr, err := b.BuildOne(ctx, rel, src, dst)
		report.Kinds = append(report.Kinds, kr)
		if err != nil {
			report.Duration = b.now().Sub(start)
			return report, err
		}
	}

	report.Duration = b.now().Sub(start)
	return report, nil
}

// BuildOne builds a single relationship between the src and dst kinds.
func (b *RelationshipBuilder) BuildOne(ctx context.Context, rel RelationshipSpec, src, dst KindSpec) (kr KindReport, err error) {
	key := rel.ProgressKey()
	start := b.now()
	kr.Name = key
	logger := logging.WithFields(ctx, "relationship", rel.Kind)

	defer func() { kr.Duration = b.now().Sub(start) }()

	if rec := b.progress.Status(key); rec.Status == progress.Completed {
		logger.Info("relationship already completed, skipping")
		kr.Skipped = true
		kr.TotalBatches = rec.TotalBatches
		kr.ResumedFrom = rec.BatchesCompleted
		return kr, nil
	}

	if err := b.requireCompleted(key, src.Name, dst.Name); err != nil {
		return kr, err
	}

	var (
		driving KindSpec
		edgesOf func([]graph.Node) []graph.Edge
	)

	switch rule := rel.Rule.(type) {
	case DirectRule:
		driving = src
		if rule.On == TargetSide {
			driving = dst
		}
		edgesOf = func(nodes []graph.Node) []graph.Edge { return directEdges(rule, nodes) }

	case ProximityRule:
		driving = src
		radius := rule.MaxDistanceMeters
		if b.radius > 0 {
			radius = b.radius
		}
		if radius <= 0 {
			return kr, &ConfigError{Op: "relationship " + rel.Kind, Err: fmt.Errorf("proximity radius must be positive")}
		}

		index, err := b.indexTargets(ctx, dst.Label, rule.TargetLat, rule.TargetLon, radius)
		if err != nil {
			return kr, err
		}
		logger.Info("indexed proximity targets", "target", dst.Label, "radius_m", radius)

		skipSelf := src.Label == dst.Label
		edgesOf = func(nodes []graph.Node) []graph.Edge {
			return proximityEdges(rule, index, nodes, skipSelf)
		}

	default:
		return kr, &ConfigError{Op: "relationship " + rel.Kind, Err: fmt.Errorf("unsupported rule %T", rel.Rule)}
	}

	count, err := b.store.CountNodes(ctx, driving.Label)
	if err != nil {
		return kr, fmt.Errorf("relationship %s: %w", rel.Kind, err)
	}
	total := TotalBatches(count, b.batchSize)
	kr.TotalBatches = total
	if total == 0 {
		logger.Info("no nodes to link, marking relationship empty", "label", driving.Label)
		if err := b.progress.MarkEmpty(key); err != nil {
			return kr, fmt.Errorf("checkpoint %s: %w", key, err)
		}
		return kr, nil
	}

	from, err := b.resumePoint(key, total)
	if err != nil {
		return kr, err
	}
	kr.ResumedFrom = from
	b.metrics.Progress(key, from, total)
	logger.Info("building relationship", "from_batch", from, "total_batches", total, "nodes", count)

	batch := graph.EdgeBatch{Kind: rel.Kind, SourceLabel: src.Label, TargetLabel: dst.Label}

	for i := from; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return kr, err
		}

		nodes, err := b.store.ReadNodes(ctx, driving.Label, i*b.batchSize, b.batchSize)
		if err != nil {
			return kr, fmt.Errorf("relationship %s batch %d: %w", rel.Kind, i, err)
		}

		batch.Edges = edgesOf(nodes)
		if err := b.commitEdges(ctx, key, i, total, batch, logger); err != nil {
			return kr, err
		}

		kr.BatchesCommitted++
		kr.RowsRead += len(nodes)
		kr.RecordsWritten += len(batch.Edges)
	}

	logger.Info("relationship completed", "edges", kr.RecordsWritten, "duration", b.now().Sub(start))
	return kr, nil
}

func (b *RelationshipBuilder) commitEdges(ctx context.Context, key string, index, total int, batch graph.EdgeBatch, logger *slog.Logger) error {
	start := b.now()
	logger = logger.With("batch", index)

	if len(batch.Edges) > 0 {
		err := b.write(ctx, key, logger, func(ctx context.Context) error {
			return b.store.UpsertEdges(ctx, batch)
		})
		if err != nil {
			b.metrics.BatchFailed(key)
			logger.Error("edge batch write failed", "error", err)
			return &BatchWriteError{Kind: key, Index: index, Err: err}
		}
	}

	if err := b.progress.MarkBatchComplete(key, index, total); err != nil {
		return fmt.Errorf("checkpoint %s batch %d: %w", key, index, err)
	}

	b.metrics.BatchCommitted(key, len(batch.Edges), b.now().Sub(start), index+1, total)
	logger.Debug("edge batch committed", "edges", len(batch.Edges), "of", total)
	return nil
}

// indexTargets reads every node of label and indexes those with usable
// coordinates.
func (b *RelationshipBuilder) indexTargets(ctx context.Context, label, latProp, lonProp string, radius float64) (*gridIndex, error) {
	count, err := b.store.CountNodes(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", label, err)
	}

	points := make([]geoPoint, 0, count)
	for offset := 0; offset < count; offset += b.batchSize {
		nodes, err := b.store.ReadNodes(ctx, label, offset, b.batchSize)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", label, err)
		}
		for _, n := range nodes {
			if lat, lon, ok := coordinates(n.Props, latProp, lonProp); ok {
				points = append(points, geoPoint{key: n.Key, lat: lat, lon: lon})
			}
		}
		if len(nodes) < b.batchSize {
			break
		}
	}
	return newGridIndex(points, radius), nil
}

// directEdges emits one edge per foreign-key value on each node.
func directEdges(rule DirectRule, nodes []graph.Node) []graph.Edge {
	var edges []graph.Edge
	for _, n := range nodes {
		for _, fk := range keyValues(n.Props[rule.Field]) {
			e := graph.Edge{SourceKey: n.Key, TargetKey: fk}
			if rule.On == TargetSide {
				e = graph.Edge{SourceKey: fk, TargetKey: n.Key}
			}
			edges = append(edges, e)
		}
	}
	return edges
}

// proximityEdges links each node to every indexed point within radius.
func proximityEdges(rule ProximityRule, index *gridIndex, nodes []graph.Node, skipSelf bool) []graph.Edge {
	var edges []graph.Edge
	for _, n := range nodes {
		lat, lon, ok := coordinates(n.Props, rule.SourceLat, rule.SourceLon)
		if !ok {
			continue
		}
		for _, m := range index.within(lat, lon) {
			if skipSelf && m.key == n.Key {
				continue
			}
			edges = append(edges, graph.Edge{
				SourceKey: n.Key,
				TargetKey: m.key,
				Props:     map[string]any{DistanceProperty: math.Round(m.distance*10) / 10},
			})
		}
	}
	return edges
}

// keyValues turns a stored foreign-key property into key strings. Stores
// hand lists back as []any and numbers as int64, float64 or json.Number.
func keyValues(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x = strings.TrimSpace(x); x != "" {
			return []string{x}
		}
		return nil
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			out = append(out, keyValues(s)...)
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, keyValues(e)...)
		}
		return out
	case int64:
		return []string{strconv.FormatInt(x, 10)}
	case int:
		return []string{strconv.Itoa(x)}
	case float64:
		return []string{strconv.FormatFloat(x, 'f', -1, 64)}
	case json.Number:
		return []string{x.String()}
	default:
		return []string{fmt.Sprint(x)}
	}
}

func coordinates(props map[string]any, latProp, lonProp string) (float64, float64, bool) {
	lat, ok := toFloat(props[latProp])
	if !ok {
		return 0, 0, false
	}
	lon, ok := toFloat(props[lonProp])
	if !ok {
		return 0, 0, false
	}
	return lat, lon, ValidCoordinate(lat, lon)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
