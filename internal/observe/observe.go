// Package observe implements C11, the observability core: per-run
// counters, the five data-quality pillars, playlist graph validation,
// and threshold/statistical anomaly detection.
package observe

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvyn/setgraph/internal/model"
)

// RunStatus is a run's terminal or in-flight state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run is one scheduler execution against a single source, per
// spec.md §4.11.
type Run struct {
	RunID          uuid.UUID
	Source         model.Source
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         RunStatus
	PlaylistsFound int
	TracksAdded    int
	ArtistsAdded   int
	ErrorsCount    int
}

// RunStore persists completed runs. Recorder buffers runs and writes
// them in batches rather than one at a time, per spec.md §4.11's
// "all metrics are buffered and flushed in batches".
type RunStore interface {
	SaveRuns(ctx context.Context, runs []Run) error
}

// Recorder buffers run records and periodically flushes them to a
// RunStore, alongside live Prometheus counters and a run-duration
// histogram for the same figures.
type Recorder struct {
	store RunStore

	mu      sync.Mutex
	buffer  []Run
	metrics *metrics
}

// NewRecorder builds a Recorder. metricsNamespace is the Prometheus
// namespace prefix (e.g. "setgraph").
func NewRecorder(store RunStore, metricsNamespace string) *Recorder {
	return &Recorder{store: store, metrics: newMetrics(metricsNamespace)}
}

// Record buffers a finished run and updates its Prometheus series.
func (r *Recorder) Record(run Run) {
	r.mu.Lock()
	r.buffer = append(r.buffer, run)
	r.mu.Unlock()

	r.metrics.observeRun(run)
}

// BufferLen reports how many runs are buffered awaiting flush.
func (r *Recorder) BufferLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Flush writes every buffered run to the store in one batch and
// clears the buffer on success.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.buffer
	r.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	if err := r.store.SaveRuns(ctx, pending); err != nil {
		return err
	}
	r.mu.Lock()
	r.buffer = r.buffer[len(pending):]
	r.mu.Unlock()
	return nil
}

// --- Five quality pillars (spec.md §4.11) ---

// freshnessWindow is the 24-hour decay window the Freshness pillar
// measures against.
const freshnessWindow = 24 * time.Hour

// Freshness scores how recently a source was last successfully
// updated, decaying linearly to 0 over freshnessWindow.
func Freshness(lastUpdated, now time.Time) float64 {
	age := now.Sub(lastUpdated)
	if age <= 0 {
		return 1.0
	}
	score := 1.0 - age.Hours()/freshnessWindow.Hours()
	if score < 0 {
		return 0
	}
	return score
}

// Volume scores a run's actual yield against its expected yield,
// clamped to [0.5, 1.5] so a single run's noise can't dominate.
func Volume(actual, expected int) float64 {
	if expected <= 0 {
		return 1.0
	}
	ratio := float64(actual) / float64(expected)
	switch {
	case ratio < 0.5:
		return 0.5
	case ratio > 1.5:
		return 1.5
	default:
		return ratio
	}
}

// SchemaConformityPass and SchemaConformityWarn are the pass/warn
// thresholds for SchemaConformity's score.
const (
	SchemaConformityPass = 0.95
	SchemaConformityWarn = 0.80
)

// SchemaConformity scores the fraction of records that satisfied
// required-field validation, and buckets it into pass/warn/fail.
func SchemaConformity(violations, total int) (score float64, status string) {
	if total <= 0 {
		return 1.0, "pass"
	}
	score = 1.0 - float64(violations)/float64(total)
	switch {
	case score >= SchemaConformityPass:
		status = "pass"
	case score >= SchemaConformityWarn:
		status = "warn"
	default:
		status = "fail"
	}
	return score, status
}

// DistributionIdeal is the artist-diversity ratio spec.md §4.11 treats
// as ideal: one artist per ~1.4 tracks, typical of a varied DJ set.
const DistributionIdeal = 0.7

// Distribution scores artist diversity within a run's tracks.
func Distribution(uniqueArtists, totalTracks int) float64 {
	if totalTracks <= 0 {
		return 0
	}
	return float64(uniqueArtists) / float64(totalTracks)
}

// Lineage scores whether a record's source-attribution fields
// (bronze IDs, source, scraped_at) were populated.
func Lineage(sourceFieldsPopulated bool) float64 {
	if sourceFieldsPopulated {
		return 1.0
	}
	return 0.0
}

// QualityReport bundles the five pillar scores for one run.
type QualityReport struct {
	Freshness            float64
	Volume               float64
	SchemaConformity     float64
	SchemaConformityStat string
	Distribution         float64
	Lineage              float64
}

// --- Graph validation (spec.md §4.11) ---

// GraphValidation is the expected-vs-actual adjacency check for one playlist.
type GraphValidation struct {
	PlaylistID    uuid.UUID
	ExpectedNodes int
	ExpectedEdges int
	ActualEdges   int
	Pass          bool
	Message       string
}

// ValidatePlaylistGraph compares a playlist's expected transition-edge
// count — trackCount-1, minus any same-artist-consecutive exceptions
// the transformer deliberately dropped — against the actual count of
// transition edges recorded for it.
func ValidatePlaylistGraph(playlistID uuid.UUID, trackCount, sameArtistConsecutiveExceptions, actualEdges int) GraphValidation {
	expectedEdges := trackCount - 1 - sameArtistConsecutiveExceptions
	if expectedEdges < 0 {
		expectedEdges = 0
	}
	pass := actualEdges == expectedEdges
	msg := fmt.Sprintf("expected %d edges, found %d", expectedEdges, actualEdges)
	if pass {
		msg = "graph matches expected topology"
	}
	return GraphValidation{
		PlaylistID:    playlistID,
		ExpectedNodes: trackCount,
		ExpectedEdges: expectedEdges,
		ActualEdges:   actualEdges,
		Pass:          pass,
		Message:       msg,
	}
}

// --- Anomaly detection (spec.md §4.11) ---

// Severity classifies how urgently an anomaly needs attention.
type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Anomaly is one detected deviation, threshold-based or statistical.
type Anomaly struct {
	Metric          string
	Severity        Severity
	Observed        float64
	ExpectedMin     float64
	ExpectedMax     float64
	Confidence      float64
	SuggestedAction string
}

// Fixed thresholds from spec.md §4.11.
const (
	ResponseTimeWarnSeconds     = 5.0
	ResponseTimeCriticalSeconds = 10.0
	ErrorRateWarnRatio          = 0.05
	ErrorRateCriticalRatio      = 0.20
	ZScoreThreshold             = 3.0
)

// ThresholdAnomaly checks observed against fixed warn/critical
// thresholds, reporting the more severe breach. ok is false if
// observed is within bounds.
func ThresholdAnomaly(metric string, observed, warnAt, criticalAt float64, suggestedAction string) (Anomaly, bool) {
	switch {
	case observed >= criticalAt:
		return Anomaly{
			Metric: metric, Severity: SeverityCritical, Observed: observed,
			ExpectedMax: criticalAt, Confidence: 1.0, SuggestedAction: suggestedAction,
		}, true
	case observed >= warnAt:
		return Anomaly{
			Metric: metric, Severity: SeverityWarn, Observed: observed,
			ExpectedMax: warnAt, Confidence: 0.7, SuggestedAction: suggestedAction,
		}, true
	default:
		return Anomaly{}, false
	}
}

// ZScoreAnomaly flags observed as statistically anomalous against the
// trailing 24-hour mean/stddev when its z-score exceeds ZScoreThreshold.
// Confidence scales with how far past the threshold the z-score is,
// capped at 1.0.
func ZScoreAnomaly(metric string, observed, mean, stddev float64, suggestedAction string) (Anomaly, bool) {
	if stddev <= 0 {
		return Anomaly{}, false
	}
	z := (observed - mean) / stddev
	if math.Abs(z) <= ZScoreThreshold {
		return Anomaly{}, false
	}
	confidence := math.Abs(z) / (ZScoreThreshold * 2)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return Anomaly{
		Metric:          metric,
		Severity:        SeverityWarn,
		Observed:        observed,
		ExpectedMin:     mean - ZScoreThreshold*stddev,
		ExpectedMax:     mean + ZScoreThreshold*stddev,
		Confidence:      confidence,
		SuggestedAction: suggestedAction,
	}, true
}
