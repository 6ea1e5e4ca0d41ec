package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/descriptor"
	"github.com/retreivo/itemmatch/internal/domain/imagedata"
	"github.com/retreivo/itemmatch/internal/domain/item"
	"github.com/retreivo/itemmatch/internal/domain/match"
	logpkg "github.com/retreivo/itemmatch/internal/logger"
	"github.com/retreivo/itemmatch/internal/metrics"
)

// Operation names, used as metric and log labels.
const (
	OpMatchImage    = "match_image"
	OpMatchText     = "match_text"
	OpMatchCombined = "match_combined"
	OpStore         = "store_item"
)

// StoreRequest carries the fields of a report to store. Image is base64, optionally with a
// data-URI prefix; empty means no image.
type StoreRequest struct {
	ID       string
	IDForm   item.IDForm // ignored when ID is generated
	Type     item.ReportType
	Metadata item.Metadata
	Image    string
}

// StoreResult reports the outcome of StoreItem.
type StoreResult struct {
	Stored         bool
	ID             string
	IDForm         item.IDForm
	HasDescriptors bool
}

// Service orchestrates extraction, scoring, fusion and the decision policy.
// Every failure except an invalid report type degrades into a successful result.
type Service struct {
	repo      Repository
	extractor Extractor
	policy    match.Policy
	ranker    ranker
	newID     func() string
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a matching service. extractor may be nil (image input is then ignored).
func New(repo Repository, extractor Extractor, policy match.Policy, logger *zap.Logger) *Service {
	if extractor == nil {
		extractor = domain.DisabledExtractor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		extractor: extractor,
		policy:    policy,
		ranker:    newRanker(policy),
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    logger,
	}
}

// WithIDGenerator overrides the generator used for reports stored without an id.
func (s *Service) WithIDGenerator(fn func() string) *Service {
	s.newID = fn
	return s
}

// WithClock overrides the creation timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Policy returns the active matching policy.
func (s *Service) Policy() match.Policy { return s.policy }

// StoreItem extracts descriptors (when an image is supplied) and appends the report to its
// collection. Extraction failures store the report without descriptors.
func (s *Service) StoreItem(ctx context.Context, req StoreRequest) (StoreResult, error) {
	if !req.Type.IsValid() {
		return StoreResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidReportType, req.Type)
	}

	id, form := req.ID, req.IDForm
	if id == "" {
		id, form = s.newID(), item.IDText
	}

	set := s.extract(ctx, OpStore, req.Image)
	rec := item.New(id, req.Type, req.Metadata, set.Encode(), s.now().UTC())
	rec = rec.WithIDForm(form)

	stored, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return StoreResult{}, fmt.Errorf("insert item: %w", err)
	}

	metrics.ItemsStoredTotal.WithLabelValues(string(req.Type), strconv.FormatBool(stored.HasDescriptors())).Inc()
	s.log(ctx).Info("Item stored",
		zap.String("item_id", stored.ID()),
		zap.String("type", string(stored.Type())),
		zap.Bool("has_descriptors", stored.HasDescriptors()),
		zap.Int("descriptors", set.Len()),
	)

	return StoreResult{
		Stored:         true,
		ID:             stored.ID(),
		IDForm:         stored.IDForm(),
		HasDescriptors: stored.HasDescriptors(),
	}, nil
}

// MatchByImage matches an image (plus optional metadata) of a report of type t against the
// opposite collection.
func (s *Service) MatchByImage(
	ctx context.Context, t item.ReportType, image string, meta item.Metadata,
) (match.Result, error) {
	return s.matchQuery(ctx, OpMatchImage, t, image, meta)
}

// MatchByText matches metadata only.
func (s *Service) MatchByText(ctx context.Context, t item.ReportType, meta item.Metadata) (match.Result, error) {
	return s.matchQuery(ctx, OpMatchText, t, "", meta)
}

// MatchCombined matches whatever of image and metadata is supplied.
func (s *Service) MatchCombined(
	ctx context.Context, t item.ReportType, image string, meta item.Metadata,
) (match.Result, error) {
	return s.matchQuery(ctx, OpMatchCombined, t, image, meta)
}

// List returns the stored reports of type t in insertion order.
func (s *Service) List(ctx context.Context, t item.ReportType) ([]item.Record, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidReportType, t)
	}
	recs, err := s.repo.All(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return recs, nil
}

func (s *Service) matchQuery(
	ctx context.Context, op string, t item.ReportType, image string, meta item.Metadata,
) (match.Result, error) {
	if !t.IsValid() {
		return match.Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidReportType, t)
	}

	q := item.Query{
		Type:        t,
		Descriptors: s.extract(ctx, op, image),
		Metadata:    meta,
	}

	res, err := s.match(ctx, op, q, image != "")
	if err != nil {
		return match.Result{}, err
	}

	metrics.MatchRequestsTotal.WithLabelValues(op, string(res.Method), string(res.Action)).Inc()
	metrics.MatchBestScore.Observe(float64(res.BestScore))
	s.log(ctx).Debug("Match completed",
		zap.String("operation", op),
		zap.String("query_type", string(t)),
		zap.String("method", string(res.Method)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("best_score", res.BestScore),
		zap.String("action", string(res.Action)),
	)
	return res, nil
}

// match runs fusion and ranking for q. imageSupplied tells whether the caller sent an image,
// even if extraction failed.
func (s *Service) match(ctx context.Context, op string, q item.Query, imageSupplied bool) (match.Result, error) {
	method := match.TextMatching
	if q.HasImage() {
		method = match.ImageMatching
	}

	if q.IsEmpty() {
		s.log(ctx).Debug("Nothing to match", zap.String("operation", op), zap.Error(domain.ErrEmptyQuery))
		if imageSupplied && s.policy.FallbackEnabled {
			return s.fallback(ctx, q), nil
		}
		return s.policy.Empty(method), nil
	}

	target := q.Target()
	records, err := s.repo.All(ctx, target)
	if err != nil {
		return match.Result{}, fmt.Errorf("scan %s items: %w", target, err)
	}

	start := time.Now()
	candidates := s.ranker.rank(q, records, func(rec *item.Record, err error) {
		metrics.MalformedRecordsTotal.WithLabelValues(string(target)).Inc()
		s.log(ctx).Warn("Skipping record with malformed descriptors",
			zap.String("item_id", rec.ID()),
			zap.String("collection", string(target)),
			zap.Error(err),
		)
	})
	metrics.MatchScanDuration.WithLabelValues(string(target)).Observe(time.Since(start).Seconds())

	if len(candidates) == 0 && s.policy.FallbackEnabled {
		return s.fallback(ctx, q), nil
	}
	return s.policy.NewResult(candidates, method), nil
}

// fallback substitutes the legacy placeholder candidates.
func (s *Service) fallback(ctx context.Context, q item.Query) match.Result {
	s.log(ctx).Warn("No real matches, returning placeholder candidates",
		zap.String("query_type", string(q.Type)))
	return s.policy.NewResult(match.FallbackCandidates(q.Target()), match.Fallback)
}

// extract decodes and extracts an image. Any failure yields an empty set: matching then
// degrades to metadata only.
func (s *Service) extract(ctx context.Context, op, encoded string) descriptor.Set {
	if encoded == "" {
		return descriptor.Set{}
	}

	raw, err := imagedata.Decode(encoded)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("invalid_image").Inc()
		s.log(ctx).Warn("Undecodable image, continuing without descriptors",
			zap.String("operation", op), zap.Error(fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)))
		return descriptor.Set{}
	}
	if len(raw) == 0 {
		return descriptor.Set{}
	}

	set, err := s.extractor.Extract(ctx, raw)
	switch {
	case err == nil && !set.IsEmpty():
		metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
		return set
	case err == nil, errors.Is(err, domain.ErrNoFeatures):
		metrics.ExtractionsTotal.WithLabelValues("no_features").Inc()
		s.log(ctx).Info("No visual features found", zap.String("operation", op))
	case errors.Is(err, domain.ErrExtractorUnavailable):
		metrics.ExtractionsTotal.WithLabelValues("unavailable").Inc()
		s.log(ctx).Warn("Extractor unavailable, continuing without descriptors",
			zap.String("operation", op), zap.Error(err))
	default:
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		s.log(ctx).Warn("Extraction failed, continuing without descriptors",
			zap.String("operation", op), zap.Error(err))
	}
	return descriptor.Set{}
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logpkg.FromContextOr(ctx, s.logger)
}
