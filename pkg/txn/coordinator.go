package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/discernus/framestore/pkg/allocate"
	"github.com/discernus/framestore/pkg/assets"
	"github.com/discernus/framestore/pkg/authority"
	"github.com/discernus/framestore/pkg/canonical"
	"github.com/discernus/framestore/pkg/resolve"
)

const instrumentationName = "github.com/discernus/framestore/pkg/txn"

// AssetKind is the blob namespace for framework payloads.
const AssetKind = "framework"

// Options configures a Coordinator. Authority and Assets are required;
// everything else has a sensible default.
type Options struct {
	Authority *authority.Authority
	Assets    assets.Store

	Detector  *authority.ChangeDetector
	Allocator *allocate.Allocator
	Strategy  *resolve.Strategy
	Validator Validator
	Logger    *slog.Logger

	// FrameworksDir is probed by the resolution strategy when the caller
	// supplies no explicit file path.
	FrameworksDir string
}

// Coordinator drives one transaction: a bounded validate/allocate/commit
// cycle over a set of artifacts, with a pass/fail verdict and an
// optional, at-most-once rollback.
type Coordinator struct {
	authority *authority.Authority
	assets    assets.Store
	detector  *authority.ChangeDetector
	allocator *allocate.Allocator
	strategy  *resolve.Strategy
	validator Validator
	logger    *slog.Logger

	frameworksDir string

	tracer      trace.Tracer
	validations metric.Int64Counter
	rollbacks   metric.Int64Counter

	mu         sync.Mutex
	tx         *Transaction
	rolledBack bool
}

// NewCoordinator begins a fresh transaction.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Authority == nil {
		return nil, errors.New("txn: Authority is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("txn: asset Store is required")
	}
	if opts.Detector == nil {
		opts.Detector = authority.NewChangeDetector()
	}
	if opts.Allocator == nil {
		opts.Allocator = allocate.NewAllocator(opts.Authority)
	}
	if opts.Strategy == nil {
		opts.Strategy = resolve.DefaultStrategy()
	}
	if opts.Validator == nil {
		opts.Validator = NullValidator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	meter := otel.Meter(instrumentationName)
	validations, err := meter.Int64Counter("framestore.txn.validations",
		metric.WithDescription("Artifact validations by terminal result"))
	if err != nil {
		return nil, fmt.Errorf("txn: failed to create validation counter: %w", err)
	}
	rollbacks, err := meter.Int64Counter("framestore.txn.rollbacks",
		metric.WithDescription("Rollback deletions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("txn: failed to create rollback counter: %w", err)
	}

	return &Coordinator{
		authority:     opts.Authority,
		assets:        opts.Assets,
		detector:      opts.Detector,
		allocator:     opts.Allocator,
		strategy:      opts.Strategy,
		validator:     opts.Validator,
		logger:        opts.Logger,
		frameworksDir: opts.FrameworksDir,
		tracer:        otel.Tracer(instrumentationName),
		validations:   validations,
		rollbacks:     rollbacks,
		tx: &Transaction{
			ID:        uuid.NewString(),
			StartTime: time.Now().UTC(),
		},
	}, nil
}

// Transaction returns a snapshot of the transaction's audit records.
func (c *Coordinator) Transaction() Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := *c.tx
	snapshot.States = append([]State(nil), c.tx.States...)
	return snapshot
}

// ValidateForUse ensures one artifact is usable, running the per-artifact
// state machine: authority hit with matching (or absent) local content is
// VALID; drifted content mints and commits a new version; unknown
// artifacts are imported when a file exists and NOT_FOUND otherwise.
// Failures are captured as data on the returned State, never thrown past
// this boundary.
func (c *Coordinator) ValidateForUse(ctx context.Context, name, filePath, versionHint string) *State {
	ctx, span := c.tracer.Start(ctx, "txn.ValidateForUse",
		trace.WithAttributes(
			attribute.String("artifact.name", name),
			attribute.String("artifact.version_hint", versionHint),
		))
	defer span.End()

	st := State{
		ArtifactName:     name,
		RequestedVersion: versionHint,
	}
	c.validate(ctx, &st, filePath)

	c.mu.Lock()
	c.tx.States = append(c.tx.States, st)
	txID := c.tx.ID
	c.mu.Unlock()

	span.SetAttributes(attribute.String("artifact.result", string(st.Result)))
	c.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(st.Result))))

	level := slog.LevelInfo
	if !st.Result.acceptable() {
		level = slog.LevelWarn
	}
	c.logger.LogAttrs(ctx, level, "artifact validation finished",
		slog.String("transaction_id", txID),
		slog.String("artifact", st.ArtifactName),
		slog.String("requested_version", st.RequestedVersion),
		slog.String("resolved_version", st.ResolvedVersion),
		slog.String("content_hash", canonical.Short(st.ContentHash)),
		slog.String("result", string(st.Result)),
		slog.Bool("new_version_created", st.NewVersionCreated),
		slog.Any("errors", st.Errors),
	)

	out := st
	return &out
}

func (c *Coordinator) validate(ctx context.Context, st *State, filePath string) {
	if filePath == "" {
		filePath = c.strategy.Resolve(c.frameworksDir, st.ArtifactName, st.RequestedVersion)
	}

	var payload map[string]any
	if filePath != "" {
		var err error
		payload, err = readFrameworkFile(filePath)
		if err != nil {
			st.Result = ResultValidationError
			st.Errors = append(st.Errors, err.Error())
			return
		}
	}

	registered, err := c.authority.Get(ctx, st.ArtifactName, st.RequestedVersion)
	switch {
	case err == nil:
		c.validateAgainstRegistered(ctx, st, registered, payload, filePath)
	case errors.Is(err, authority.ErrVersionNotFound):
		if payload == nil {
			st.Result = ResultNotFound
			st.Errors = append(st.Errors, fmt.Sprintf("artifact %q has no registered versions and no local file", st.ArtifactName))
			return
		}
		c.importNew(ctx, st, payload, filePath)
	default:
		st.Result = ResultValidationError
		st.Errors = append(st.Errors, fmt.Sprintf("authority lookup failed: %v", err))
	}
}

// validateAgainstRegistered handles the authority-hit transitions. The
// authority is the source of truth: without a local file the registered
// version is valid by definition.
func (c *Coordinator) validateAgainstRegistered(ctx context.Context, st *State, registered *authority.Version, payload map[string]any, filePath string) {
	st.ResolvedVersion = registered.VersionString

	if payload == nil {
		st.Result = ResultValid
		st.ContentHash = registered.ContentHash
		return
	}

	consistent, err := c.detector.IsConsistent(payload, registered)
	if err != nil {
		st.Result = ResultValidationError
		st.Errors = append(st.Errors, fmt.Sprintf("change detection failed: %v", err))
		return
	}
	if consistent {
		st.Result = ResultValid
		st.ContentHash = registered.ContentHash
		return
	}

	// Content drift: mint a new version and commit the local content.
	newVersion := c.allocator.Next(ctx, st.ArtifactName, registered.VersionString, c.tx.ID)
	if c.commit(ctx, st, payload, newVersion, filePath, "content_changed") {
		st.Result = ResultContentChanged
		st.ResolvedVersion = newVersion
		st.NewVersionCreated = true
	}
}

// importNew registers a previously unknown artifact from its local file.
func (c *Coordinator) importNew(ctx context.Context, st *State, payload map[string]any, filePath string) {
	version := st.RequestedVersion
	if version == "" {
		if fromPayload, ok := payload["version"].(string); ok {
			version = fromPayload
		}
	}
	if version == "" {
		version = c.allocator.Next(ctx, st.ArtifactName, "", c.tx.ID)
	}

	if c.commit(ctx, st, payload, version, filePath, "initial_import") {
		st.Result = ResultValid
		st.ResolvedVersion = version
		st.NewVersionCreated = true
	}
}

// commit writes new content through the asset store and the authority.
// Returns false after recording the failure on st. Never retries: a
// retry on a half-committed registration risks double-allocating
// versions, so the retry decision belongs to the caller.
func (c *Coordinator) commit(ctx context.Context, st *State, payload map[string]any, version, filePath, method string) bool {
	verdict := c.validator.Validate(payload)
	if !verdict.IsValid {
		st.Result = ResultValidationError
		st.Errors = append(st.Errors, verdict.Issues...)
		return false
	}

	hash, err := c.detector.HashOf(payload)
	if err != nil {
		st.Result = ResultValidationError
		st.Errors = append(st.Errors, fmt.Sprintf("content hashing failed: %v", err))
		return false
	}
	st.ContentHash = hash

	blob, err := c.assets.Put(ctx, assets.PutRequest{
		Content:         payload,
		Kind:            AssetKind,
		AssetID:         st.ArtifactName,
		Version:         version,
		SourcePath:      filePath,
		IngestionMethod: method,
	})
	if err != nil {
		st.Result = ResultTransactionFailure
		st.Errors = append(st.Errors, fmt.Sprintf("asset store write failed: %v", err))
		return false
	}

	raw, err := canonical.Canonicalize(payload)
	if err != nil {
		st.Result = ResultTransactionFailure
		st.Errors = append(st.Errors, fmt.Sprintf("payload canonicalization failed: %v", err))
		return false
	}

	row := authority.Version{
		ArtifactName:  st.ArtifactName,
		VersionString: version,
		ContentHash:   hash,
		Payload:       json.RawMessage(raw),
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.authority.Register(ctx, row); err != nil {
		st.Result = ResultTransactionFailure
		st.Errors = append(st.Errors, fmt.Sprintf("authority registration failed for %s@%s: %v", st.ArtifactName, version, err))
		return false
	}

	c.logger.LogAttrs(ctx, slog.LevelInfo, "version committed",
		slog.String("transaction_id", c.tx.ID),
		slog.String("artifact", st.ArtifactName),
		slog.String("version", version),
		slog.String("content_hash", canonical.Short(hash)),
		slog.String("blob_path", blob.StoragePath),
		slog.Bool("blob_already_existed", blob.AlreadyExisted),
		slog.String("ingestion_method", method),
	)
	return true
}

// IsValid reports the transaction verdict: valid iff every artifact
// ended in VALID or CONTENT_CHANGED. The second return lists one message
// per failing artifact.
func (c *Coordinator) IsValid() (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var failures []string
	for _, st := range c.tx.States {
		if st.Result.acceptable() {
			continue
		}
		msg := fmt.Sprintf("%s: %s", st.ArtifactName, st.Result)
		if len(st.Errors) > 0 {
			msg = fmt.Sprintf("%s (%s)", msg, st.Errors[0])
		}
		failures = append(failures, msg)
	}
	return len(failures) == 0, failures
}

// Rollback deletes the authority record of every version this
// transaction created. Content-addressable blobs are never deleted:
// they are shared across transactions by hash and must outlive any
// single one. Best-effort — each failed deletion is logged as requiring
// manual intervention, because an orphaned record would make a later
// transaction misread the artifact as already registered. Returns true
// only if every deletion succeeded; at most one rollback per transaction.
func (c *Coordinator) Rollback(ctx context.Context) bool {
	c.mu.Lock()
	if c.rolledBack {
		c.mu.Unlock()
		c.logger.LogAttrs(ctx, slog.LevelWarn, "rollback already performed",
			slog.String("transaction_id", c.tx.ID))
		return false
	}
	c.rolledBack = true
	states := append([]State(nil), c.tx.States...)
	txID := c.tx.ID
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "txn.Rollback",
		trace.WithAttributes(attribute.String("transaction.id", txID)))
	defer span.End()

	allSucceeded := true
	for _, st := range states {
		if !st.NewVersionCreated {
			continue
		}
		err := c.authority.Remove(ctx, st.ArtifactName, st.ResolvedVersion)
		outcome := "deleted"
		if err != nil {
			allSucceeded = false
			outcome = "failed"
			c.logger.LogAttrs(ctx, slog.LevelError, "rollback deletion failed",
				slog.String("transaction_id", txID),
				slog.String("artifact", st.ArtifactName),
				slog.String("version", st.ResolvedVersion),
				slog.String("error", err.Error()),
				slog.Bool("manual_intervention_required", true),
			)
		} else {
			c.logger.LogAttrs(ctx, slog.LevelInfo, "rollback deleted provisional version",
				slog.String("transaction_id", txID),
				slog.String("artifact", st.ArtifactName),
				slog.String("version", st.ResolvedVersion),
			)
		}
		c.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return allSucceeded
}

func readFrameworkFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-supplied framework path
	if err != nil {
		return nil, fmt.Errorf("failed to read framework file %s: %w", path, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("framework file %s is not a JSON object: %w", path, err)
	}
	return payload, nil
}
