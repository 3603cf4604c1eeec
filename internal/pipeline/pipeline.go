// Package pipeline sequences the upload, alignment, inference and export
// stages of a tree-building request and admits one request at a time.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/db"
	"github.com/banshee-data/phylo.report/internal/monitoring"
	"github.com/banshee-data/phylo.report/internal/newick"
	"github.com/banshee-data/phylo.report/internal/stage"
	"github.com/banshee-data/phylo.report/internal/timeutil"
)

var logf = monitoring.Prefixed("pipeline")

// Stage is the position of a request in the pipeline. Stages only move
// forward, one step at a time.
type Stage string

const (
	StageUploaded Stage = "uploaded"
	StageAligned  Stage = "aligned"
	StageInferred Stage = "inferred"
	StageExported Stage = "exported"
)

var (
	// ErrValidation reports unusable client input such as a wrong file type.
	ErrValidation = errors.New("validation failed")
	// ErrMissingFields reports a request without its required fields.
	ErrMissingFields = errors.New("missing required fields")
	// ErrAdmissionDenied is returned by Begin while another request is in flight.
	ErrAdmissionDenied = errors.New("a pipeline is already running")
	// ErrInvalidState reports a stage called out of order, for a request that
	// is not in flight, or while another stage of the same request runs.
	ErrInvalidState = errors.New("invalid request state")
	// ErrArtifactNotFound reports an input path that is unknown, belongs to
	// another request, has the wrong role, or is missing on disk.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrUnknownRequest reports a request id the registry has never seen.
	ErrUnknownRequest = errors.New("unknown request")
)

// allowedExtensions are compared case-insensitively against the upload name.
var allowedExtensions = map[string]bool{".fasta": true, ".fa": true}

// Request is a snapshot of one pipeline request.
type Request struct {
	ID               string            `json:"request_id"`
	Workspace        string            `json:"workspace"`
	OriginalFilename string            `json:"original_filename"`
	Stage            Stage             `json:"stage"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	LastError        string            `json:"last_error,omitempty"`
	Artifacts        map[string]string `json:"artifacts,omitempty"`
}

// Path returns the registered path of role, or "".
func (r *Request) Path(role artifact.Role) string {
	return r.Artifacts[string(role)]
}

// InferResult is what AdvanceToInfer produced.
type InferResult struct {
	Request       *Request
	TreePath      string
	JSONPath      string
	ExecutionTime time.Duration
	Summary       newick.Summary
}

// ToolOptions configures one external tool.
type ToolOptions struct {
	Path    string
	Threads string
	Timeout time.Duration
}

// Options wires a Coordinator. Store, Registry and Runner are required.
type Options struct {
	Store    *artifact.Store
	Registry *db.DB
	Runner   *stage.Runner
	Clock    timeutil.Clock

	Aligner  ToolOptions
	Inferrer ToolOptions

	// IdleTimeout lets Begin reclaim admission from a request that has run no
	// stage for this long. Zero disables reclaiming.
	IdleTimeout time.Duration

	// NewID overrides request id generation in tests.
	NewID func() string
}

// Coordinator owns the admission slot and drives requests through their
// stages.
type Coordinator struct {
	store    *artifact.Store
	registry *db.DB
	aligner  *stage.Aligner
	inferrer *stage.Inferrer
	clock    timeutil.Clock
	newID    func() string

	idleTimeout time.Duration

	slot *semaphore.Weighted

	mu           sync.Mutex
	holder       string
	busy         bool
	lastActivity time.Time
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil || opts.Registry == nil || opts.Runner == nil {
		return nil, fmt.Errorf("pipeline: store, registry and runner are required")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.NewID == nil {
		opts.NewID = NewRequestID
	}
	if opts.Aligner.Path == "" {
		opts.Aligner.Path = "clustalo"
	}
	if opts.Inferrer.Path == "" {
		opts.Inferrer.Path = "iqtree"
	}

	return &Coordinator{
		store:    opts.Store,
		registry: opts.Registry,
		aligner: &stage.Aligner{
			Runner:  opts.Runner,
			Path:    opts.Aligner.Path,
			Timeout: opts.Aligner.Timeout,
		},
		inferrer: &stage.Inferrer{
			Runner:  opts.Runner,
			Path:    opts.Inferrer.Path,
			Threads: opts.Inferrer.Threads,
			Timeout: opts.Inferrer.Timeout,
		},
		clock:       opts.Clock,
		newID:       opts.NewID,
		idleTimeout: opts.IdleTimeout,
		slot:        semaphore.NewWeighted(1),
	}, nil
}

// NewRequestID returns 32 lowercase hex characters from a random UUID.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func requestFromRecord(rec *db.RequestRecord, artifacts []db.ArtifactRecord) *Request {
	r := &Request{
		ID:               rec.ID,
		Workspace:        rec.Workspace,
		OriginalFilename: rec.OriginalFilename,
		Stage:            Stage(rec.Stage),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		LastError:        rec.LastError,
	}
	if len(artifacts) > 0 {
		r.Artifacts = make(map[string]string, len(artifacts))
		for _, a := range artifacts {
			r.Artifacts[a.Role] = a.Path
		}
	}
	return r
}
