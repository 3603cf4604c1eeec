package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/db"
	"github.com/banshee-data/phylo.report/internal/newick"
)

// Begin admits a new request, stores the uploaded sequences and returns the
// request at stage uploaded. Admission stays held until the request finishes
// inference or a stage fails.
func (c *Coordinator) Begin(ctx context.Context, filename string, r io.Reader) (*Request, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: no file selected", ErrValidation)
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, fmt.Errorf("%w: file type not allowed, upload a .fasta or .fa file", ErrValidation)
	}

	id := c.newID()
	if !artifact.ValidID(id) {
		return nil, fmt.Errorf("pipeline: generated malformed request id %q", id)
	}
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	if err := c.enter(id); err != nil {
		c.release(id)
		return nil, err
	}

	var req *Request
	err := c.guarded(id, true, func() error {
		workspace, err := c.store.WorkspaceFor(id)
		if err != nil {
			return err
		}
		path, err := c.store.SaveUpload(id, filename, r)
		if err != nil {
			return err
		}

		now := c.clock.Now()
		if err := c.registry.CreateRequest(ctx, db.RequestRecord{
			ID:               id,
			Workspace:        workspace,
			OriginalFilename: filename,
			Stage:            string(StageUploaded),
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		if err := c.record(ctx, id, artifact.RawSequences, path); err != nil {
			return err
		}

		req, err = c.Lookup(ctx, id)
		return err
	})
	if err != nil {
		logf("begin %s failed: %v", id, err)
		return nil, err
	}

	logf("request %s admitted with %s", id, filepath.Base(req.Path(artifact.RawSequences)))
	return req, nil
}

// AdvanceToAlign aligns the raw sequences at inputPath, which must be the
// raw-sequences artifact of request id.
func (c *Coordinator) AdvanceToAlign(ctx context.Context, id, inputPath string) (*Request, error) {
	if err := c.enter(id); err != nil {
		return nil, err
	}

	var req *Request
	err := c.guarded(id, true, func() error {
		if err := c.expectStage(ctx, id, StageUploaded); err != nil {
			return err
		}
		input, err := c.ownedArtifact(ctx, id, inputPath, artifact.RawSequences)
		if err != nil {
			return err
		}
		output, err := c.store.CanonicalPath(id, artifact.AlignedSequences)
		if err != nil {
			return err
		}

		if _, err := c.aligner.Align(context.WithoutCancel(ctx), input, output); err != nil {
			return err
		}

		if err := c.record(ctx, id, artifact.AlignedSequences, output); err != nil {
			return err
		}
		if err := c.advance(ctx, id, StageUploaded, StageAligned); err != nil {
			return err
		}

		req, err = c.Lookup(ctx, id)
		return err
	})
	if err != nil {
		c.noteFailure(id, "align", err)
		return nil, err
	}
	return req, nil
}

// AdvanceToInfer infers a tree from alignedPath, which must be the
// aligned-sequences artifact of request id, converts it for the viewer and
// releases admission. A tree that cannot be decoded fails the stage.
func (c *Coordinator) AdvanceToInfer(ctx context.Context, id, alignedPath string) (*InferResult, error) {
	if err := c.enter(id); err != nil {
		return nil, err
	}

	var res *InferResult
	err := c.guarded(id, false, func() error {
		if err := c.expectStage(ctx, id, StageAligned); err != nil {
			return err
		}
		aligned, err := c.ownedArtifact(ctx, id, alignedPath, artifact.AlignedSequences)
		if err != nil {
			return err
		}
		treePath, err := c.store.CanonicalPath(id, artifact.TreeText)
		if err != nil {
			return err
		}
		jsonPath, err := c.store.CanonicalPath(id, artifact.TreeJSON)
		if err != nil {
			return err
		}

		start := c.clock.Now()
		if _, err := c.inferrer.Infer(context.WithoutCancel(ctx), aligned, treePath); err != nil {
			return err
		}
		if err := c.record(ctx, id, artifact.TreeText, treePath); err != nil {
			return err
		}

		text, err := c.store.ReadFile(treePath)
		if err != nil {
			return fmt.Errorf("read tree: %w", err)
		}
		root, err := newick.ParseString(string(text))
		if err != nil {
			return err
		}
		data, err := newick.MarshalJSON(root)
		if err != nil {
			return err
		}
		if err := c.store.WriteAtomic(jsonPath, data); err != nil {
			return err
		}
		if err := c.record(ctx, id, artifact.TreeJSON, jsonPath); err != nil {
			return err
		}
		elapsed := c.clock.Since(start)

		if err := c.advance(ctx, id, StageAligned, StageInferred); err != nil {
			return err
		}
		if err := c.advance(ctx, id, StageInferred, StageExported); err != nil {
			return err
		}

		req, err := c.Lookup(ctx, id)
		if err != nil {
			return err
		}
		res = &InferResult{
			Request:       req,
			TreePath:      treePath,
			JSONPath:      jsonPath,
			ExecutionTime: elapsed,
			Summary:       newick.Summarize(root),
		}
		return nil
	})
	if err != nil {
		c.noteFailure(id, "infer", err)
		return nil, err
	}

	logf("request %s exported in %s", id, res.ExecutionTime)
	return res, nil
}

// ExportRendering stores a client-rendered image of the tree for request id.
// It does not need admission and works at any stage.
func (c *Coordinator) ExportRendering(ctx context.Context, id, content string) (string, error) {
	if id == "" || content == "" {
		return "", fmt.Errorf("%w: request_id and svg are required", ErrMissingFields)
	}
	if _, err := c.Lookup(ctx, id); err != nil {
		return "", err
	}

	if _, err := c.store.WorkspaceFor(id); err != nil {
		return "", err
	}
	path, err := c.store.CanonicalPath(id, artifact.TreeRendering)
	if err != nil {
		return "", err
	}
	if err := c.store.WriteAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	if err := c.record(ctx, id, artifact.TreeRendering, path); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Coordinator) expectStage(ctx context.Context, id string, want Stage) error {
	rec, err := c.registry.GetRequest(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: request %s is not registered", ErrInvalidState, id)
	}
	if err != nil {
		return err
	}
	if Stage(rec.Stage) != want {
		return fmt.Errorf("%w: request %s is %s, expected %s", ErrInvalidState, id, rec.Stage, want)
	}
	return nil
}

// ownedArtifact checks that path is the registered artifact of role for
// request id and that it still exists.
func (c *Coordinator) ownedArtifact(ctx context.Context, id, path string, role artifact.Role) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: no %s path given", ErrMissingFields, role)
	}
	clean := filepath.Clean(path)

	a, err := c.registry.LookupArtifact(ctx, clean)
	if errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("%w: %s is not a known artifact", ErrArtifactNotFound, path)
	}
	if err != nil {
		return "", err
	}
	if a.RequestID != id {
		return "", fmt.Errorf("%w: %s does not belong to request %s", ErrArtifactNotFound, path, id)
	}
	if a.Role != string(role) {
		return "", fmt.Errorf("%w: %s is %s, expected %s", ErrArtifactNotFound, path, a.Role, role)
	}
	if !c.store.Exists(clean) {
		return "", fmt.Errorf("%w: %s is missing", ErrArtifactNotFound, path)
	}
	if !c.store.Contains(clean) {
		return "", fmt.Errorf("%w: %s resolves outside the artifact roots", ErrArtifactNotFound, path)
	}
	return clean, nil
}

func (c *Coordinator) record(ctx context.Context, id string, role artifact.Role, path string) error {
	return c.registry.RecordArtifact(ctx, db.ArtifactRecord{
		RequestID: id,
		Role:      string(role),
		Path:      filepath.Clean(path),
		CreatedAt: c.clock.Now(),
	})
}

func (c *Coordinator) advance(ctx context.Context, id string, from, to Stage) error {
	err := c.registry.AdvanceStage(ctx, id, string(from), string(to), c.clock.Now())
	if errors.Is(err, db.ErrStageConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return err
}

func (c *Coordinator) noteFailure(id, stageName string, err error) {
	logf("%s %s failed: %v", stageName, id, err)
	if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrArtifactNotFound) || errors.Is(err, ErrMissingFields) {
		return
	}
	if serr := c.registry.SetLastError(context.Background(), id, err.Error(), c.clock.Now()); serr != nil {
		logf("record failure for %s: %v", id, serr)
	}
}
