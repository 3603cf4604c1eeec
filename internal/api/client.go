package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/phylo.report/internal/httputil"
)

// Client talks to a running phylo server. It drives the same upload, align
// and build_tree sequence the browser does.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a Client for the server at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Upload sends the sequences in r as filename.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return &out, nil
}

// Align aligns the uploaded file at path.
func (c *Client) Align(ctx context.Context, requestID, path string) (*AlignResponse, error) {
	var out AlignResponse
	if err := c.postJSON(ctx, "/align", AlignRequest{Filepath: path, RequestID: requestID}, &out); err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	return &out, nil
}

// BuildTree infers a tree from the alignment at alignedPath.
func (c *Client) BuildTree(ctx context.Context, requestID, alignedPath string) (*BuildTreeResponse, error) {
	var out BuildTreeResponse
	if err := c.postJSON(ctx, "/build_tree", BuildTreeRequest{AlignedFilepath: alignedPath, RequestID: requestID}, &out); err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}
	return &out, nil
}

// SaveTree stores a rendered SVG for requestID.
func (c *Client) SaveTree(ctx context.Context, requestID, svg string) (*SaveTreeResponse, error) {
	var out SaveTreeResponse
	if err := c.postJSON(ctx, "/save_tree", SaveTreeRequest{SVG: svg, RequestID: requestID}, &out); err != nil {
		return nil, fmt.Errorf("save tree: %w", err)
	}
	return &out, nil
}

// Status returns one request.
func (c *Client) Status(ctx context.Context, requestID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/status/"+url.PathEscape(requestID), &out); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &out, nil
}

// Recent lists the most recent requests.
func (c *Client) Recent(ctx context.Context) (*StatusListResponse, error) {
	var out StatusListResponse
	if err := c.get(ctx, "/status/", &out); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &out, nil
}

// Health reports whether the server is up and busy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/healthz", &out); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &out, nil
}

// Result downloads results/<rel>.
func (c *Client) Result(ctx context.Context, rel string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/results/"+strings.TrimLeft(rel, "/"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httputil.DecodeResponse(resp, nil)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, out)
}
