// Package processing talks to the dataset processing sidecar, the external
// service that parses spreadsheets and bulk-inserts rows. The engine hands
// files off and learns about progress through async HTTP callbacks routed
// into the Hub.
package processing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Service is the engine-facing contract of the sidecar.
type Service interface {
	// ReadHeaders extracts the header row and an estimated row count from
	// a stored upload without parsing the whole file.
	ReadHeaders(path string) ([]string, int, error)
	// Submit hands a dataset off for full processing. Completion arrives
	// asynchronously through the progress callback endpoint.
	Submit(req SubmitRequest) error
	// Cancel marks an in-flight dataset as cancelled.
	Cancel(datasetID uint) error
}

// SubmitRequest is the handoff payload. Field names follow the sidecar's
// wire format.
type SubmitRequest struct {
	DatasetID       uint     `json:"excel_id"`
	TenantID        uint     `json:"user_id"`
	Filename        string   `json:"filename"`
	UploadedBy      string   `json:"uploaded_by"`
	TempPath        string   `json:"temp_path"`
	SelectedHeaders []string `json:"selected_headers"`
}

type readHeadersRequest struct {
	FilePath string `json:"file_path"`
}

type readHeadersResponse struct {
	Success   bool     `json:"success"`
	Headers   []string `json:"headers"`
	TotalRows int      `json:"totalRows"`
	Error     string   `json:"error,omitempty"`
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a sidecar client with a bounded request timeout.
// Header reading is synchronous on the sidecar side and can take a few
// seconds on large files, so the timeout is generous but finite.
func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *Client) ReadHeaders(path string) ([]string, int, error) {
	body, _ := json.Marshal(readHeadersRequest{FilePath: path})
	resp, err := c.http.Post(c.baseURL+"/read-headers", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("read headers: %w", err)
	}
	defer resp.Body.Close()

	var parsed readHeadersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("read headers: decoding response: %w", err)
	}
	if !parsed.Success {
		return nil, 0, fmt.Errorf("read headers: %s", parsed.Error)
	}
	return parsed.Headers, parsed.TotalRows, nil
}

func (c *Client) Submit(req SubmitRequest) error {
	body, _ := json.Marshal(req)
	resp, err := c.http.Post(c.baseURL+"/process-from-path", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit dataset %d: %w", req.DatasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit dataset %d: sidecar returned %d", req.DatasetID, resp.StatusCode)
	}
	c.log.Info("dataset submitted for processing",
		zap.Uint("dataset_id", req.DatasetID),
		zap.Uint("tenant_id", req.TenantID),
		zap.Int("columns", len(req.SelectedHeaders)))
	return nil
}

func (c *Client) Cancel(datasetID uint) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/cancel/%d", c.baseURL, datasetID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel dataset %d: %w", datasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cancel dataset %d: sidecar returned %d", datasetID, resp.StatusCode)
	}
	return nil
}
