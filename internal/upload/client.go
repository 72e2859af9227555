package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Meta describes an image being uploaded.
type Meta struct {
	MimeType string
	NodeID   string
	Format   string
	Scale    float64
}

// Client posts rendered images to a relay's upload endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the relay at baseURL (e.g. http://localhost:3055).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload sends data and returns the relay's receipt.
func (c *Client) Upload(ctx context.Context, data []byte, meta Meta) (*Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", meta.MimeType)
	req.Header.Set(HeaderNodeID, meta.NodeID)
	req.Header.Set(HeaderFormat, meta.Format)
	req.Header.Set(HeaderScale, strconv.FormatFloat(meta.Scale, 'f', -1, 64))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, body.Error)
		}
		return nil, fmt.Errorf("upload failed (%d)", resp.StatusCode)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode upload receipt: %w", err)
	}
	return &receipt, nil
}
