// Package stream is the client for the streaming-video host (backend A).
// Uploads are ingested asynchronously: the host returns an opaque uid and the
// caller polls until the video is ready to stream. Playback URLs are derived
// by templating the uid into fixed delivery paths.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultDeliveryBaseURL = "https://videodelivery.net"
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPolls        = 60
)

// ErrProcessingTimeout is returned when a video does not become ready within
// the polling ceiling. It is distinct from the host reporting an error state.
var ErrProcessingTimeout = errors.New("video processing timeout")

type Config struct {
	UploadURL       string // account-scoped stream endpoint
	APIToken        string
	DeliveryBaseURL string
	PollInterval    time.Duration
	MaxPolls        int
	HTTPClient      *http.Client
}

type Client struct {
	uploadURL    string
	apiToken     string
	deliveryBase string
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
}

func New(cfg Config) *Client {
	c := &Client{
		uploadURL:    strings.TrimSuffix(cfg.UploadURL, "/"),
		apiToken:     cfg.APIToken,
		deliveryBase: cfg.DeliveryBaseURL,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		httpClient:   cfg.HTTPClient,
	}
	if c.deliveryBase == "" {
		c.deliveryBase = DefaultDeliveryBaseURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPolls <= 0 {
		c.maxPolls = DefaultMaxPolls
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return c
}

type Video struct {
	UID           string      `json:"uid"`
	ReadyToStream bool        `json:"readyToStream"`
	Duration      float64     `json:"duration"`
	Status        VideoStatus `json:"status"`
}

type VideoStatus struct {
	State           string `json:"state"`
	ErrorReasonText string `json:"errorReasonText"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []apiError      `json:"errors"`
}

func (e envelope) firstError() string {
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		return e.Errors[0].Message
	}
	return "request failed"
}

type progressReader struct {
	r          io.Reader
	total      int64
	loaded     int64
	onProgress func(percent float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 && p.onProgress != nil {
		p.loaded += int64(n)
		p.onProgress(float64(p.loaded) / float64(p.total) * 100)
	}
	return n, err
}

// Upload posts the video as a multipart body with optional name metadata.
// onProgress receives byte-level progress as a 0-100 percentage.
func (c *Client) Upload(ctx context.Context, filePath, name string, onProgress func(percent float64)) (*Video, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload file: %w", err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		var werr error
		defer func() { _ = pw.CloseWithError(werr) }()

		if name != "" {
			meta, merr := json.Marshal(map[string]string{"name": name})
			if merr != nil {
				werr = merr
				return
			}
			if werr = form.WriteField("meta", string(meta)); werr != nil {
				return
			}
		}
		if werr = form.WriteField("requireSignedURLs", "false"); werr != nil {
			return
		}

		part, perr := form.CreateFormFile("file", filepath.Base(filePath))
		if perr != nil {
			werr = perr
			return
		}
		src := &progressReader{r: f, total: info.Size(), onProgress: onProgress}
		if _, werr = io.Copy(part, src); werr != nil {
			return
		}
		werr = form.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, env.firstError())
	}
	if !env.Success {
		return nil, fmt.Errorf("upload rejected: %s", env.firstError())
	}

	var video Video
	if err := json.Unmarshal(env.Result, &video); err != nil {
		return nil, fmt.Errorf("decode upload result: %w", err)
	}
	if video.UID == "" {
		return nil, fmt.Errorf("upload result missing uid")
	}
	return &video, nil
}

// Status fetches the current processing state for a video.
func (c *Client) Status(ctx context.Context, uid string) (*Video, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uploadURL+"/"+uid, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return nil, fmt.Errorf("status failed: %s", env.firstError())
	}

	var video Video
	if err := json.Unmarshal(env.Result, &video); err != nil {
		return nil, fmt.Errorf("decode status result: %w", err)
	}
	return &video, nil
}

// WaitForProcessing polls until the video is ready to stream. A reported
// error state is terminal. The loop stops after maxPolls attempts so a stuck
// ingest cannot hang a session forever, and context cancellation tears the
// polling down cleanly.
func (c *Client) WaitForProcessing(ctx context.Context, uid string) (*Video, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		video, err := c.Status(ctx, uid)
		if err != nil {
			return nil, err
		}
		if video.ReadyToStream {
			return video, nil
		}
		if video.Status.State == "error" {
			reason := video.Status.ErrorReasonText
			if reason == "" {
				reason = "video processing failed"
			}
			return nil, fmt.Errorf("processing error: %s", reason)
		}
		if attempt >= c.maxPolls {
			return nil, ErrProcessingTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Delete removes an ingested video from the host.
func (c *Client) Delete(ctx context.Context, uid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.uploadURL+"/"+uid, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return fmt.Errorf("delete failed: %s", env.firstError())
	}
	return nil
}

func (c *Client) HLSURL(uid string) string {
	return fmt.Sprintf("%s/%s/manifest/video.m3u8", c.deliveryBase, uid)
}

func (c *Client) DASHURL(uid string) string {
	return fmt.Sprintf("%s/%s/manifest/video.mpd", c.deliveryBase, uid)
}

// ThumbnailURL returns a server-generated still at the given timestamp.
// Pass a negative time to let the host pick its default frame.
func (c *Client) ThumbnailURL(uid string, seconds float64, width, height int) string {
	url := fmt.Sprintf("%s/%s/thumbnails/thumbnail.jpg", c.deliveryBase, uid)
	params := make([]string, 0, 3)
	if seconds >= 0 {
		params = append(params, fmt.Sprintf("time=%gs", seconds))
	}
	if width > 0 {
		params = append(params, fmt.Sprintf("width=%d", width))
	}
	if height > 0 {
		params = append(params, fmt.Sprintf("height=%d", height))
	}
	if len(params) > 0 {
		url += "?" + strings.Join(params, "&")
	}
	return url
}
