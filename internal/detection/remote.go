package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// RemoteDetector calls an HTTP inference service: POST {url}/detect with a
// JPEG body, answered by [{"box":[x,y,w,h],"emotions":{"happy":0.9,...}}].
type RemoteDetector struct {
	url     string
	client  *http.Client
	quality int
}

// NewRemoteDetector creates a detector client. timeout bounds every call.
func NewRemoteDetector(url string, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteDetector{
		url:     strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: timeout},
		quality: 85,
	}
}

// maxResponseBytes caps how much of a detect response is read.
const maxResponseBytes = 1 << 20

type remoteFace struct {
	Box      []float64    `json:"box"`
	Emotions types.Scores `json:"emotions"`
}

// Detect encodes img as JPEG and posts it to the inference service.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/detect", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("detect decode: %w", err)
	}
	return decodeFaces(raw), nil
}

// decodeFaces keeps every well-formed face and drops the rest. Box
// coordinates may be fractional and are truncated to whole pixels.
func decodeFaces(raw []json.RawMessage) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for i, r := range raw {
		var f remoteFace
		if err := json.Unmarshal(r, &f); err != nil {
			logger.Debug("Detection", "Skipping face %d: %v", i, err)
			continue
		}
		if len(f.Box) != 4 {
			logger.Debug("Detection", "Skipping face %d: box has %d values", i, len(f.Box))
			continue
		}
		out = append(out, types.Detection{
			Region: types.Region{X: int(f.Box[0]), Y: int(f.Box[1]), W: int(f.Box[2]), H: int(f.Box[3])},
			Scores: f.Emotions,
		})
	}
	return out
}
