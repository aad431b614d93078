package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"sort"
	"time"
)

// Frame represents one captured video frame with metadata.
// It is owned by the pipeline for a single processing cycle.
type Frame struct {
	Image     image.Image // Pixel buffer in native resolution
	Timestamp time.Time   // Capture timestamp (monotonic reading when taken from time.Now)
	FrameNum  uint64      // Sequential number assigned by the source
	Width     int         // Frame width
	Height    int         // Frame height
}

// NewFrame wraps an image, filling Width/Height from its bounds.
func NewFrame(img image.Image, ts time.Time, num uint64) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Timestamp: ts,
		FrameNum:  num,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
}

// Region is an axis-aligned bounding box in pixel coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H.
func (r Region) Area() int {
	return r.W * r.H
}

// LabelScore is a single emotion label with its confidence in [0,1].
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Scores is an ordered label->score mapping. Order is the order in which
// labels were produced by the detector and is used for tie-breaking.
type Scores []LabelScore

// Top returns the label with the maximal score; ties go to the first
// encountered label. ok is false for an empty mapping.
func (s Scores) Top() (LabelScore, bool) {
	if len(s) == 0 {
		return LabelScore{}, false
	}
	best := s[0]
	for _, ls := range s[1:] {
		if ls.Score > best.Score {
			best = ls
		}
	}
	return best, true
}

// Sorted returns a copy ordered by descending score (stable).
func (s Scores) Sorted() Scores {
	out := make(Scores, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Map returns the scores as a plain map.
func (s Scores) Map() map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, ls := range s {
		m[ls.Label] = ls.Score
	}
	return m
}

// UnmarshalJSON decodes a JSON object {"label": score, ...} keeping key order.
func (s *Scores) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("scores: expected object, got %v", tok)
	}

	out := Scores{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("scores: expected string key, got %v", keyTok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("scores: value for %q: %w", key, err)
		}
		out = append(out, LabelScore{Label: key, Score: score})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON encodes the scores as a JSON object in their current order.
func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ls := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ls.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(ls.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Detection is one detector result: a face region plus its emotion scores.
type Detection struct {
	Region Region `json:"box"`
	Scores Scores `json:"emotions"`
}
