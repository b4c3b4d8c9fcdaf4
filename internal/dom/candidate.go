package dom

import (
	"fmt"
	"strings"
)

// BBox is a candidate's bounding box in page coordinates.
type BBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Candidate is a detected DOM element prior to classification.
type Candidate struct {
	Selector   string   `json:"selector"`
	Type       Label    `json:"type"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
	BBox       BBox     `json:"bbox"`
	Text       string   `json:"text"`
	Evidence   []string `json:"evidence,omitempty"`
}

// EmbeddingText is the text embedded for c: its text followed by its evidence.
func (c Candidate) EmbeddingText() string {
	if len(c.Evidence) == 0 {
		return c.Text
	}
	return c.Text + " " + strings.Join(c.Evidence, " ")
}

// Relabel returns a copy of c typed with the predicted label, unless the
// prediction does not override (MESSAGE_CONTAINER), in which case the
// original type is kept.
func (c Candidate) Relabel(predicted Label) Candidate {
	if predicted.Overrides() {
		c.Type = predicted
	}
	if len(c.Evidence) > 0 {
		c.Evidence = append([]string(nil), c.Evidence...)
	}
	return c
}

// Key identifies a domain's memory. Both fields take part in equality; no
// delimiter encoding is involved, so neither field can collide with the other.
type Key struct {
	Host        string `json:"host"`
	Fingerprint string `json:"domainFingerprint"`
}

// String renders the key for logs and learner state ids only.
func (k Key) String() string {
	return fmt.Sprintf("%s::%s", k.Host, k.Fingerprint)
}
