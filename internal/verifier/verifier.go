// Package verifier scores an extraction attempt without external supervision.
package verifier

import (
	"strings"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

// Status is the pass/warn/fail verdict derived from a score.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Thresholds on the score.
const (
	PassThreshold = 0.6
	WarnThreshold = 0.45
)

// score weights
const (
	weightMessages    = 0.35
	weightRoles       = 0.2
	weightMonotonic   = 0.15
	weightUniqueness  = 0.15
	weightAttachments = 0.15

	targetMessages = 20.0
)

// Metrics is the quality assessment of one attempt.
type Metrics struct {
	Score              float64 `json:"score"`
	MessageCount       int     `json:"messageCount"`
	RoleSanity         float64 `json:"roleSanity"`
	MonotonicOK        float64 `json:"monotonicOk"`
	DuplicationRate    float64 `json:"duplicationRate"`
	AttachmentCoverage float64 `json:"attachmentCoverage"`
	Status             Status  `json:"status"`
}

// StatusFor maps a score onto a verdict.
func StatusFor(score float64) Status {
	switch {
	case score >= PassThreshold:
		return StatusPass
	case score >= WarnThreshold:
		return StatusWarn
	default:
		return StatusFail
	}
}

// Verify scores items. It is a pure function of its input.
func Verify(items []dom.Candidate) Metrics {
	var (
		messages    []dom.Candidate
		user, model bool
		attachments int
	)
	for _, it := range items {
		switch {
		case it.Type == dom.LabelUserTurn:
			user = true
			messages = append(messages, it)
		case it.Type == dom.LabelModelTurn:
			model = true
			messages = append(messages, it)
		case it.Type.IsAttachment():
			attachments++
		}
	}

	m := Metrics{MessageCount: len(messages), MonotonicOK: 1}
	if user && model {
		m.RoleSanity = 1
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].BBox.Top < messages[i-1].BBox.Top {
			m.MonotonicOK = 0
			break
		}
	}
	if len(messages) > 0 {
		distinct := make(map[string]struct{}, len(messages))
		for _, msg := range messages {
			distinct[strings.TrimSpace(msg.Text)] = struct{}{}
		}
		m.DuplicationRate = 1 - float64(len(distinct))/float64(len(messages))
	}
	if len(items) > 0 {
		m.AttachmentCoverage = float64(attachments) / float64(len(items))
	}

	m.Score = weightMessages*min(1, float64(len(messages))/targetMessages) +
		weightRoles*m.RoleSanity +
		weightMonotonic*m.MonotonicOK +
		weightUniqueness*(1-min(1, m.DuplicationRate)) +
		weightAttachments*min(1, m.AttachmentCoverage*4)
	m.Status = StatusFor(m.Score)
	return m
}
