package dom

import "strings"

// Label is the classifier's closed label set.
type Label string

const (
	LabelMessageContainer Label = "MESSAGE_CONTAINER"
	LabelUserTurn         Label = "USER_TURN"
	LabelModelTurn        Label = "MODEL_TURN"
	LabelCodeBlock        Label = "CODE_BLOCK"
	LabelImageBlock       Label = "IMAGE_BLOCK"
	LabelFileCard         Label = "FILE_CARD"
	LabelNoise            Label = "NOISE"

	// LabelUnknown marks collaborator types outside the label set.
	// It is never produced by the classifier.
	LabelUnknown Label = "UNKNOWN"
)

// Labels lists the classifier labels in declaration order.
// The order decides ties wherever scores are compared with strict >.
var Labels = []Label{
	LabelMessageContainer,
	LabelUserTurn,
	LabelModelTurn,
	LabelCodeBlock,
	LabelImageBlock,
	LabelFileCard,
	LabelNoise,
}

// overrides lists predicted labels that replace a candidate's original type.
// MESSAGE_CONTAINER is absent: a container prediction keeps the original type.
var overrides = map[Label]bool{
	LabelUserTurn:   true,
	LabelModelTurn:  true,
	LabelCodeBlock:  true,
	LabelImageBlock: true,
	LabelFileCard:   true,
	LabelNoise:      true,
}

// ParseLabel maps a collaborator type string onto the label set.
// Matching is case-insensitive; anything else yields LabelUnknown.
func ParseLabel(s string) Label {
	upper := Label(strings.ToUpper(strings.TrimSpace(s)))
	for _, l := range Labels {
		if l == upper {
			return l
		}
	}
	return LabelUnknown
}

// Valid reports whether l is one of the classifier labels.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// IsMessage reports whether l is a conversational turn.
func (l Label) IsMessage() bool {
	return l == LabelUserTurn || l == LabelModelTurn
}

// IsAttachment reports whether l is an image or file attachment.
func (l Label) IsAttachment() bool {
	return l == LabelImageBlock || l == LabelFileCard
}

// IsPositive reports whether l counts as a positive training example.
func (l Label) IsPositive() bool {
	return l.IsMessage() || l == LabelCodeBlock || l.IsAttachment()
}

// Overrides reports whether a prediction of l replaces the original type.
func (l Label) Overrides() bool {
	return overrides[l]
}

// String implements fmt.Stringer.
func (l Label) String() string {
	return string(l)
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	if l == "" {
		return []byte(LabelUnknown), nil
	}
	return []byte(l), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(text []byte) error {
	*l = ParseLabel(string(text))
	return nil
}
