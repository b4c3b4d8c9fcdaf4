// Package dom defines the data model shared by the extraction loop.
//
// A Candidate is one DOM element detected by a platform collaborator before
// classification. Its Type is a closed Label enum; free-form type strings
// coming from collaborators decode to LabelUnknown rather than leaking
// arbitrary values into the classifier.
//
// Key identifies the per-domain memory as a genuine two-field composite of
// host and domain fingerprint.
package dom
