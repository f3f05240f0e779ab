// Package sentinel detects the completion marker in agent output.
//
// The marker is advisory: the ledger's remaining count is the
// authoritative completion signal. The detector only reports whether
// the agent claimed completion so the caller can cross-check.
package sentinel

import "strings"

// Marker is the default completion phrase agents are instructed to emit.
const Marker = "ALL WORK ITEMS COMPLETE"

// Detector scans text for a completion marker.
type Detector struct {
	marker string
}

// New returns a detector for the given marker. An empty marker falls
// back to the default.
func New(marker string) *Detector {
	if marker == "" {
		marker = Marker
	}
	return &Detector{marker: marker}
}

// Marker returns the phrase the detector scans for.
func (d *Detector) Marker() string {
	return d.marker
}

// Detect reports whether the output contains the marker. The match is
// exact and case-sensitive; the marker may appear anywhere in the text.
func (d *Detector) Detect(output string) bool {
	return strings.Contains(output, d.marker)
}
