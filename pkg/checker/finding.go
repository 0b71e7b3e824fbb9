package checker

import (
	"fmt"
	"sort"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind names what a finding reports.
type Kind string

const (
	KindRevealType      Kind = "reveal_type"
	KindUnbound         Kind = "unbound"
	KindPossiblyUnbound Kind = "possibly_unbound"
	KindUnreachable     Kind = "unreachable"
	KindTooComplex      Kind = "too_complex"
	KindSyntaxError     Kind = "syntax_error"
)

// Finding is one diagnostic for a source position.
type Finding struct {
	Path     string   `json:"path" msgpack:"path"`
	Line     int      `json:"line" msgpack:"line"`
	Col      int      `json:"col" msgpack:"col"`
	Kind     Kind     `json:"kind" msgpack:"kind"`
	Severity Severity `json:"severity" msgpack:"severity"`
	Message  string   `json:"message" msgpack:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s [%s]", f.Path, f.Line, f.Col+1, f.Severity, f.Message, f.Kind)
}

// Report is the outcome of checking one file.
type Report struct {
	Path     string    `json:"path"`
	Hash     string    `json:"hash,omitempty"`
	Findings []Finding `json:"findings"`
	// Cached is set when the findings came from the findings cache.
	Cached bool `json:"cached,omitempty"`
	// Error is set when the file could not be analyzed.
	Error string `json:"error,omitempty"`
}

// Count returns the number of findings with severity sev.
func (r *Report) Count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any report failed or has an error finding.
func HasErrors(reports []*Report) bool {
	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.Error != "" || r.Count(SeverityError) > 0 {
			return true
		}
	}
	return false
}

func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		if fs[i].Col != fs[j].Col {
			return fs[i].Col < fs[j].Col
		}
		return fs[i].Kind < fs[j].Kind
	})
}
