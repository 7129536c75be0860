// Package types provides shared type definitions for ERA.
package types

// UtilityKind distinguishes hand-written utilities from ones mined out of
// successful generation sessions.
type UtilityKind string

const (
	UtilityBuiltin        UtilityKind = "builtin"
	UtilityGeneratedAgent UtilityKind = "generated_agent"
)

// UtilityEntry is a callable capability that can be injected into generated code.
// Builtin manifests are stored as YAML next to their source. Requires names
// other utilities the source calls; they are injected ahead of it.
type UtilityEntry struct {
	Name          string      `json:"name" yaml:"name"`
	Kind          UtilityKind `json:"kind" yaml:"kind"`
	Description   string      `json:"description" yaml:"description"`
	SourceCode    string      `json:"source_code" yaml:"-"`
	Dependencies  []string    `json:"dependencies" yaml:"dependencies"`
	Requires      []string    `json:"requires,omitempty" yaml:"requires,omitempty"`
	Documentation string      `json:"documentation" yaml:"documentation"`
	Origin        Origin      `json:"origin" yaml:"-"`
	Signatures    []Signature `json:"signatures,omitempty" yaml:"-"`
}

// Origin records where a utility came from.
// Path is set for builtins; SessionID and Prompt for generated agents.
type Origin struct {
	Path      string `json:"path,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

// Signature is one annotated declaration found in generated code.
type Signature struct {
	Name        string `json:"name"`
	Declaration string `json:"declaration"`
	Comment     string `json:"comment,omitempty"`
}
