// Package proofdag holds the data model the build-server's LeanDag.getProofDag
// custom RPC returns. The core treats it as opaque beyond transport: fields
// are decoded enough to route and log, never interpreted or flattened (§9).
package proofdag

import (
	"encoding/json"
	"fmt"
)

// NodeId indexes into ProofDag.Nodes.
type NodeId = uint32

// Tactic describes the single tactic application a ProofDagNode represents.
type Tactic struct {
	Text          string   `json:"text"`
	DependsOn     []string `json:"dependsOn"`
	TheoremsUsed  []string `json:"theoremsUsed"`
}

// ProofDagNode is one step in the tactic tree.
type ProofDagNode struct {
	Id             uint32     `json:"id"`
	Tactic         Tactic     `json:"tactic"`
	SourcePosition Position   `json:"sourcePosition"`
	StateBefore    ProofState `json:"stateBefore"`
	StateAfter     ProofState `json:"stateAfter"`
	NewHypotheses  []int      `json:"newHypotheses"`
	Parent         *NodeId    `json:"parent,omitempty"`
	Children       []NodeId   `json:"children"`
	Depth          uint32     `json:"depth"`
}

// Position mirrors model.Position; proofdag must not import model (model
// imports proofdag for Message.Dag), so it carries its own copy of this
// trivial value type.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// ProofDag is the server's structured description of a proof's tactic tree.
// Orphans lists nodes not connected to the main tree, e.g. inline `by`
// blocks elaborated outside the primary tactic chain.
type ProofDag struct {
	Nodes          []ProofDagNode `json:"nodes"`
	Root           *NodeId        `json:"root,omitempty"`
	CurrentNode    *NodeId        `json:"currentNode,omitempty"`
	InitialState   ProofState     `json:"initialState"`
	DefinitionName *string        `json:"definitionName,omitempty"`
	Orphans        []NodeId       `json:"orphans,omitempty"`
}

// ProofState is transported verbatim between the server and the viewer.
type ProofState struct {
	Goals       []GoalInfo       `json:"goals"`
	Hypotheses  []HypothesisInfo `json:"hypotheses"`
}

// GotoLocations carries pre-resolved navigation targets the server supplied
// directly, sparing a round-trip through Lean.Widget.getGoToLocation for the
// common case. Left as raw JSON: its shape is vendor-defined and the core
// only forwards it to viewers.
type GotoLocations json.RawMessage

func (g GotoLocations) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte("null"), nil
	}
	return g, nil
}

func (g *GotoLocations) UnmarshalJSON(data []byte) error {
	*g = append((*g)[0:0], data...)
	return nil
}

// UserName is either Anonymous or Named: the server emits hygienic macro-generated
// names and the literal token "[anonymous]" for goals with no user-given
// name, and a naive string field would leak that noise to viewers.
type UserName struct {
	named bool
	name  string
}

func AnonymousName() UserName { return UserName{} }

func NamedUserName(name string) UserName { return UserName{named: true, name: name} }

// IsNamed reports whether this is a user-given name (as opposed to
// Anonymous).
func (u UserName) IsNamed() bool { return u.named }

// String returns the name, or "" if Anonymous.
func (u UserName) String() string { return u.name }

func isHygienicName(name string) bool {
	for i := 0; i+5 <= len(name); i++ {
		if name[i:i+5] == "._hyg" {
			return true
		}
	}
	for i := 0; i+3 <= len(name); i++ {
		if name[i:i+3] == "._@" {
			return true
		}
	}
	return false
}

func userNameFromRaw(name string) UserName {
	if name == "" || name == "[anonymous]" || isHygienicName(name) {
		return AnonymousName()
	}
	return NamedUserName(name)
}

func (u UserName) MarshalJSON() ([]byte, error) {
	if !u.named {
		return json.Marshal(nil)
	}
	return json.Marshal(u.name)
}

func (u *UserName) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*u = AnonymousName()
		return nil
	}
	*u = userNameFromRaw(*raw)
	return nil
}

// GoalInfo describes one open goal in a ProofState.
type GoalInfo struct {
	Type          CodeWithInfos `json:"type"`
	Username      UserName      `json:"username"`
	Id            string        `json:"id"`
	GotoLocations GotoLocations `json:"gotoLocations,omitempty"`
}

// HypothesisInfo describes one hypothesis in scope for a goal. IsProof and
// IsInstance flag hypotheses that are themselves proof terms or typeclass
// instances, so viewers can style them distinctly without re-deriving the
// distinction from Type.
type HypothesisInfo struct {
	Name          string        `json:"name"`
	Type          CodeWithInfos `json:"type"`
	Value         *string       `json:"value,omitempty"`
	Id            string        `json:"id"`
	IsProof       bool          `json:"isProof"`
	IsInstance    bool          `json:"isInstance"`
	GotoLocations GotoLocations `json:"gotoLocations,omitempty"`
}

// CodeWithInfos is the server's recursive tagged-tree representation of
// pretty-printed terms: {text} | {tag: (info, content)} | {append: [items]}.
// The core only transports it (§9): it is kept as raw JSON with a
// marshaler/unmarshaler pair that exist solely for round-trip fidelity.
// Flattening, if ever needed, happens downstream in a viewer, never here.
type CodeWithInfos json.RawMessage

func (c CodeWithInfos) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *CodeWithInfos) UnmarshalJSON(data []byte) error {
	*c = append((*c)[0:0], data...)
	return nil
}
