package decode

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// TreeSpec is a labelled tree in wire form. It serves double duty: as the
// source side of a rule (leaves are frontier symbols) and as a parse-tree
// input (leaves are source words).
type TreeSpec struct {
	Label    string      `json:"label"`
	Children []*TreeSpec `json:"children,omitempty"`
}

// TargetToken is one element of a rule's target side. Exactly one of Word
// and NonTerm is meaningful: a surface word, or the source frontier position
// whose translation substitutes here.
type TargetToken struct {
	Word    string `json:"word,omitempty"`
	NonTerm *int   `json:"nonTerm,omitempty"`
}

// RuleSpec is one translation rule in wire form. Align pairs are
// (source frontier position, target word position) over terminals only;
// non-terminal links are implied by the NonTerm tokens.
type RuleSpec struct {
	Source   *TreeSpec          `json:"source"`
	Target   []TargetToken      `json:"target"`
	Align    [][2]int           `json:"align,omitempty"`
	Features map[string]float64 `json:"features,omitempty"`
}

// VertexSpec is one packed-forest vertex in wire form. Start and End are
// inclusive source word positions.
type VertexSpec struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EdgeSpec is one packed-forest hyperedge in wire form, referencing
// vertices by ID.
type EdgeSpec struct {
	Head   string   `json:"head"`
	Tail   []string `json:"tail"`
	Weight float64  `json:"weight"`
}

// ForestSpec is a packed forest in wire form.
type ForestSpec struct {
	Vertices []VertexSpec `json:"vertices"`
	Edges    []EdgeSpec   `json:"edges"`
	Root     string       `json:"root"`
}

// Options are the per-request decoding knobs. Zero values fall back to the
// configured defaults.
type Options struct {
	NBest       int   `json:"nBest,omitempty"`
	Distinct    *bool `json:"distinct,omitempty"`
	PopLimit    int   `json:"popLimit,omitempty"`
	RuleLimit   int   `json:"ruleLimit,omitempty"`
	StackLimit  *int  `json:"stackLimit,omitempty"`
	NBestFactor int   `json:"nBestFactor,omitempty"`
	StateOrder  *int  `json:"stateOrder,omitempty"`
}

// Request is one decode request: a source structure (tree or forest), the
// grammar to decode it with, model weights, and options.
type Request struct {
	Tree    *TreeSpec          `json:"tree,omitempty"`
	Forest  *ForestSpec        `json:"forest,omitempty"`
	Rules   []RuleSpec         `json:"rules"`
	Weights map[string]float64 `json:"weights,omitempty"`
	Options Options            `json:"options,omitempty"`
}

// Hash returns a stable digest of the request, used as the cache key.
// encoding/json emits map keys in sorted order, so equal requests hash
// equally.
func (r *Request) Hash() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("hashing request: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:16]), nil
}

// Hypothesis is one n-best entry.
type Hypothesis struct {
	Text      string             `json:"text"`
	Words     []string           `json:"words"`
	Score     float64            `json:"score"`
	Features  map[string]float64 `json:"features"`
	Alignment [][2]int           `json:"alignment"`
}

// SearchStats reports what the search did for one request.
type SearchStats struct {
	Nodes     int `json:"nodes"`
	CubePops  int `json:"cubePops"`
	GlueRules int `json:"glueRules"`
	Bundles   int `json:"bundles"`
	MaxStack  int `json:"maxStack"`
}

// Result is the decode outcome for one request.
type Result struct {
	Hypotheses []Hypothesis `json:"hypotheses"`
	Stats      SearchStats  `json:"stats"`
	DurationMs int64        `json:"durationMs"`
	Cached     bool         `json:"cached,omitempty"`
}
