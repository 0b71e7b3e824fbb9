package flow

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// NodeInfo is the serializable form of one flow node.
type NodeInfo struct {
	ID          NodeID   `json:"id" msgpack:"id"`
	Kind        Kind     `json:"kind" msgpack:"kind"`
	Detail      string   `json:"detail" msgpack:"detail"`
	Antecedents []NodeID `json:"antecedents,omitempty" msgpack:"antecedents,omitempty"`
	Scope       string   `json:"scope" msgpack:"scope"`
	// Reach is the reachability status of the node, when annotated.
	Reach string `json:"reach,omitempty" msgpack:"reach,omitempty"`
}

// Snapshot is the part of a graph reachable backward from Root.
type Snapshot struct {
	Root  NodeID     `json:"root" msgpack:"root"`
	Nodes []NodeInfo `json:"nodes" msgpack:"nodes"`
}

// Snapshot collects every node reachable backward from root, ordered by
// descending ID so the root comes first.
func (g *Graph) Snapshot(root NodeID) *Snapshot {
	seen := map[NodeID]bool{root: true}
	queue := []NodeID{root}
	var infos []NodeInfo
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := g.Node(id)
		s := g.ScopeOfNode(id)
		infos = append(infos, NodeInfo{
			ID:          id,
			Kind:        n.Kind(),
			Detail:      n.Describe(),
			Antecedents: append([]NodeID(nil), n.Antecedents()...),
			Scope:       fmt.Sprintf("%s %s", s.Kind, s.Name),
		})
		for _, a := range n.Antecedents() {
			if !seen[a] {
				seen[a] = true
				queue = append(queue, a)
			}
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID > infos[j].ID })
	return &Snapshot{Root: root, Nodes: infos}
}

var kindColors = map[Kind]*color.Color{
	KindStart:              color.New(color.FgGreen, color.Bold),
	KindUnreachable:        color.New(color.FgRed),
	KindBranchLabel:        color.New(color.FgCyan),
	KindLoopLabel:          color.New(color.FgCyan, color.Bold),
	KindAssignment:         color.New(color.FgYellow),
	KindCondition:          color.New(color.FgMagenta),
	KindPatternNarrow:      color.New(color.FgMagenta),
	KindExhaustedMatch:     color.New(color.FgMagenta, color.Bold),
	KindCall:               color.New(color.FgBlue),
	KindPreFinallyGate:     color.New(color.FgHiBlack),
	KindPostFinally:        color.New(color.FgHiBlack),
	KindPostContextManager: color.New(color.FgHiBlack),
}

// WriteText renders the snapshot one node per line:
//
//	[12] condition      true `x is not None`  <- 11
//
// Kinds are colored when colored is set.
func (s *Snapshot) WriteText(w io.Writer, colored bool) error {
	width := 0
	for _, n := range s.Nodes {
		if len(n.Kind) > width {
			width = len(n.Kind)
		}
	}
	for _, n := range s.Nodes {
		kind := fmt.Sprintf("%-*s", width, n.Kind)
		if c, ok := kindColors[n.Kind]; ok && colored {
			kind = c.Sprint(kind)
		}
		line := fmt.Sprintf("[%d] %s  %s", n.ID, kind, n.Detail)
		if len(n.Antecedents) > 0 {
			ants := make([]string, len(n.Antecedents))
			for i, a := range n.Antecedents {
				ants[i] = fmt.Sprintf("%d", a)
			}
			line += "  <- " + strings.Join(ants, ", ")
		}
		if n.Reach != "" {
			line += "  (" + n.Reach + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
