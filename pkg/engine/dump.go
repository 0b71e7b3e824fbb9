package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/flowtype/pkg/flow"
)

// Format is the output format of Dump.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name. The empty name is text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("unknown dump format %q (want text, json or msgpack)", s)
}

// DumpOptions control Dump.
type DumpOptions struct {
	Format Format
	// Color enables colored node kinds in text output.
	Color bool
	// Reachability annotates every node with its reachability status.
	Reachability bool
}

// Dump writes the part of the graph reachable backward from root.
func (s *Session) Dump(ctx context.Context, w io.Writer, root flow.NodeID, opts DumpOptions) error {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return err
	}
	snap := s.g.Snapshot(root)
	if opts.Reachability {
		for i := range snap.Nodes {
			snap.Nodes[i].Reach = string(s.Reachable(ctx, snap.Nodes[i].ID, flow.NoNode, false).Status)
		}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
	default:
		if err := snap.WriteText(w, opts.Color); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	return nil
}
