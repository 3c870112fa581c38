package model

import (
	"errors"
	"fmt"
)

var (
	ErrVersionMismatch   = errors.New("record version mismatch")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// LinkID derives the persisted id of a link from its four identifying fields.
func LinkID(sourceNode, sourceGate, targetSlot, targetNode string) string {
	return sourceNode + ":" + sourceGate + ":" + targetSlot + ":" + targetNode
}

// CheckVersion rejects records written by a different engine version.
func (r NodenetRecord) CheckVersion() error {
	if r.Version != SnapshotVersion {
		return fmt.Errorf("%w: got=%d want=%d", ErrVersionMismatch, r.Version, SnapshotVersion)
	}
	return nil
}

// Validate checks the structural consistency of a record: every reference
// resolves, link ids match their endpoints and the nodespace tree is rooted
// and acyclic. It does not check node types against a registry.
func (r NodenetRecord) Validate() error {
	if r.UID == "" {
		return fmt.Errorf("%w: missing uid", ErrMalformedSnapshot)
	}
	if r.Step < 0 {
		return fmt.Errorf("%w: negative step %d", ErrMalformedSnapshot, r.Step)
	}
	knownSpace := func(id string) bool {
		if id == RootNodespace {
			return true
		}
		_, ok := r.Nodespaces[id]
		return ok
	}

	for id, ns := range r.Nodespaces {
		if id == RootNodespace {
			if ns.ParentNodespace != "" {
				return fmt.Errorf("%w: root nodespace has parent %q", ErrMalformedSnapshot, ns.ParentNodespace)
			}
			continue
		}
		if !knownSpace(ns.ParentNodespace) {
			return fmt.Errorf("%w: nodespace %s has unknown parent %q", ErrMalformedSnapshot, id, ns.ParentNodespace)
		}
		seen := map[string]bool{id: true}
		for cursor := ns.ParentNodespace; cursor != RootNodespace; cursor = r.Nodespaces[cursor].ParentNodespace {
			if !knownSpace(cursor) {
				return fmt.Errorf("%w: nodespace %s has unknown ancestor %q", ErrMalformedSnapshot, id, cursor)
			}
			if seen[cursor] {
				return fmt.Errorf("%w: nodespace cycle through %s", ErrMalformedSnapshot, cursor)
			}
			seen[cursor] = true
		}
	}

	for id, node := range r.Nodes {
		if node.Type == "" {
			return fmt.Errorf("%w: node %s has no type", ErrMalformedSnapshot, id)
		}
		if !knownSpace(node.ParentNodespace) {
			return fmt.Errorf("%w: node %s has unknown nodespace %q", ErrMalformedSnapshot, id, node.ParentNodespace)
		}
	}

	for id, link := range r.Links {
		if _, ok := r.Nodes[link.SourceNodeUID]; !ok {
			return fmt.Errorf("%w: link %s has unknown source %q", ErrMalformedSnapshot, id, link.SourceNodeUID)
		}
		if _, ok := r.Nodes[link.TargetNodeUID]; !ok {
			return fmt.Errorf("%w: link %s has unknown target %q", ErrMalformedSnapshot, id, link.TargetNodeUID)
		}
		want := LinkID(link.SourceNodeUID, link.SourceGateName, link.TargetSlotName, link.TargetNodeUID)
		if id != want {
			return fmt.Errorf("%w: link id %s does not match endpoints %s", ErrMalformedSnapshot, id, want)
		}
	}

	for id, monitor := range r.Monitors {
		if monitor.Classname == "" {
			return fmt.Errorf("%w: monitor %s has no classname", ErrMalformedSnapshot, id)
		}
	}
	return nil
}
