package nodenet

import (
	"fmt"
	"sort"
)

type changeKind uint8

const (
	changed changeKind = iota + 1
	deleted
)

type entityKind uint8

const (
	entityNode entityKind = iota
	entityLink
	entityNodespace
)

type stepChanges map[entityKind]map[string]changeKind

// changeLog records structural edits keyed by the step they become visible
// in. Edits made between steps belong to the next step.
type changeLog struct {
	retention int
	steps     map[int]stepChanges
}

func newChangeLog(retention int) *changeLog {
	return &changeLog{retention: retention, steps: make(map[int]stepChanges)}
}

func (c *changeLog) record(step int, kind entityKind, id string, change changeKind) {
	sc, ok := c.steps[step]
	if !ok {
		sc = make(stepChanges)
		c.steps[step] = sc
	}
	ids, ok := sc[kind]
	if !ok {
		ids = make(map[string]changeKind)
		sc[kind] = ids
	}
	ids[id] = change
}

func (c *changeLog) nodeChanged(step int, id string) { c.record(step, entityNode, id, changed) }
func (c *changeLog) nodeDeleted(step int, id string) { c.record(step, entityNode, id, deleted) }
func (c *changeLog) linkChanged(step int, id string) { c.record(step, entityLink, id, changed) }
func (c *changeLog) linkDeleted(step int, id string) { c.record(step, entityLink, id, deleted) }
func (c *changeLog) nodespaceChanged(step int, id string) {
	c.record(step, entityNodespace, id, changed)
}
func (c *changeLog) nodespaceDeleted(step int, id string) {
	c.record(step, entityNodespace, id, deleted)
}

// prune forgets steps that fell out of the retention window.
func (c *changeLog) prune(current int) {
	for step := range c.steps {
		if step <= current-c.retention {
			delete(c.steps, step)
		}
	}
}

// Diff lists entities created or changed, and deleted, after a step.
type Diff struct {
	Since             int      `json:"since"`
	Step              int      `json:"step"`
	NodesChanged      []string `json:"nodes_changed"`
	NodesDeleted      []string `json:"nodes_deleted"`
	LinksChanged      []string `json:"links_changed"`
	LinksDeleted      []string `json:"links_deleted"`
	NodespacesChanged []string `json:"nodespaces_changed"`
	NodespacesDeleted []string `json:"nodespaces_deleted"`
}

// Changes returns the structural edits made after step since, including
// edits not yet covered by a completed step. Queries older than the
// retention window fail with ErrHistoryExpired.
func (n *Net) Changes(since int) (Diff, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	c := n.changes
	if since < n.stepCount-c.retention {
		return Diff{}, fmt.Errorf("%w: step %d is older than %d steps", ErrHistoryExpired, since, c.retention)
	}

	steps := make([]int, 0, len(c.steps))
	for step := range c.steps {
		if step > since {
			steps = append(steps, step)
		}
	}
	sort.Ints(steps)

	latest := map[entityKind]map[string]changeKind{
		entityNode:      {},
		entityLink:      {},
		entityNodespace: {},
	}
	for _, step := range steps {
		for kind, ids := range c.steps[step] {
			for id, change := range ids {
				latest[kind][id] = change
			}
		}
	}

	split := func(kind entityKind) (ch, del []string) {
		ch, del = []string{}, []string{}
		for _, id := range sortedKeys(latest[kind]) {
			if latest[kind][id] == deleted {
				del = append(del, id)
			} else {
				ch = append(ch, id)
			}
		}
		return ch, del
	}
	diff := Diff{Since: since, Step: n.stepCount}
	diff.NodesChanged, diff.NodesDeleted = split(entityNode)
	diff.LinksChanged, diff.LinksDeleted = split(entityLink)
	diff.NodespacesChanged, diff.NodespacesDeleted = split(entityNodespace)
	return diff, nil
}
