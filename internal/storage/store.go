package storage

import (
	"context"

	"nodenet/internal/model"
)

// Store defines persistence operations for node net snapshots.
type Store interface {
	Init(ctx context.Context) error
	SaveNodenet(ctx context.Context, record model.NodenetRecord) error
	GetNodenet(ctx context.Context, uid string) (model.NodenetRecord, bool, error)
	ListNodenets(ctx context.Context) ([]Summary, error)
	DeleteNodenet(ctx context.Context, uid string) error
}

// Summary describes a stored node net without decoding its graph.
type Summary struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Step  int    `json:"step"`
	Nodes int    `json:"nodes"`
	Links int    `json:"links"`
}

func summarize(record model.NodenetRecord) Summary {
	return Summary{
		UID:   record.UID,
		Name:  record.Name,
		Owner: record.Owner,
		Step:  record.Step,
		Nodes: len(record.Nodes),
		Links: len(record.Links),
	}
}
