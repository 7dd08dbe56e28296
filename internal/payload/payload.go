// Package payload models the JSON unit of work submitted to and returned
// from a workflow execution.
package payload

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Payload is a JSON-shaped unit of work.
type Payload map[string]any

// FromBytes parses a payload from serialized JSON.
func FromBytes(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return p, nil
}

// FromReader parses a payload from a reader.
func FromReader(r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return FromBytes(data)
}

// Bytes serializes the payload.
func (p Payload) Bytes() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return data, nil
}

// ID returns the payload's workflow identifier, or empty when unset.
func (p Payload) ID() string {
	id, _ := p["id"].(string)
	return id
}

// SetID assigns the payload's workflow identifier.
func (p Payload) SetID(id string) {
	p["id"] = id
}

// EnsureID derives and assigns the canonical identifier
// {collections}/workflow-{workflow}/{itemids} when none is set.
func (p Payload) EnsureID() (string, error) {
	if id := p.ID(); id != "" {
		return id, nil
	}

	workflow := p.workflow()
	if workflow == "" {
		return "", fmt.Errorf("payload has no id and no process workflow to derive one from")
	}

	collections, itemIDs := p.featureKeys()
	id := fmt.Sprintf("%s/workflow-%s/%s",
		strings.Join(collections, ","),
		workflow,
		strings.Join(itemIDs, "/"),
	)
	p.SetID(id)
	return id, nil
}

// ForceID appends a uniqueness suffix derived from now, so a forced re-run
// does not collide with a prior terminal record for the same identifier.
func (p Payload) ForceID(now time.Time) string {
	id := fmt.Sprintf("%s_force-%d", p.ID(), now.UnixNano())
	p.SetID(id)
	return id
}

func (p Payload) workflow() string {
	process, _ := p["process"].(map[string]any)
	workflow, _ := process["workflow"].(string)
	return workflow
}

// featureKeys collects the sorted distinct collections and sorted item ids
// from the payload's feature list.
func (p Payload) featureKeys() (collections, itemIDs []string) {
	features, _ := p["features"].([]any)

	seen := map[string]bool{}
	for _, f := range features {
		feature, _ := f.(map[string]any)
		if id, _ := feature["id"].(string); id != "" {
			itemIDs = append(itemIDs, id)
		}
		if collection, _ := feature["collection"].(string); collection != "" && !seen[collection] {
			seen[collection] = true
			collections = append(collections, collection)
		}
	}

	sort.Strings(collections)
	sort.Strings(itemIDs)
	return collections, itemIDs
}
