package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"doc_summarizer/internal/checkpoint"
	"doc_summarizer/pkg/logger"
)

// Save writes the current snapshot to the store. Without a store it is a no-op.
func (s *Summarizer) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&s.state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.store.Save(ctx, data); err != nil {
		s.metrics.Emit(logger.MetricsEvent{
			LogType: logger.LTCheckpointSave,
			Event:   logger.EventPhaseError,
			RunID:   s.state.RunID,
			Error:   err.Error(),
			Detail:  s.store.Location(),
		})
		return fmt.Errorf("save checkpoint %s: %w", s.store.Location(), err)
	}
	return nil
}

// ReadSnapshot loads and decodes the snapshot held by store.
func ReadSnapshot(ctx context.Context, store checkpoint.Store) (*Snapshot, error) {
	data, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data, store.Location())
}

// DecodeSnapshot parses a snapshot blob. location only names the source in errors.
func DecodeSnapshot(data []byte, location string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", location, err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("checkpoint %s has version %d, newest supported is %d", location, snap.Version, SnapshotVersion)
	}
	return &snap, nil
}

func cloneSnapshot(src *Snapshot) Snapshot {
	data, err := json.Marshal(src)
	if err != nil {
		return *src
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return *src
	}
	return out
}
