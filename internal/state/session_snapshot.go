package state

import (
	"context"
	"encoding/json"
	"strings"
)

const SessionSnapshotKey = "session:last_snapshot"

// SessionSnapshot records the last successful bootstrap.
type SessionSnapshot struct {
	BaseURL      string `json:"base_url"`
	L1Address    string `json:"l1_address"`
	AccountIndex int64  `json:"account_index"`
	APIKeyIndex  int    `json:"api_key_index"`
	MarketCount  int    `json:"market_count"`
	ReadyAtMS    int64  `json:"ready_at_ms"`
}

func LoadSessionSnapshot(ctx context.Context, store Store) (SessionSnapshot, bool, error) {
	if store == nil {
		return SessionSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, SessionSnapshotKey)
	if err != nil {
		return SessionSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionSnapshot{}, false, nil
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return SessionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveSessionSnapshot(ctx context.Context, store Store, snapshot SessionSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionSnapshotKey, string(payload))
}
