package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"trendpulse/internal/domain/trend"
)

// Trend history is a bounded ring buffer of snapshots per keyword,
// stored as one L3 entry. Insertion keeps chronological order: a
// late-arriving backfill is re-sorted into place rather than rejected,
// then the oldest entries are dropped past the cap.

// AppendHistory adds a snapshot to a keyword's history buffer. The
// read-modify-write is serialized per manager by historyMu.
func (m *Manager) AppendHistory(keywordID string, snapshot trend.TrendMetrics) error {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()

	history, err := m.History(keywordID)
	if err != nil {
		return err
	}

	history = append(history, snapshot)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CalculatedAt.Before(history[j].CalculatedAt)
	})
	if len(history) > m.cfg.HistoryLimit {
		history = history[len(history)-m.cfg.HistoryLimit:]
	}

	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("error marshaling history: %w", err)
	}
	m.Set(HistoryKey(keywordID), payload, TierL3)
	return nil
}

// History returns a keyword's snapshots in chronological order. An
// absent or expired buffer reads as empty, never as an error.
func (m *Manager) History(keywordID string) ([]trend.TrendMetrics, error) {
	payload, ok := m.Get(HistoryKey(keywordID))
	if !ok {
		return nil, nil
	}
	var history []trend.TrendMetrics
	if err := json.Unmarshal(payload, &history); err != nil {
		return nil, fmt.Errorf("error unmarshaling history: %w", err)
	}
	return history, nil
}
