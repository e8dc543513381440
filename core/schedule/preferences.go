package schedule

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/flexhaus/bems/core/model"
	"github.com/flexhaus/bems/core/store"
)

// ErrNoPreference is returned when a device has no stored schedule for the
// requested preference type.
var ErrNoPreference = errors.New("schedule: no preference document")

// PreferenceSource supplies weekly preference documents and a version that
// advances whenever the stored document changes. The monitor uses the
// version to invalidate cached schedulers.
type PreferenceSource interface {
	Preference(ctx context.Context, deviceID string, pref model.PreferenceType) (model.Schedule, uint64, error)
}

// KVPreferences reads preference documents from the key/value store, where
// they are seeded externally as YAML under "preferences:<device>:<type>".
// The document version is a hash of its bytes, so rewrites with identical
// content do not invalidate cached schedulers.
type KVPreferences struct {
	kv store.KV
}

// NewKVPreferences wraps a KV store as a PreferenceSource.
func NewKVPreferences(kv store.KV) *KVPreferences {
	return &KVPreferences{kv: kv}
}

// PreferenceKey derives the storage key for a device's preference document.
func PreferenceKey(deviceID string, pref model.PreferenceType) string {
	return fmt.Sprintf("preferences:%s:%s", deviceID, pref)
}

// Preference loads and decodes the schedule document for a device.
func (p *KVPreferences) Preference(ctx context.Context, deviceID string, pref model.PreferenceType) (model.Schedule, uint64, error) {
	raw, err := p.kv.Get(ctx, PreferenceKey(deviceID, pref))
	if errors.Is(err, store.ErrNotFound) {
		return model.Schedule{}, 0, ErrNoPreference
	}
	if err != nil {
		return model.Schedule{}, 0, fmt.Errorf("read preference %s/%s: %w", deviceID, pref, err)
	}
	sch, err := DecodeDocument(string(pref), raw)
	if err != nil {
		return model.Schedule{}, 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return sch, h.Sum64(), nil
}

// Version returns the current document version without decoding it, for
// cheap cache invalidation checks.
func (p *KVPreferences) Version(ctx context.Context, deviceID string, pref model.PreferenceType) (uint64, error) {
	raw, err := p.kv.Get(ctx, PreferenceKey(deviceID, pref))
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrNoPreference
	}
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64(), nil
}
