// Package exposure reports which variant a subject was served, so that
// experiment analysis can attribute outcomes. Exposures are deduplicated per
// identity before they reach a Sink.
package exposure

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

// EventType is the analytics event name exposures are recorded under.
const EventType = "$exposure"

// Exposure records that an identity was served a variant of a flag.
type Exposure struct {
	FlagKey string `json:"flag_key"`

	// Variant is empty when the subject received the flag's default variant.
	Variant string `json:"variant,omitempty"`

	ExperimentKey string                      `json:"experiment_key,omitempty"`
	Metadata      map[string]evaluation.Value `json:"metadata,omitempty"`

	Identity  Identity  `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// Identity is the subject an exposure is attributed to.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// IsZero reports whether neither id is known.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.DeviceID == ""
}

// IdentityOf reads user_id and device_id from an evaluation context.
func IdentityOf(ctx evaluation.Context) Identity {
	return Identity{
		UserID:   stringAttr(ctx, "user_id"),
		DeviceID: stringAttr(ctx, "device_id"),
	}
}

func stringAttr(ctx evaluation.Context, key string) string {
	v, ok := ctx.Select(key)
	if !ok || v.IsNull() {
		return ""
	}
	return v.String()
}

// New builds the exposure for a served variant. A variant flagged with
// metadata "default": true is the fallback and is reported without a
// variant key.
func New(flagKey string, v evaluation.Variant, id Identity) Exposure {
	e := Exposure{
		FlagKey:       flagKey,
		Variant:       v.Key,
		ExperimentKey: v.ExperimentKey(),
		Metadata:      v.Metadata,
		Identity:      id,
		Timestamp:     time.Now().UTC(),
	}
	if isDefault, ok := v.Metadata["default"].AsBool(); ok && isDefault {
		e.Variant = ""
	}
	return e
}

// FromResults builds one exposure per evaluated flag, ordered by flag key.
func FromResults(results evaluation.Results, id Identity) []Exposure {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Exposure, 0, len(keys))
	for _, k := range keys {
		out = append(out, New(k, results[k], id))
	}
	return out
}

// Sink delivers exposures to an analytics pipeline.
type Sink interface {
	Send(ctx context.Context, exposures []Exposure) error
}

// key identifies an exposure for deduplication. Metadata takes part in
// canonical JSON form (sorted keys), so a variant whose metadata changed is
// exposed again.
func (e Exposure) key() string {
	k := e.FlagKey + "\x00" + e.Variant + "\x00" + e.ExperimentKey
	if len(e.Metadata) == 0 {
		return k
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return k
	}
	return k + "\x00" + string(meta)
}
