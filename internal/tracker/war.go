package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/coc"
	"main/internal/event"
	"main/internal/store"
)

// warBaseline is the persisted diff state for one war.
type warBaseline struct {
	WarID  string         `json:"warId"`
	Counts map[string]int `json:"counts"`
}

// WarTracker emits one event per newly appended attack while a war is in
// progress. The baseline is keyed by war identity so counts from one war are
// never attributed to the next, even when both involve the same roster.
type WarTracker struct {
	clanTag  string
	kv       store.KV
	sink     event.Sink
	baseline warBaseline
}

// NewWarTracker restores any persisted baseline for the clan.
func NewWarTracker(ctx context.Context, clanTag string, kv store.KV, sink event.Sink) *WarTracker {
	w := &WarTracker{
		clanTag:  clanTag,
		kv:       kv,
		sink:     sink,
		baseline: warBaseline{Counts: make(map[string]int)},
	}

	if kv == nil {
		return w
	}
	blob, found, err := kv.Load(ctx, store.KeyPrefixWar+clanTag)
	if err != nil {
		logs.Warnf("load war baseline for %s failed, err: %+v", clanTag, err)
		return w
	}
	if found {
		var saved warBaseline
		if err := json.Unmarshal(blob, &saved); err != nil {
			logs.Warnf("war baseline for %s is corrupt, err: %+v", clanTag, err)
			return w
		}
		if saved.Counts == nil {
			saved.Counts = make(map[string]int)
		}
		w.baseline = saved
	}
	return w
}

// Apply diffs one war poll. Outside the in-progress state the tracker is
// idle: no diff, no baseline mutation.
func (w *WarTracker) Apply(ctx context.Context, war *coc.War) {
	if !war.InProgress() {
		return
	}

	if id := war.Identity(); id != w.baseline.WarID {
		w.baseline = warBaseline{WarID: id, Counts: make(map[string]int)}
	}

	now := time.Now()
	var changed bool
	for _, member := range war.Clan.Members {
		if member.Tag == "" {
			continue
		}
		base := w.baseline.Counts[member.Tag]
		if len(member.Attacks) <= base {
			continue
		}
		// attack lists are append-only: everything past the baseline count
		// is new, emitted in list order
		for i, atk := range member.Attacks[base:] {
			w.sink.Emit(event.Event{
				Kind:    event.KindNewWarAttack,
				ClanTag: w.clanTag,
				At:      now,
				WarAttack: &event.WarAttack{
					AttackerTag:  member.Tag,
					AttackerName: member.Name,
					DefenderTag:  atk.DefenderTag,
					Stars:        atk.Stars,
					Destruction:  atk.DestructionPercentage,
					AttackNumber: base + i + 1,
				},
			})
		}
		w.baseline.Counts[member.Tag] = len(member.Attacks)
		changed = true
	}

	if changed {
		w.persist(ctx)
	}
}

func (w *WarTracker) persist(ctx context.Context) {
	if w.kv == nil {
		return
	}
	blob, err := json.Marshal(w.baseline)
	if err != nil {
		logs.Errorf("marshal war baseline for %s, err: %+v", w.clanTag, err)
		return
	}
	if err := w.kv.Save(ctx, store.KeyPrefixWar+w.clanTag, blob); err != nil {
		logs.Warnf("persist war baseline for %s failed, err: %+v", w.clanTag, err)
	}
}
