package tracker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/coc"
	"main/internal/event"
	"main/internal/store"
)

// captureSink records emitted events for assertions.
type captureSink struct {
	events []event.Event
}

func (s *captureSink) Emit(e event.Event) {
	s.events = append(s.events, e)
}

func (s *captureSink) kinds() []event.Kind {
	out := make([]event.Kind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func roster(tags ...string) []coc.ClanMember {
	out := make([]coc.ClanMember, 0, len(tags))
	for _, tag := range tags {
		out = append(out, coc.ClanMember{Tag: tag, Name: "player-" + tag})
	}
	return out
}

func persistedTags(t *testing.T, kv store.KV, clanTag string) []string {
	t.Helper()
	blob, found, err := kv.Load(context.Background(), store.KeyPrefixMembers+clanTag)
	require.NoError(t, err)
	if !found {
		return nil
	}
	var tags []string
	require.NoError(t, json.Unmarshal(blob, &tags))
	return tags
}

func newFileKV(t *testing.T) store.KV {
	t.Helper()
	kv, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return kv
}

func TestBootstrapAdoptsSilently(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B", "#C"))

	assert.Empty(t, sink.events, "bootstrap must not emit joins")
	assert.Equal(t, []string{"#A", "#B", "#C"}, persistedTags(t, kv, "#CLAN"))
}

func TestBootstrapSurvivesEmptyFirstPoll(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: false}, kv, sink)

	// a transient empty first poll must not consume the silent adoption
	m.Apply(ctx, roster())
	require.Empty(t, sink.events)

	m.Apply(ctx, roster("#A", "#B", "#C"))
	assert.Empty(t, sink.events, "first non-empty snapshot still adopts silently")
	assert.Equal(t, []string{"#A", "#B", "#C"}, persistedTags(t, kv, "#CLAN"))
}

func TestBootstrapOnlyOncePerProcess(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 1, SkipEmpty: false}, kv, sink)
	m.Apply(ctx, roster("#A"))
	require.Empty(t, sink.events)

	// the sole member genuinely leaves; the set is empty again
	m.Apply(ctx, roster())
	require.Equal(t, []event.Kind{event.KindLeave}, sink.kinds())
	sink.events = nil

	// a new member now appearing must be a Join, not a second silent adoption
	m.Apply(ctx, roster("#B"))
	assert.Equal(t, []event.Kind{event.KindJoin}, sink.kinds())
}

func TestJoinEmitted(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B"))
	require.Empty(t, sink.events)

	m.Apply(ctx, roster("#A", "#B", "#C"))
	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, event.KindJoin, e.Kind)
	assert.Equal(t, "#C", e.Join.Tag)
	assert.Equal(t, "player-#C", e.Join.Name)
	assert.Equal(t, []string{"#A", "#B", "#C"}, persistedTags(t, kv, "#CLAN"))
}

func TestLeaveDebounce(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B"))

	// one missing poll is not enough
	m.Apply(ctx, roster("#A"))
	assert.Empty(t, sink.events)

	// reappearance resets the counter entirely
	m.Apply(ctx, roster("#A", "#B"))
	m.Apply(ctx, roster("#A"))
	assert.Empty(t, sink.events)

	// two consecutive missing polls confirm the leave
	m.Apply(ctx, roster("#A"))
	require.Len(t, sink.events, 1)
	assert.Equal(t, event.KindLeave, sink.events[0].Kind)
	assert.Equal(t, "#B", sink.events[0].Leave.Tag)
	assert.Equal(t, []string{"#A"}, persistedTags(t, kv, "#CLAN"))

	// no duplicate leave afterwards
	m.Apply(ctx, roster("#A"))
	assert.Len(t, sink.events, 1)
}

func TestSameTickRejoinIsNotALeave(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 1, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B"))

	m.Apply(ctx, roster("#A"))
	require.Equal(t, []event.Kind{event.KindLeave}, sink.kinds())
	sink.events = nil

	// rejoin: the join clears the miss counter before leave evaluation
	m.Apply(ctx, roster("#A", "#B"))
	assert.Equal(t, []event.Kind{event.KindJoin}, sink.kinds())
}

func TestEmptySnapshotGuard(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 1, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B"))
	before := persistedTags(t, kv, "#CLAN")

	m.Apply(ctx, roster())

	assert.Empty(t, sink.events)
	assert.Equal(t, before, persistedTags(t, kv, "#CLAN"))
	assert.Equal(t, []string{"#A", "#B"}, m.Known())
}

func TestPersistedSetSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)
	sink := &captureSink{}

	m := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: true}, kv, sink)
	m.Apply(ctx, roster("#A", "#B"))

	// a fresh instance over the same store must not re-bootstrap
	sink2 := &captureSink{}
	m2 := NewMembership(ctx, "#CLAN", MembershipConfig{DebounceThreshold: 2, SkipEmpty: true}, kv, sink2)
	assert.Equal(t, []string{"#A", "#B"}, m2.Known())

	m2.Apply(ctx, roster("#A", "#B", "#C"))
	assert.Equal(t, []event.Kind{event.KindJoin}, sink2.kinds())
}
