package tracker

import (
	"context"
	"sort"
	"sync"

	"main/internal/coc"
	"main/internal/errors"
	"main/internal/event"
	"main/internal/store"
)

// Registry holds one ClanRunner per tracked clan so clans can be started and
// stopped in isolation.
type Registry struct {
	mu      sync.Mutex
	api     *coc.Client
	kv      store.KV
	sink    event.Sink
	cfg     RunnerConfig
	runners map[string]*ClanRunner
}

// NewRegistry builds an empty registry over shared collaborators.
func NewRegistry(api *coc.Client, kv store.KV, sink event.Sink, cfg RunnerConfig) *Registry {
	return &Registry{
		api:     api,
		kv:      kv,
		sink:    sink,
		cfg:     cfg,
		runners: make(map[string]*ClanRunner),
	}
}

// Track starts tracking a clan. Tracking the same tag twice is an error.
func (r *Registry) Track(ctx context.Context, clan Clan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clan.Tag == "" {
		return errors.New("clan tag is empty")
	}
	if _, ok := r.runners[clan.Tag]; ok {
		return errors.Wrapf(errors.New("clan already tracked"), "tag: %s", clan.Tag)
	}

	runner := NewClanRunner(ctx, clan, r.api, r.kv, r.sink, r.cfg)
	runner.Start(ctx)
	r.runners[clan.Tag] = runner
	return nil
}

// Stop halts one clan's loops and removes it. Reports whether it was tracked.
func (r *Registry) Stop(tag string) bool {
	r.mu.Lock()
	runner, ok := r.runners[tag]
	delete(r.runners, tag)
	r.mu.Unlock()

	if ok {
		runner.Stop()
	}
	return ok
}

// StopAll halts every clan's loops.
func (r *Registry) StopAll() {
	r.mu.Lock()
	runners := make([]*ClanRunner, 0, len(r.runners))
	for tag, runner := range r.runners {
		runners = append(runners, runner)
		delete(r.runners, tag)
	}
	r.mu.Unlock()

	for _, runner := range runners {
		runner.Stop()
	}
}

// Clans lists the tracked clans sorted by tag.
func (r *Registry) Clans() []Clan {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Clan, 0, len(r.runners))
	for _, runner := range r.runners {
		out = append(out, runner.clan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
