package flagstore

import (
	"context"
	"sort"

	"github.com/botpass/botpass/agentmod/helpers"
	"github.com/puzpuzpuz/xsync/v3"
)

type MemFlagStore struct {
	data *xsync.MapOf[string, []string]
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		data: xsync.NewMapOf[string, []string](),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, actorID string) ([]string, error) {
	v, ok := s.data.Load(actorID)
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, v...), nil
}

func (s *MemFlagStore) Add(ctx context.Context, actorID string, flags []string) error {
	s.data.Compute(actorID, func(old []string, loaded bool) ([]string, bool) {
		v := append(append([]string{}, old...), flags...)
		v = helpers.DedupeStrings(v)
		sort.Strings(v)
		return v, false
	})
	return nil
}

// does not error if flags not in set
func (s *MemFlagStore) Remove(ctx context.Context, actorID string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(flags))
	for _, f := range flags {
		drop[f] = true
	}
	s.data.Compute(actorID, func(old []string, loaded bool) ([]string, bool) {
		out := []string{}
		for _, f := range old {
			if !drop[f] {
				out = append(out, f)
			}
		}
		return out, len(out) == 0
	})
	return nil
}
