package studio

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"photostudio/internal/domain"
)

const (
	defaultSessionTTL    = 2 * time.Hour
	cacheCleanupInterval = 10 * time.Minute
)

// StoreOptions configures a Store.
type StoreOptions struct {
	Session Options
	// SessionTTL is the idle time after which a session is dropped.
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

// Store keeps sessions in memory with sliding idle expiry, plus the saved
// presets shared by every session.
type Store struct {
	opts     Options
	ttl      time.Duration
	sessions *cache.Cache
	presets  *cache.Cache
	logger   zerolog.Logger
}

// NewStore constructs a Store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Session.Codec == nil {
		return nil, errors.New("studio: codec is required")
	}
	if opts.Session.Generator == nil {
		return nil, errors.New("studio: generator is required")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	st := &Store{
		opts:     opts.Session,
		ttl:      ttl,
		sessions: cache.New(ttl, cacheCleanupInterval),
		presets:  cache.New(cache.NoExpiration, 0),
		logger:   opts.Logger,
	}
	st.sessions.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Reset()
		}
		st.logger.Debug().Str("session_id", id).Msg("studio: session expired")
	})
	return st, nil
}

// Create starts a new empty session.
func (st *Store) Create() (*Session, error) {
	s, err := NewSession(uuid.NewString(), st.opts)
	if err != nil {
		return nil, err
	}
	st.sessions.Set(s.ID, s, cache.DefaultExpiration)
	st.logger.Info().Str("session_id", s.ID).Msg("studio: session created")
	return s, nil
}

// Get returns the session and extends its idle deadline.
func (st *Store) Get(id string) (*Session, error) {
	v, ok := st.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	st.sessions.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

// Delete drops a session.
func (st *Store) Delete(id string) {
	st.sessions.Delete(id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	return st.sessions.ItemCount()
}

// SavePreset captures part of a session as a new preset.
func (st *Store) SavePreset(sessionID, name string, kind PresetKind) (Preset, error) {
	s, err := st.Get(sessionID)
	if err != nil {
		return Preset{}, err
	}
	p, err := s.Capture(uuid.NewString(), name, kind)
	if err != nil {
		return Preset{}, err
	}
	st.presets.Set(p.ID, p, cache.NoExpiration)
	st.logger.Info().Str("preset_id", p.ID).Str("kind", string(kind)).Msg("studio: preset saved")
	return p, nil
}

// Preset looks up a saved preset.
func (st *Store) Preset(id string) (Preset, error) {
	v, ok := st.presets.Get(id)
	if !ok {
		return Preset{}, domain.ErrPresetNotFound
	}
	p, ok := v.(Preset)
	if !ok {
		return Preset{}, domain.ErrPresetNotFound
	}
	return p, nil
}

// Presets lists saved presets, oldest first, optionally filtered by kind.
func (st *Store) Presets(kind PresetKind) []Preset {
	items := st.presets.Items()
	out := make([]Preset, 0, len(items))
	for _, item := range items {
		p, ok := item.Object.(Preset)
		if !ok || (kind != "" && p.Kind != kind) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DeletePreset removes a preset.
func (st *Store) DeletePreset(id string) error {
	if _, ok := st.presets.Get(id); !ok {
		return domain.ErrPresetNotFound
	}
	st.presets.Delete(id)
	return nil
}

// ApplyPreset loads a saved preset into a session.
func (st *Store) ApplyPreset(sessionID, presetID string) (*Session, error) {
	s, err := st.Get(sessionID)
	if err != nil {
		return nil, err
	}
	p, err := st.Preset(presetID)
	if err != nil {
		return nil, err
	}
	s.Apply(p)
	return s, nil
}
