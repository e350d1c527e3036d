package theme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/opstate"
)

// ErrUnknownTheme is returned by Set for a key outside the catalog.
var ErrUnknownTheme = errors.New("unknown theme")

const (
	stateNamespace = "preferences"
	stateKey       = "taskflow-theme"
)

// Service tracks the active theme. The choice is persisted in the
// operational state store when one is configured and change
// notifications are broadcast on the event bus.
type Service struct {
	catalog Catalog
	state   *opstate.Store
	bus     *events.Bus
	logger  *slog.Logger

	mu      sync.RWMutex
	current Entry
}

// NewService loads the persisted theme, falling back to defaultKey when
// nothing (or something no longer in the catalog) is stored. state and
// bus may be nil.
func NewService(ctx context.Context, catalog Catalog, defaultKey string, state *opstate.Store, bus *events.Bus, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	initial, ok := catalog.Lookup(defaultKey)
	if !ok {
		return nil, fmt.Errorf("default theme %q: %w", defaultKey, ErrUnknownTheme)
	}

	if state != nil {
		stored, err := state.Get(ctx, stateNamespace, stateKey)
		if err != nil {
			return nil, fmt.Errorf("load theme: %w", err)
		}
		if e, ok := catalog.Lookup(stored); ok {
			initial = e
		} else if stored != "" {
			logger.Warn("stored theme not in catalog, using default",
				"stored", stored, "default", defaultKey)
		}
	}

	return &Service{
		catalog: catalog,
		state:   state,
		bus:     bus,
		logger:  logger,
		current: initial,
	}, nil
}

// Catalog returns the theme catalog.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Current returns the active theme.
func (s *Service) Current() Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set activates the theme with the given key and persists it.
func (s *Service) Set(ctx context.Context, key string) error {
	e, ok := s.catalog.Lookup(key)
	if !ok {
		return fmt.Errorf("set theme %q: %w", key, ErrUnknownTheme)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		if err := s.state.Set(ctx, stateNamespace, stateKey, e.Key); err != nil {
			return fmt.Errorf("persist theme: %w", err)
		}
	}
	previous := s.current
	s.current = e

	s.logger.Info("theme changed", "theme", e.Key, "previous", previous.Key)
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceTheme,
		Kind:      events.KindThemeChanged,
		Data:      map[string]any{"key": e.Key, "previous": previous.Key},
	})
	return nil
}

// Subscribe returns a channel of theme keys, delivered each time the
// active theme changes, and a cancel function that releases it. The
// channel is closed after cancel.
func (s *Service) Subscribe(buf int) (<-chan string, func()) {
	out := make(chan string, buf)
	if s.bus == nil {
		var once sync.Once
		return out, func() { once.Do(func() { close(out) }) }
	}

	ch := s.bus.Subscribe(buf)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for evt := range ch {
			if evt.Source != events.SourceTheme || evt.Kind != events.KindThemeChanged {
				continue
			}
			key, _ := evt.Data["key"].(string)
			select {
			case out <- key:
			default:
			}
		}
	}()
	return out, func() {
		s.bus.Unsubscribe(ch)
		<-done
	}
}
