package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/config"
	"github.com/nugget/taskbuddy/internal/events"
)

// StatsSource provides runtime data for sensor state publishing. The
// adapter is wired in main to keep this package off the API server.
type StatsSource interface {
	// Uptime returns the process uptime.
	Uptime() time.Duration
	// Version returns the software version string.
	Version() string
	// ActiveSessions returns the number of open chat sessions.
	ActiveSessions() int
	// Stats returns the interpreter turn counters.
	Stats() assistant.Stats
}

// conn is the part of the autopaho connection manager the publisher
// uses.
type conn interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

var errNotConnected = errors.New("mqtt publisher not connected")

// Publisher manages the broker connection, forwards bus events and
// notifications, and publishes sensor state on an interval. It
// implements assistant.Notifier.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	stats      StatsSource
	bus        *events.Bus
	limiter    *rateLimiter
	logger     *slog.Logger

	mu   sync.RWMutex
	cm   *autopaho.ConnectionManager
	conn conn
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin. stats and bus may be nil.
func New(cfg config.MQTTConfig, instanceID string, stats StatsSource, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := int64(cfg.EventsPerMinute)
	if perMinute <= 0 {
		perMinute = 120
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		stats:      stats,
		bus:        bus,
		limiter:    newRateLimiter(perMinute, time.Minute, logger),
		logger:     logger,
	}
}

// Start connects to the broker and runs until ctx is cancelled. On
// every (re-)connect it publishes discovery configs and a birth
// message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "taskbuddy-" + p.instanceID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.conn = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	var wg sync.WaitGroup
	if p.bus != nil {
		ch := p.bus.Subscribe(64)
		defer p.bus.Unsubscribe(ch)

		wg.Add(2)
		go func() {
			defer wg.Done()
			p.limiter.start(ctx)
		}()
		go func() {
			defer wg.Done()
			p.forwardEvents(ctx, ch)
		}()
	}

	p.runLoop(ctx)
	wg.Wait()
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return errNotConnected
	}
	return cm.AwaitConnection(ctx)
}

// notificationPayload is the JSON body published for a notification.
type notificationPayload struct {
	assistant.Notification
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify publishes n to the notifications topic. Notifications raised
// before the broker connects are logged and dropped.
func (p *Publisher) Notify(ctx context.Context, n assistant.Notification) {
	payload, err := json.Marshal(notificationPayload{
		Notification: n,
		Instance:     p.instanceID,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("mqtt marshal notification", "error", err)
		return
	}
	if err := p.publish(ctx, p.notificationsTopic(), payload, 1, false); err != nil {
		p.logger.Warn("mqtt notification publish failed", "title", n.Title, "error", err)
	}
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	p.mu.RLock()
	c := p.conn
	p.mu.RUnlock()
	if c == nil {
		return errNotConnected
	}
	_, err := c.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	})
	return err
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.BaseTopic
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) notificationsTopic() string {
	return p.baseTopic() + "/notifications"
}

func (p *Publisher) eventTopic(e events.Event) string {
	return p.baseTopic() + "/events/" + e.Source + "/" + e.Kind
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entitySuffix string
	config       SensorConfig
}

func (p *Publisher) sensor(entity, name, icon string) sensorDef {
	return sensorDef{
		entitySuffix: entity,
		config: SensorConfig{
			Name:              name,
			ObjectID:          entity,
			HasEntityName:     true,
			UniqueID:          p.instanceID + "_" + entity,
			StateTopic:        p.stateTopic(entity),
			AvailabilityTopic: p.availabilityTopic(),
			Device:            p.device,
			Icon:              icon,
		},
	}
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	uptime := p.sensor("uptime", "Uptime", "mdi:clock-outline")
	uptime.config.EntityCategory = "diagnostic"

	version := p.sensor("version", "Version", "mdi:tag")
	version.config.EntityCategory = "diagnostic"

	sessions := p.sensor("active_sessions", "Active Sessions", "mdi:chat-processing")
	sessions.config.StateClass = "measurement"

	turns := p.sensor("turns_handled", "Turns Handled", "mdi:counter")
	turns.config.StateClass = "total_increasing"
	turns.config.UnitOfMeasurement = "turns"

	faults := p.sensor("pipeline_faults", "Pipeline Faults", "mdi:alert-circle-outline")
	faults.config.StateClass = "total_increasing"
	faults.config.EntityCategory = "diagnostic"

	return []sensorDef{uptime, version, sessions, turns, faults}
}

func (p *Publisher) publishDiscovery(ctx context.Context, c conn) {
	if p.cfg.DiscoveryPrefix == "" {
		return
	}
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := c.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, c conn, status string) {
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Periodic state loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	interval := time.Duration(p.cfg.PublishIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

func (p *Publisher) states() map[string]string {
	if p.stats == nil {
		return nil
	}
	s := p.stats.Stats()
	return map[string]string{
		"uptime":          p.stats.Uptime().Truncate(time.Second).String(),
		"version":         p.stats.Version(),
		"active_sessions": strconv.Itoa(p.stats.ActiveSessions()),
		"turns_handled":   strconv.FormatInt(s.TotalTurns, 10),
		"pipeline_faults": strconv.FormatInt(s.Faults, 10),
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	states := p.states()
	for entity, value := range states {
		if err := p.publish(ctx, p.stateTopic(entity), []byte(value), 0, true); err != nil {
			p.logger.Debug("mqtt state publish failed",
				"entity", entity, "error", err)
		}
	}
	p.logger.Debug("mqtt sensor states published", "entities", len(states))
}
