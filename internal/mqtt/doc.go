// Package mqtt publishes TaskBuddy's operator notifications and
// activity events to an MQTT broker, and advertises a small set of
// Home Assistant sensors (uptime, version, active chat sessions, turns
// handled, pipeline faults) with availability tracking.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes retained discovery config payloads and a
// birth message ("online") to the availability topic. A will message
// moves the availability topic to "offline" on unexpected disconnects.
//
// Topics, relative to the configured base topic:
//
//	availability              online / offline (retained)
//	<sensor>/state            sensor values (retained)
//	notifications             JSON notifications
//	events/<source>/<kind>    JSON bus events, rate limited
package mqtt
