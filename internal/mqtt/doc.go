// Package mqtt publishes and subscribes to topics on an MQTT broker
// with automatic reconnection, using Eclipse Paho v2's [autopaho]
// package for connection management. A will message transitions the
// availability topic to "offline" on unexpected disconnects; the
// Publisher republishes "online" and resubscribes on every (re-)connect.
package mqtt
