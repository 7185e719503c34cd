// Package mqttbridge exposes MQTT topic pairs as gateway devices.
//
// Each configured device maps a state topic and an optional command topic
// onto a single property: inbound state payloads become locally observed
// values, and gateway-initiated writes are published to the command topic.
// A device with no command topic is read-only.
//
// The broker connection is owned by the paho client, which reconnects on
// its own; bridged devices report connected/disconnected as the broker
// link comes and goes.
package mqttbridge
