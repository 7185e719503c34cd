// Package telemetry records property observations and device events to
// InfluxDB for dashboards and retrospective debugging.
//
// Recording is fire-and-forget: points are batched by the client and
// written in the background, so the protocol path never blocks on the
// telemetry store being slow or down.
package telemetry
