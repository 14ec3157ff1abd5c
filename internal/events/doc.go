// Package events publishes accepted-batch notifications over MQTT.
package events
