package models

import "time"

// MqttProfile is a named ACL: topic patterns a client may publish or
// subscribe to. Enforcement happens in the broker, not here.
type MqttProfile struct {
	ID             string   `json:"id"`
	AllowPublish   []string `json:"allow_publish"`
	AllowSubscribe []string `json:"allow_subscribe"`
}

type MqttConnected struct {
	RemoteAddr     string    `json:"remoteAddr"`
	ConnectedAt    time.Time `json:"connectedAt"`
	ConnectionType string    `json:"connectionType"`
}

type MqttDisconnected struct {
	RemoteAddr     string    `json:"remoteAddr"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
}

// MqttClient is a broker credential bound to a profile. Values are free-form
// substitution variables for topic patterns.
type MqttClient struct {
	ID           string            `json:"id"`
	ProfileID    string            `json:"profile_id"`
	Password     string            `json:"password"`
	Values       map[string]string `json:"values"`
	Connected    *MqttConnected    `json:"connected,omitempty"`
	Disconnected *MqttDisconnected `json:"disconnected,omitempty"`
}
