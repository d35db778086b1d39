package config

import "time"

// Config is the root configuration for Overseer.
type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Events      EventsConfig      `json:"events"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	History     HistoryConfig     `json:"history"`
	Policy      PolicyConfig      `json:"policy"`
	Heartbeat   HeartbeatConfig   `json:"heartbeat"`
	Executor    ExecutorConfig    `json:"executor"`
	Log         LogConfig         `json:"log"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// CoordinatorConfig holds task coordination settings.
type CoordinatorConfig struct {
	SecurityMode      string   `json:"security_mode"`      // "strict" or "permissive"
	ApprovalTTL       Duration `json:"approval_ttl"`       // 0 = approvals never expire
	ReconcileSchedule string   `json:"reconcile_schedule"` // cron spec, e.g. "@every 3s"
}

// HistoryConfig holds the action history store settings.
type HistoryConfig struct {
	Path string `json:"path"` // sqlite file path; "memory" keeps history in-process only
}

// PolicyConfig holds risk policy settings.
type PolicyConfig struct {
	Path string `json:"path"` // YAML policy file; empty = builtin table only
}

// HeartbeatConfig holds liveness file settings.
type HeartbeatConfig struct {
	Enabled  bool     `json:"enabled"`
	Path     string   `json:"path"` // default: $OVERSEER_PATH/heartbeat.json
	Interval Duration `json:"interval"`
}

// ExecutorConfig points at the agent executor service.
type ExecutorConfig struct {
	BaseURL string   `json:"base_url"`
	Timeout Duration `json:"timeout,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
