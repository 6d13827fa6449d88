// Package config is the relay manifest: named queues plus the loops and
// helper processes that move messages between them.
package config

// Config is the top-level manifest.
type Config struct {
	Log         Log          `toml:"log" yaml:"log"`
	Metrics     Metrics      `toml:"metrics" yaml:"metrics"`
	Transport   Transport    `toml:"transport" yaml:"transport"`
	LockFile    string       `toml:"lock_file" yaml:"lock_file"`
	Queues      []Queue      `toml:"queue" yaml:"queue"`
	Bridges     []Bridge     `toml:"bridge" yaml:"bridge"`
	Servers     []Server     `toml:"server" yaml:"server"`
	Publishers  []Publisher  `toml:"publisher" yaml:"publisher"`
	Subscribers []Subscriber `toml:"subscriber" yaml:"subscriber"`
	Launches    []Launch     `toml:"launch" yaml:"launch"`
}

type Log struct {
	Dir     string `toml:"dir" yaml:"dir"`
	File    string `toml:"file" yaml:"file"`
	Level   string `toml:"level" yaml:"level"`
	Console bool   `toml:"console" yaml:"console"`
}

// Metrics.Listen empty disables the HTTP endpoint.
type Metrics struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// Transport tunes the ZeroMQ sockets; mem:// endpoints ignore it.
type Transport struct {
	HWM            int `toml:"hwm" yaml:"hwm"`
	PollIntervalMS int `toml:"poll_interval_ms" yaml:"poll_interval_ms"`
	LingerMS       int `toml:"linger_ms" yaml:"linger_ms"`
}

type Queue struct {
	Name     string `toml:"name" yaml:"name"`
	Capacity int    `toml:"capacity" yaml:"capacity"` // default 1024 if 0
}

// Loop holds the fields every loop kind shares.
type Loop struct {
	Name      string `toml:"name" yaml:"name"`
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	Codec     string `toml:"codec" yaml:"codec"`     // "json" (default) | "cbor"
	Restart   string `toml:"restart" yaml:"restart"` // "never" (default) | "always"
	BackoffMS int    `toml:"backoff_ms" yaml:"backoff_ms"`
}

type Bridge struct {
	Loop     `yaml:",inline"`
	Inbound  string `toml:"inbound" yaml:"inbound"`
	Outbound string `toml:"outbound" yaml:"outbound"`
}

type Server struct {
	Loop             `yaml:",inline"`
	Handler          string `toml:"handler" yaml:"handler"` // registered handler name
	TimeoutMS        int    `toml:"timeout_ms" yaml:"timeout_ms"`
	HandlerTimeoutMS int    `toml:"handler_timeout_ms" yaml:"handler_timeout_ms"`
}

type Publisher struct {
	Loop  `yaml:",inline"`
	Topic string `toml:"topic" yaml:"topic"`
	Queue string `toml:"queue" yaml:"queue"`
}

type Subscriber struct {
	Loop     `yaml:",inline"`
	Topic    string `toml:"topic" yaml:"topic"`
	Queue    string `toml:"queue" yaml:"queue"`
	Overflow string `toml:"overflow" yaml:"overflow"` // "drop" (default) | "block"
}

// Launch is a helper process started with the relay. Elevation needs an
// interactive credential and is only available from the CLI.
type Launch struct {
	Name        string   `toml:"name" yaml:"name"`
	Path        string   `toml:"path" yaml:"path"`
	Args        []string `toml:"args" yaml:"args"`
	Interpreter string   `toml:"interpreter" yaml:"interpreter"`
	TimeoutMS   int      `toml:"timeout_ms" yaml:"timeout_ms"` // 0 = detached
}
