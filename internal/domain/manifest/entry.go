package manifest

import (
	"time"
)

// Probe types
const (
	ProbeNone    = "none"
	ProbeProcess = "process"
	ProbeHTTP    = "http"
	ProbeTCP     = "tcp"
)

// Quit operation types
const (
	QuitSignal = "signal"
	QuitHTTP   = "http"
)

// Entry describes one launchable game.
type Entry struct {
	ID       string            `json:"id" yaml:"id" toml:"id" validate:"required,max=64,gameid"`
	Name     string            `json:"name" yaml:"name" toml:"name" validate:"required,max=128"`
	Exec     string            `json:"exec" yaml:"exec" toml:"exec" validate:"required"`
	Synonyms []string          `json:"synonyms,omitempty" yaml:"synonyms" toml:"synonyms" validate:"dive,required,max=128"`
	Workdir  string            `json:"workdir,omitempty" yaml:"workdir" toml:"workdir"`
	Args     []string          `json:"args,omitempty" yaml:"args" toml:"args"`
	Env      map[string]string `json:"env,omitempty" yaml:"env" toml:"env" validate:"dive,keys,envkey,endkeys"`
	TTY      bool              `json:"tty,omitempty" yaml:"tty" toml:"tty"`

	Health Probe `json:"healthcheck" yaml:"healthcheck" toml:"healthcheck"`
	Quit   Quit  `json:"quit" yaml:"quit" toml:"quit"`

	LaunchTimeoutSec float64 `json:"launch_timeout_sec,omitempty" yaml:"launch_timeout_sec" toml:"launch_timeout_sec" validate:"gte=0"`
	QuitTimeoutSec   float64 `json:"quit_timeout_sec,omitempty" yaml:"quit_timeout_sec" toml:"quit_timeout_sec" validate:"gte=0"`
}

// Probe is the readiness check run while a game is launching.
type Probe struct {
	Type             string  `json:"type,omitempty" yaml:"type" toml:"type" validate:"omitempty,oneof=none process http tcp"`
	Host             string  `json:"host,omitempty" yaml:"host" toml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port             int     `json:"port,omitempty" yaml:"port" toml:"port" validate:"gte=0,lte=65535"`
	Path             string  `json:"path,omitempty" yaml:"path" toml:"path" validate:"omitempty,startswith=/"`
	TimeoutSec       float64 `json:"timeout_sec,omitempty" yaml:"timeout_sec" toml:"timeout_sec" validate:"gte=0"`
	IntervalSec      float64 `json:"interval_sec,omitempty" yaml:"interval_sec" toml:"interval_sec" validate:"gte=0"`
	FailureThreshold int     `json:"failure_threshold,omitempty" yaml:"failure_threshold" toml:"failure_threshold" validate:"gte=0"`
}

// Quit is the graceful quit operation.
type Quit struct {
	Type   string `json:"type,omitempty" yaml:"type" toml:"type" validate:"omitempty,oneof=signal http"`
	Signal string `json:"signal,omitempty" yaml:"signal" toml:"signal" validate:"omitempty,oneof=SIGTERM SIGINT SIGHUP SIGQUIT SIGUSR1 SIGUSR2"`
	URL    string `json:"url,omitempty" yaml:"url" toml:"url" validate:"omitempty,url"`
}

// ProbeType returns the probe kind, defaulting to none.
func (p Probe) ProbeType() string {
	if p.Type == "" {
		return ProbeNone
	}
	return p.Type
}

// Address returns host:port for network probes.
func (p Probe) Address(defaultHost string) string {
	host := p.Host
	if host == "" {
		host = defaultHost
	}
	return joinHostPort(host, p.Port)
}

// URL returns the HTTP probe URL.
func (p Probe) URL(defaultHost string) string {
	path := p.Path
	if path == "" {
		path = "/health"
	}
	return "http://" + p.Address(defaultHost) + path
}

// Interval returns the poll interval or def when unset.
func (p Probe) Interval(def time.Duration) time.Duration {
	return seconds(p.IntervalSec, def)
}

// Threshold returns the failure threshold or def when unset.
func (p Probe) Threshold(def int) int {
	if p.FailureThreshold > 0 {
		return p.FailureThreshold
	}
	return def
}

// QuitType returns the quit kind, defaulting to signal.
func (q Quit) QuitType() string {
	if q.Type == "" {
		return QuitSignal
	}
	return q.Type
}

// SignalName returns the configured signal, defaulting to SIGTERM.
func (q Quit) SignalName() string {
	if q.Signal == "" {
		return "SIGTERM"
	}
	return q.Signal
}

// LaunchTimeout returns the per-game launch deadline. The healthcheck
// timeout_sec is honoured as a fallback.
func (e *Entry) LaunchTimeout(def time.Duration) time.Duration {
	if e.LaunchTimeoutSec > 0 {
		return seconds(e.LaunchTimeoutSec, def)
	}
	return seconds(e.Health.TimeoutSec, def)
}

// QuitTimeout returns the per-game graceful quit deadline.
func (e *Entry) QuitTimeout(def time.Duration) time.Duration {
	return seconds(e.QuitTimeoutSec, def)
}

// Clone returns a deep copy safe to hand out of the catalog.
func (e *Entry) Clone() Entry {
	c := *e
	c.Synonyms = append([]string(nil), e.Synonyms...)
	c.Args = append([]string(nil), e.Args...)
	if e.Env != nil {
		c.Env = make(map[string]string, len(e.Env))
		for k, v := range e.Env {
			c.Env[k] = v
		}
	}
	return c
}

// Keys returns every resolvable key of the entry: synonyms, name, id.
func (e *Entry) Keys() []string {
	keys := make([]string, 0, len(e.Synonyms)+2)
	keys = append(keys, e.Synonyms...)
	return append(keys, e.Name, e.ID)
}

func seconds(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}
