package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// SettingsFile is the optional launcher settings file, relative to the
// project root.
var SettingsFile = ".devlaunch.yaml"

// Settings holds everything about how the three processes are started.
// The defaults start mvn, node and electron the way the project is normally run.
type Settings struct {
	LaunchConfig string        `yaml:"launchConfig"`
	Profile      string        `yaml:"profile"`
	PollInterval time.Duration `yaml:"pollInterval"`
	ReadyTimeout time.Duration `yaml:"readyTimeout"`
	KillGrace    time.Duration `yaml:"killGrace"`
	Roles        RoleSettings  `yaml:"roles"`
}

type RoleSettings struct {
	Backend  Role `yaml:"backend"`
	Frontend Role `yaml:"frontend"`
	Shell    Role `yaml:"shell"`
}

// Role describes one launched process. Command is a text/template rendered
// against CommandData and run with /bin/sh -c.
type Role struct {
	Command string `yaml:"command"`
	Dir     string `yaml:"dir"`

	// FreePort, when set, is a TCP port whose stale listener is killed
	// before this role is launched.
	FreePort int `yaml:"freePort"`

	// ReadyPort, when set, must accept connections before the next role
	// is launched. Without it the launcher waits SettleDelay instead.
	ReadyPort   int           `yaml:"readyPort"`
	SettleDelay time.Duration `yaml:"settleDelay"`

	// Required roles abort the launch when they fail to spawn.
	Required bool `yaml:"required"`
}

func DefaultSettings() Settings {
	return Settings{
		LaunchConfig: ConfigFile,
		PollInterval: time.Second,
		ReadyTimeout: time.Minute,
		KillGrace:    time.Second,
		Roles: RoleSettings{
			Backend: Role{
				Command:     "mvn exec:java -Dexec.mainClass='{{.MainClass}}' -Dexec.args='{{.Args}}'",
				FreePort:    8001,
				ReadyPort:   8001,
				SettleDelay: 3 * time.Second,
				Required:    true,
			},
			Frontend: Role{
				Command:     "node proxy.js",
				Dir:         "target/classes/code",
				FreePort:    5500,
				ReadyPort:   5500,
				SettleDelay: 2 * time.Second,
			},
			Shell: Role{
				Command:     "npx electron app.js",
				Dir:         "target/classes/code",
				SettleDelay: 2 * time.Second,
			},
		},
	}
}

// LoadSettings overlays the YAML file at path on DefaultSettings. A missing
// file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, configError(path, ErrMissing, "%v", err)
	}

	if err := yaml.Unmarshal(contents, &settings); err != nil {
		return settings, configError(path, ErrMalformed, "%v", err)
	}
	if err := settings.validate(); err != nil {
		return settings, configError(path, ErrMalformed, "%v", err)
	}

	return settings, nil
}

func (s Settings) validate() error {
	if s.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive, got %v", s.PollInterval)
	}
	if s.ReadyTimeout <= 0 {
		return fmt.Errorf("readyTimeout must be positive, got %v", s.ReadyTimeout)
	}
	if s.KillGrace < 0 {
		return fmt.Errorf("killGrace must not be negative, got %v", s.KillGrace)
	}
	for _, r := range []struct {
		name string
		role Role
	}{
		{"backend", s.Roles.Backend},
		{"frontend", s.Roles.Frontend},
		{"shell", s.Roles.Shell},
	} {
		if strings.TrimSpace(r.role.Command) == "" {
			return fmt.Errorf("roles.%s.command is empty", r.name)
		}
		if !validPort(r.role.FreePort) || !validPort(r.role.ReadyPort) {
			return fmt.Errorf("roles.%s has a port outside 0-65535", r.name)
		}
		if _, err := template.New(r.name).Parse(r.role.Command); err != nil {
			return fmt.Errorf("roles.%s.command: %v", r.name, err)
		}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

// CommandData is what a role command template can refer to. Values are
// already escaped for use inside single quotes.
type CommandData struct {
	MainClass string
	Arg1      string
	Arg2      string
	Args      string
	Profile   string
}

func NewCommandData(p LaunchProfile) CommandData {
	return CommandData{
		MainClass: singleQuoteEscape(p.MainClass),
		Arg1:      singleQuoteEscape(p.Args[0]),
		Arg2:      singleQuoteEscape(p.Args[1]),
		Args:      singleQuoteEscape(p.Args[0] + " " + p.Args[1]),
		Profile:   singleQuoteEscape(p.Name),
	}
}

// Render expands the role's command template.
func (r Role) Render(data CommandData) (string, error) {
	tmpl, err := template.New("command").Option("missingkey=error").Parse(r.Command)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func singleQuoteEscape(s string) string {
	return strings.Replace(s, "'", `'\''`, -1)
}
