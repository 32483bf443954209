package config

import (
	"io/ioutil"
	"os"

	"github.com/tidwall/gjson"
)

// ConfigFile is where the debugger launch configuration is read from,
// relative to the project root.
var ConfigFile = ".vscode/launch.json"

// LaunchProfile is the part of a debugger launch configuration needed to
// run the backend outside the debugger.
type LaunchProfile struct {
	Name      string
	MainClass string
	Args      [2]string
}

// Load reads the launch configuration at path and returns the profile
// called name, or the first profile when name is empty. The profile must
// carry a mainClass and exactly two string args.
func Load(path, name string) (LaunchProfile, error) {
	var profile LaunchProfile

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile, configError(path, ErrMissing, "")
		}
		return profile, configError(path, ErrMissing, "%v", err)
	}
	if !gjson.ValidBytes(contents) {
		return profile, configError(path, ErrMalformed, "invalid JSON")
	}

	configurations := gjson.GetBytes(contents, "configurations")
	if !configurations.IsArray() {
		return profile, configError(path, ErrNoProfile, "no configurations array")
	}

	entry, ok := findProfile(configurations, name)
	if !ok {
		if name == "" {
			return profile, configError(path, ErrNoProfile, "configurations is empty")
		}
		return profile, configError(path, ErrNoProfile, "no configuration named %q", name)
	}

	profile.Name = entry.Get("name").String()

	mainClass := entry.Get("mainClass")
	if mainClass.Type != gjson.String || mainClass.String() == "" {
		return profile, configError(path, ErrMalformed, "configuration %q has no mainClass", profile.Name)
	}
	profile.MainClass = mainClass.String()

	args := entry.Get("args")
	if !args.IsArray() {
		return profile, configError(path, ErrBadArgs, "args is %s, not a list", args.Type)
	}
	elems := args.Array()
	if len(elems) != len(profile.Args) {
		return profile, configError(path, ErrBadArgs, "got %d", len(elems))
	}
	for i, arg := range elems {
		if arg.Type != gjson.String {
			return profile, configError(path, ErrBadArgs, "arg %d is %s, not a string", i, arg.Type)
		}
		profile.Args[i] = arg.String()
	}

	return profile, nil
}

func findProfile(configurations gjson.Result, name string) (gjson.Result, bool) {
	for _, entry := range configurations.Array() {
		if !entry.IsObject() {
			continue
		}
		if name == "" || entry.Get("name").String() == name {
			return entry, true
		}
	}
	return gjson.Result{}, false
}
