package launcher

import (
	"fmt"

	"github.com/memestack/devlaunch/go/config"
	"github.com/memestack/devlaunch/go/supervisor"
)

// Step is one role's resolved launch: the rendered command line plus the
// role settings that govern it.
type Step struct {
	Role        supervisor.Role
	CommandLine string
	Settings    config.Role
}

// Plan renders every role's command for profile, in launch order.
func Plan(settings config.Settings, profile config.LaunchProfile) ([]Step, error) {
	data := config.NewCommandData(profile)
	roles := map[supervisor.Role]config.Role{
		supervisor.Backend:  settings.Roles.Backend,
		supervisor.Frontend: settings.Roles.Frontend,
		supervisor.Shell:    settings.Roles.Shell,
	}

	steps := make([]Step, 0, len(supervisor.Roles))
	for _, role := range supervisor.Roles {
		rs := roles[role]
		commandLine, err := rs.Render(data)
		if err != nil {
			return nil, fmt.Errorf("rendering %v command: %w", role, err)
		}
		steps = append(steps, Step{Role: role, CommandLine: commandLine, Settings: rs})
	}
	return steps, nil
}
