package supervisor

import (
	"fmt"
	"io"

	slog "github.com/memestack/devlaunch/go/shinylog"
	"github.com/memestack/devlaunch/go/supervisor/process"
)

var roleColors = map[Role]string{
	Backend:  "{blue}",
	Frontend: "{magenta}",
	Shell:    "{cyan}",
}

// OSSpawner starts real processes, tagging each line of their output with
// the role name.
type OSSpawner struct {
	Stdout io.Writer
	Stderr io.Writer
	// PTY runs every process on its own pseudo-terminal.
	PTY bool
}

func (o *OSSpawner) Spawn(role Role, commandLine, dir string) (Handle, error) {
	prefix := fmt.Sprintf("%s%-8s |{reset} ", roleColors[role], role)

	var stdout, stderr *slog.PrefixWriter
	opts := process.Options{Dir: dir, PTY: o.PTY}
	if o.Stdout != nil {
		stdout = slog.NewPrefixWriter(o.Stdout, prefix)
		opts.Stdout = stdout
	}
	if o.Stderr != nil && !o.PTY {
		stderr = slog.NewPrefixWriter(o.Stderr, prefix)
		opts.Stderr = stderr
	}

	p, err := process.Start(commandLine, opts)
	if err != nil {
		return nil, err
	}

	go func() {
		<-p.Exited()
		if stdout != nil {
			stdout.Flush()
		}
		if stderr != nil {
			stderr.Flush()
		}
	}()

	return p, nil
}
