package portcheck

import (
	"fmt"
	"sort"

	"github.com/prometheus/procfs"
)

// tcpListen is the TCP_LISTEN state as printed in /proc/net/tcp.
const tcpListen = 0x0A

// Owners returns the pids holding a listening TCP socket on port, found by
// matching socket inodes from /proc/net/tcp{,6} against every process's
// open file descriptors. Processes we may not inspect are skipped.
func Owners(port int) ([]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}

	inodes := make(map[string]bool)
	for _, load := range []func() (procfs.NetTCP, error){fs.NetTCP, fs.NetTCP6} {
		lines, err := load()
		if err != nil {
			// No IPv6 support leaves /proc/net/tcp6 absent.
			continue
		}
		for _, line := range lines {
			if line.St == tcpListen && line.LocalPort == uint64(port) {
				inodes[fmt.Sprintf("socket:[%d]", line.Inode)] = true
			}
		}
	}
	if len(inodes) == 0 {
		return nil, nil
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, p := range procs {
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, target := range targets {
			if inodes[target] {
				pids = append(pids, p.PID)
				break
			}
		}
	}
	sort.Ints(pids)
	return pids, nil
}
