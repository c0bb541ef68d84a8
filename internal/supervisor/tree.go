package supervisor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// descendants lists every process below pid, deepest first.
func descendants(pid int) []*process.Process {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []*process.Process
	var walk func(p *process.Process, depth int)
	walk = func(p *process.Process, depth int) {
		if depth > 32 {
			return
		}
		children, err := p.Children()
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c, depth+1)
			out = append(out, c)
		}
	}
	walk(root, 0)
	return out
}

// killTree kills the descendants of pid, deepest first, and returns how
// many were signalled.
func killTree(pid int) int {
	if pid <= 0 {
		return 0
	}
	n := 0
	for _, p := range descendants(pid) {
		if err := p.Kill(); err == nil {
			n++
		}
	}
	return n
}
