package paths

import "os/exec"

var lookPath = exec.LookPath
