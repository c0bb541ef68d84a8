/*
Package supervisor owns the game child process.

# Overview

At most one child exists at a time. Launch hands out a read-only Handle;
every action on it goes back through the Supervisor that issued it. A
reaper goroutine waits on each child and records the exit code and whether
the exit was requested.

# Teardown

GracefulQuit runs the entry's quit operation (a signal, or an HTTP POST)
and waits. If the child is still alive after the timeout it escalates to
ForceKill, which kills every descendant deepest first and then the child's
process group. All operations are no-ops on handles that already exited.

Handles are released by WaitExit once the exit has been observed; until
then Current keeps returning the handle so crash detection can inspect it.
*/
package supervisor
