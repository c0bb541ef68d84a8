/*
Package watchdog guards launches and watches what runs.

# Launch guard

Guard.Prepare turns a catalog entry into a supervisor.Spec. The executable
is expanded (~, $VAR from the entry env then the process env), made
absolute, symlink-resolved, and matched against doublestar whitelist
patterns. Arguments are expanded the same way and rejected when they
contain control characters or, in strict mode, shell metacharacters.

# Crash detection

On every tick the watchdog looks at the supervisor's current handle and
reports an exit nobody asked for, once per handle. The orchestrator decides
what that means for its state.

# Auxiliary services

Each configured service is checked by HTTP (retryablehttp) or by heartbeat
freshness. Unresponsive services are restarted under a resilience.Policy;
once the restart budget is spent the sink receives a fatal notice.
*/
package watchdog
