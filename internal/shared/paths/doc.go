// Package paths expands launch paths and resolves the runtime directory layout.
//
// Manifests and configuration never carry hard-coded absolute paths; they use
// "~" and environment variables which are expanded here at launch time:
//
//	exec: "$GAMES_HOME/tetris/tetris"
//	workdir: "~/games/tetris"
//
// Well-known locations (config directory, manifest file) honour
// XDG_CONFIG_HOME and fall back to the user's home directory.
package paths
