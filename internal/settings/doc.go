// Package settings reads and writes plugin configuration in the gateway's
// shared SQLite settings database.
//
// Each plugin owns one key, addons.config.<package>, holding its
// configuration as JSON. The gateway UI edits the same key, so a plugin
// that loads its config at startup picks up user changes on the next
// restart.
package settings
