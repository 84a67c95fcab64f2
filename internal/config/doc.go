// Package config manages user-level settings stored at ~/.quickmod/config.yaml.
// It provides functions to load, read, and write configuration keys such as
// the metadata directory, download concurrency and timeout, and the list of
// target environments mods are installed into.
package config
