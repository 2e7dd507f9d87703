// Package config loads the TOML settings file consumed by cmd/trustctl:
// the HSM signing endpoint, the RFC 3161 TSA, the trusted root store
// paths, and the semantic pass executor endpoint.
//
// Grounded on the teacher's config/config.go (Config{Info, TSA} loaded via
// toml.DecodeFile into a package-level Settings variable), extended with
// the sections this system's domain stack needs.
package config

import (
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

var (
	// DefaultLocation is the conventional config file path, matching the
	// teacher's ./pdfsign.conf default.
	DefaultLocation = "./trustpipe.conf"

	// Settings holds the most recently Read config, matching the
	// teacher's single-process-wide Settings variable.
	Settings Config
)

// HSM configures the remote HSM signing service (§6 External Interfaces).
type HSM struct {
	Endpoint    string
	KeyName     string
	TokenEnvVar string
}

// TSA configures the RFC 3161 timestamp authority, generalized from the
// teacher's sign.TSA to this package so config has no dependency on cms.
type TSA struct {
	URL      string
	Username string
	Password string
}

// Semantic configures the semantic audit pipeline's pluggable executor.
type Semantic struct {
	ExecutorURL string
}

// Config is the root of the config file.
type Config struct {
	HSM        HSM
	TSA        TSA
	TrustRoots []string
	Semantic   Semantic
}

// Read loads configfile into Settings, matching the teacher's fail-fast
// discipline: a missing config file is an operator error at startup, not
// a recoverable condition, so it is fatal exactly as in the teacher's own
// Read.
func Read(configfile string) {
	if _, err := os.Stat(configfile); err != nil {
		log.Fatal("config file is missing: ", configfile)
	}

	var c Config
	if _, err := toml.DecodeFile(configfile, &c); err != nil {
		log.Fatal("failed to parse config file: ", err)
	}

	Settings = c
}
