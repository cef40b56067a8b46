// Package cli parses the command line of arma-cfg, merges it with the
// environment (optionally loaded from a .env file) and an HCL run file, and
// validates the result into a Config. Flags override the run file, which
// overrides the environment.
package cli
