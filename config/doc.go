// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODEJUDGE_-prefixed environment
// variables. It covers server transport settings, the execution engine
// (mode, container policy, timeout), per-language images, admission control
// and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Execution mode: %s\n", cfg.Sandbox.Mode)
package config
