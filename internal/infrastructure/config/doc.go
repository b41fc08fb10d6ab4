// Package config handles loading and validating hellod configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HELLO_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (the MQTT password) should be set via environment
// variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/hellod.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Name)
package config
