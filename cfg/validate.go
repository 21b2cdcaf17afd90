package cfg

import "fmt"

// Validate returns a non-nil error if c is missing a required field or
// carries an out-of-range tunable. View, Bucket, and Addresses have no
// defaults on purpose: an operator must always state which backend and
// tenant a mount talks to.
func Validate(c *Config) error {
	if c.View == "" {
		return fmt.Errorf("view is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if len(c.Addresses) == 0 {
		return fmt.Errorf("at least one backend address is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max-connections must be positive, got %d", c.MaxConnections)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page-size must be positive, got %d", c.PageSize)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
