// internal/config/validator.go
//
// Config validation on top of go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` right after unmarshalling the merged Koanf
// tree.  Any failure aborts startup, so the binary never runs with a
// partial or malformed configuration.
//
// Failures are reported by their config key (`cache.queue_size`), not the
// Go field path, so the message points at the YAML line or the
// SITEPRESS_ variable to fix.  Values are left out of the message since
// some of them are resolved secrets.  One cross-field rule lives here as well: the
// admin listener must not share the public listener's address.
//
// Notes
// -----
//   - Oxford commas, two spaces after periods.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// validateStruct returns the first problem found, or nil.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			return fmt.Errorf("config %s: failed %q validation", configKey(fe.Namespace()), fe.Tag())
		}
		return err
	}
	if c.HTTP.AdminAddr == c.HTTP.ListenAddr {
		return fmt.Errorf("config http.admin_addr must differ from http.listen_addr (%s)", c.HTTP.ListenAddr)
	}
	return nil
}

// configKey strips the root type from a validator namespace:
// "Config.cache.queue_size" → "cache.queue_size".
func configKey(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
