//go:build property
// +build property

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

// TestConfigurationProperties tests configuration loading and validation properties
func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid cache bounds always load", prop.ForAll(
		func(size int, seconds int) bool {
			v := viper.New()
			v.Set("cache.max_size", size)
			v.Set("cache.ttl", time.Duration(seconds)*time.Second)

			cfg, err := LoadFrom(v)
			return err == nil && cfg.Cache.MaxSize == size && cfg.Cache.TTL == time.Duration(seconds)*time.Second
		},
		gen.IntRange(1, 100000),
		gen.IntRange(1, 86400),
	))

	properties.Property("non-positive cache size is rejected", prop.ForAll(
		func(size int) bool {
			v := viper.New()
			v.Set("cache.max_size", size)
			_, err := LoadFrom(v)
			return err != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("port validation", prop.ForAll(
		func(port int) bool {
			result := &ValidationResult{}
			validateServer(&ServerConfig{
				Port:         port,
				Host:         "localhost",
				ContentDir:   "content",
				FetchTimeout: time.Second,
				MaxBodyBytes: 1,
			}, result)

			if port >= 0 && port <= 65535 {
				return !result.HasErrors()
			}
			return result.HasErrors()
		},
		gen.IntRange(-1000, 70000),
	))

	properties.Property("content dirs with parent segments are rejected", prop.ForAll(
		func(parts []string) bool {
			result := &ValidationResult{}
			validateServer(&ServerConfig{
				Host:         "localhost",
				ContentDir:   strings.Join(append(parts, "..", "x"), "/"),
				FetchTimeout: time.Second,
				MaxBodyBytes: 1,
			}, result)
			return result.HasErrors() && result.Errors[0].Field == "server.content_dir"
		},
		gen.SliceOfN(3, gen.RegexMatch(`^[a-z]{1,8}$`)),
	))

	properties.Property("plain host names are accepted", prop.ForAll(
		func(host string) bool {
			result := &ValidationResult{}
			validateServer(&ServerConfig{
				Host:         "localhost",
				ContentDir:   "content",
				RemoteHosts:  []string{host, host + ":443"},
				FetchTimeout: time.Second,
				MaxBodyBytes: 1,
			}, result)
			return !result.HasErrors()
		},
		gen.RegexMatch(`^[a-z][a-z0-9-]{0,10}(\.[a-z]{2,5}){1,2}$`),
	))

	properties.TestingRun(t)
}
