package layerz

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Configuration keys consulted by the core.
const (
	ConfigURIReporting     = "uri_reporting"
	ConfigCollectRemoteIP  = "collect_remote_ip"
	ConfigProfile          = "profile"
	ConfigFilterParameters = "filter_parameters"
	ConfigInstantHeader    = "instant_header"
)

// URIReportingPath reports only the request path, dropping the query string.
const URIReportingPath = "path"

// EnvPrefix prefixes environment variables read by EnvConfig.
const EnvPrefix = "LAYERZ_"

// Config exposes named options. Missing options read as "".
type Config interface {
	Value(key string) string
}

// Bool reads a boolean option. Unset or unparsable values are false.
func Bool(cfg Config, key string) bool {
	if cfg == nil {
		return false
	}
	value, err := strconv.ParseBool(strings.TrimSpace(cfg.Value(key)))
	if err != nil {
		return false
	}
	return value
}

// MapConfig is a fixed set of options, mostly useful in tests.
type MapConfig map[string]string

// Value implements Config.
func (m MapConfig) Value(key string) string {
	return m[key]
}

// EnvConfig reads options from the environment, falling back to values
// loaded from dotenv files. The environment variable for a key is the key
// upper-cased with EnvPrefix, e.g. LAYERZ_URI_REPORTING.
type EnvConfig struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

// LoadConfig builds an EnvConfig from the given dotenv files.
// With no files only the environment is consulted.
func LoadConfig(files ...string) (*EnvConfig, error) {
	cfg := &EnvConfig{file: map[string]string{}, lookup: os.LookupEnv}
	if len(files) == 0 {
		return cfg, nil
	}

	values, err := godotenv.Read(files...)
	if err != nil {
		return nil, err
	}
	cfg.file = normalize(values)
	return cfg, nil
}

// ParseConfig builds an EnvConfig from dotenv-formatted text.
func ParseConfig(text string) (*EnvConfig, error) {
	values, err := godotenv.Unmarshal(text)
	if err != nil {
		return nil, err
	}
	return &EnvConfig{file: normalize(values), lookup: os.LookupEnv}, nil
}

// Value implements Config.
func (c *EnvConfig) Value(key string) string {
	name := envName(key)
	if c.lookup != nil {
		if value, ok := c.lookup(name); ok {
			return value
		}
	}
	return c.file[name]
}

func envName(key string) string {
	key = strings.ToUpper(key)
	if strings.HasPrefix(key, EnvPrefix) {
		return key
	}
	return EnvPrefix + key
}

// normalize accepts dotenv keys with or without the prefix.
func normalize(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[envName(k)] = v
	}
	return out
}
