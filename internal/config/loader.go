package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CLOUDKIT"

// EnvSpec maps a short environment variable onto a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
	envFile    = ".env"
)

// shortEnv lists the variables that do not follow the CLOUDKIT_<SECTION>_<KEY>
// naming of AutomaticEnv.
var shortEnv = []EnvSpec{
	{Name: "PORT", Path: "server.port"},
	{Name: "HOST", Path: "server.host"},
	{Name: "READ_TIMEOUT", Path: "server.read_timeout"},
	{Name: "WRITE_TIMEOUT", Path: "server.write_timeout"},
	{Name: "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
	{Name: "LOG_LEVEL", Path: "logging.level"},
	{Name: "LOG_FORMAT", Path: "logging.format"},
	{Name: "PROVIDER", Path: "storage.provider"},
	{Name: "ENDPOINT", Path: "storage.endpoint"},
	{Name: "REGION", Path: "storage.region"},
}

// SetConfigFile selects an explicit config file. Empty restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// SetEnvFile selects the .env file read by Load. Empty disables it.
func SetEnvFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	envFile = path
}

// Load builds the configuration. Each overrides map is nested like the config
// file (e.g. {"server": {"port": 9000}}) and wins over every other source.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	// Variables already set in the environment win over the .env file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindValues(v, reflect.TypeOf(Config{}), "")
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, envName(spec.Path), spec.Name); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// ConfigFileUsed reports the path Load would read, or "".
func ConfigFileUsed() string {
	configMu.RLock()
	defer configMu.RUnlock()
	if configFile != "" {
		return configFile
	}
	for _, dir := range getUserConfigPaths() {
		p := filepath.Join(dir, "cloudkit.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func readConfigFile(v *viper.Viper) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		return v.ReadInConfig()
	}

	v.SetConfigName("cloudkit")
	v.SetConfigType("yaml")
	for _, dir := range getUserConfigPaths() {
		v.AddConfigPath(dir)
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// getUserConfigPaths lists the directories searched for cloudkit.yaml, most
// specific first.
func getUserConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "cloudkit"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cloudkit"))
	}
	return paths
}

// getEnvSpecs returns the short variable names with the prefix applied.
func getEnvSpecs() []EnvSpec {
	specs := make([]EnvSpec, 0, len(shortEnv))
	for _, s := range shortEnv {
		specs = append(specs, EnvSpec{Name: EnvPrefix + "_" + s.Name, Path: s.Path})
	}
	return specs
}

func envName(path string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// bindValues walks the config struct, registering defaults from `default`
// tags and an environment binding for every key. Keys without a default stay
// absent until a source sets them, so pointer fields keep their nil meaning.
func bindValues(v *viper.Viper, t reflect.Type, prefix string) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr && ft.Elem().Kind() == reflect.Struct {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			bindValues(v, ft, key)
			continue
		}

		if def, ok := field.Tag.Lookup("default"); ok {
			v.SetDefault(key, def)
		}
		_ = v.BindEnv(key)
	}
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
