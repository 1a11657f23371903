package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Environment variables read on top of the YAML file.
const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDatabaseDSN     = "IPADSTATUS_DATABASE_DSN"
	EnvVAPIDPublicKey  = "IPADSTATUS_VAPID_PUBLIC_KEY"
	EnvVAPIDPrivateKey = "IPADSTATUS_VAPID_PRIVATE_KEY"
)

// DefaultPath is used when neither a flag nor CONFIG_PATH names a file.
const DefaultPath = "./config/config.yaml"

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// EnsureEnv loads the first .env file found from the current working directory
// up to the filesystem root. Subsequent calls are no-ops.
func EnsureEnv() error {
	// Unit tests stay hermetic unless GOTEST_LOAD_DOTENV=1.
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			loadErr = err
			return
		}
		loadedPath, loadErr = loadDotEnv(wd)
	})
	return loadErr
}

// LoadedEnvPath returns the .env file that was loaded, if any.
func LoadedEnvPath() string {
	return loadedPath
}

func loadDotEnv(dir string) (string, error) {
	path, err := findDotEnv(dir)
	if err != nil {
		log.Debug().Err(err).Msg("search .env failed")
		return "", err
	}
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("dotenv", path).Msg("load .env failed")
		return "", err
	}
	log.Debug().Str("dotenv", path).Msg("loaded .env")
	return path, nil
}

func findDotEnv(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// ResolvePath picks the config file: the flag value, then CONFIG_PATH, then
// DefaultPath. explicit is false only for the default.
func ResolvePath(flag string) (path string, explicit bool) {
	if flag = strings.TrimSpace(flag); flag != "" {
		return flag, true
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env, true
	}
	return DefaultPath, false
}

// LoadFrom loads the file at path. A missing file that was not asked for
// explicitly yields the defaults. Secrets from the environment override the file.
func LoadFrom(path string, explicit bool) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); !explicit && errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("no config file, using defaults")
		cfg = Default()
	} else {
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvVAPIDPublicKey); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv(EnvVAPIDPrivateKey); v != "" {
		cfg.Push.PrivateKey = v
	}
}
