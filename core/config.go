package core

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres | sqlite | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	ServerConfig struct {
		Address         string
		Host            string
		ShutdownTimeout time.Duration
	}

	RedisConfig struct {
		URL string
		TTL time.Duration
	}

	Config struct {
		Env           string
		Debug         bool
		TestMode      bool
		AppName       string
		Build         string
		RollbarToken  string
		RequireAPIKey bool
		Metrics       bool
		Server        ServerConfig
		Database      DatabaseConfig
		Redis         RedisConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) IsSQLite() bool {
	return c.Engine == "sqlite"
}

// InMemory reports whether repositories live in process memory instead of a SQL database.
func (c DatabaseConfig) InMemory() bool {
	return c.Engine == "memory"
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "CosmicDS API")
	v.SetDefault("build", "dev")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("requireApiKey", false)
	v.SetDefault("metrics", true)

	v.SetDefault("server.address", ":8081")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cosmicds")
	v.SetDefault("database.user", "cosmicds")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "cosmicds.db")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 5*time.Minute)
}

// LoadConfig reads the configuration for the environment named by $ENV (DEV by default).
// Keys are read from the environment with the env name as prefix, e.g. PROD_DATABASE_HOST.
// A config/.env.<env> file under the project root is loaded first when it exists.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "sqlite")
		v.SetDefault("database.path", ":memory:")
	}

	if root, err := ProjectRoot(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
		}
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:           env,
		Debug:         v.GetBool("debug"),
		TestMode:      v.GetBool("testMode"),
		AppName:       v.GetString("appName"),
		Build:         v.GetString("build"),
		RollbarToken:  v.GetString("rollbarToken"),
		RequireAPIKey: v.GetBool("requireApiKey"),
		Metrics:       v.GetBool("metrics"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
			TTL: v.GetDuration("redis.ttl"),
		},
	}

	switch conf.Database.Engine {
	case "postgres", "sqlite", "memory":
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
	return conf, nil
}
