package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	SMTP    SMTP    `yaml:"smtp"`
	Sweep   Sweep   `yaml:"sweep"`
}

// Duration accepts Go duration strings in YAML ("30s", "5m"), which the yaml
// package does not decode into time.Duration on its own.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}

	*d = Duration(parsed)

	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Server struct {
	Host              string   `yaml:"host"`
	Port              string   `yaml:"port"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
}

type Storage struct {
	// Driver selects the store: "memory" for the seeded demo deployment,
	// "postgres" for a real database.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SMTP struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// Enabled reports whether a real mail transport is configured; otherwise
// notifications go to the log.
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

type Sweep struct {
	Interval       Duration `yaml:"interval"`
	ResponseWindow Duration `yaml:"response_window"`
}

func defaults() Config {
	//nolint:exhaustruct
	return Config{
		Server: Server{
			Host:              "localhost",
			Port:              "8092",
			ReadHeaderTimeout: Duration(20 * time.Second), //nolint:gomnd
		},
		Storage: Storage{
			Driver: "memory",
			DSN:    "",
		},
		Sweep: Sweep{
			Interval:       Duration(5 * time.Minute), //nolint:gomnd
			ResponseWindow: Duration(48 * time.Hour),  //nolint:gomnd
		},
	}
}

// Load reads the YAML config at path on top of the defaults. A missing file
// is fine: defaults plus environment apply. Secrets can always be supplied
// via BOOKING_DSN and BOOKING_SMTP_PASSWORD so they stay out of the file.
func Load(path string) (Config, error) {
	conf := defaults()

	if path != "" {
		data, err := os.ReadFile(path)

		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return conf, fmt.Errorf("read config %v: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &conf); err != nil {
				return conf, fmt.Errorf("parse config %v: %w", path, err)
			}
		}
	}

	if dsn := os.Getenv("BOOKING_DSN"); dsn != "" {
		conf.Storage.DSN = dsn
	}

	if password := os.Getenv("BOOKING_SMTP_PASSWORD"); password != "" {
		conf.SMTP.Password = password
	}

	return conf, nil
}
