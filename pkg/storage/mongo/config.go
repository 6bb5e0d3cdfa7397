package mongo

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrConfParamMissing = fmt.Errorf("configuration parameter missing")

type Config struct {
	Host   string `toml:"host"`
	Port   string `toml:"port"`
	DBName string `toml:"dbName"`
	User   string `toml:"user"`
	Pass   string `toml:"-"`
	// ConnectTimeout bounds server selection; zero keeps the driver default.
	ConnectTimeout time.Duration `toml:"-"`
}

// Validate reports the first missing required parameter.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: mongo host", ErrConfParamMissing)
	case c.Port == "":
		return fmt.Errorf("%w: mongo port", ErrConfParamMissing)
	case c.DBName == "":
		return fmt.Errorf("%w: mongo dbName", ErrConfParamMissing)
	}
	return nil
}

func (c *Config) conString() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   c.Host + ":" + c.Port,
		Path:   "/",
	}
	if c.User != "" && c.Pass != "" {
		u.User = url.UserPassword(c.User, c.Pass)
	}
	return u.String()
}

func (c *Config) Options() *options.ClientOptions {
	opt := options.Client().ApplyURI(c.conString())
	if c.ConnectTimeout > 0 {
		opt.SetServerSelectionTimeout(c.ConnectTimeout)
	}
	return opt
}

func (c Config) String() string {
	c.Pass = strings.Repeat("*", len([]rune(c.Pass)))
	return fmt.Sprintf("%#v", c)
}
