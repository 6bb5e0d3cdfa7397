package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	User     string `toml:"user"`
	Password string `toml:"-"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	DBName   string `toml:"dbName"`
	SSLMode  string `toml:"sslMode"`
}

func (c *Config) ConString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}

	return u.String()
}

func (c Config) String() string {
	c.Password = strings.Repeat("*", len([]rune(c.Password)))
	return fmt.Sprintf("%#v", c)
}

func (c *Config) IsValid() bool {
	if c.User == "" || c.Password == "" || c.Host == "" || c.Port == "" || c.DBName == "" {
		return false
	}
	return true
}
