package catalog

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects the catalog database, either a local sqlite file or a
// remote libsql server.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Config) remote() bool {
	return config.Url != ""
}

func (config Config) OpenDB() (*sql.DB, error) {
	if !config.remote() {
		if config.File == "" {
			return nil, fmt.Errorf("a catalog file was not specified")
		}
		return sql.Open("sqlite", config.File)
	}

	values := url.Values{}
	if config.AuthToken != "" {
		values.Add("authToken", config.AuthToken)
	}
	dsn := config.Url
	if len(values) > 0 {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + values.Encode()
	}
	return sql.Open("libsql", dsn)
}

// ParseDSN turns a --catalog argument into a Config, anything with a scheme
// other than file: is treated as a libsql server url.
func ParseDSN(dsn string) Config {
	if strings.HasPrefix(dsn, "file:") {
		return Config{File: strings.TrimPrefix(dsn, "file:")}
	}
	if strings.Contains(dsn, "://") {
		return Config{Url: dsn}
	}
	return Config{File: dsn}
}
