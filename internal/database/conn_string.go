package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/mesh-provider/internal/config"
)

// applicationName tags archive sessions in pg_stat_activity.
const applicationName = "meshwatch"

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		q.Set("connect_timeout", fmt.Sprint(secs))
	}
	u.RawQuery = q.Encode()

	return u.String()
}
