package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/collab-relay/internal/config"
)

// ApplicationName is reported to Postgres in pg_stat_activity.
const ApplicationName = "collab-relay"

// BuildConnString renders cfg as a postgres:// URL. Credentials are
// userinfo-escaped and IPv6 hosts are bracketed.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
		RawQuery: url.Values{
			"sslmode":          {sslMode},
			"application_name": {ApplicationName},
		}.Encode(),
	}
	return u.String()
}
