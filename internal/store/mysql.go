package store

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultCAPath is consulted when TLS is enabled and no CA is configured.
const DefaultCAPath = "./certs/server-ca.pem"

const tlsConfigName = "kaizen"

// MySQLOptions describes a MySQL endpoint.
type MySQLOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	TLS TLSOptions

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// TLSOptions configures the MySQL client TLS handshake. TLS 1.2 is the
// minimum accepted version.
type TLSOptions struct {
	Enabled            bool
	CAPath             string
	CABase64           string
	RejectUnauthorized bool
}

// MySQLDSN builds a go-sql-driver DSN from opts, registering a TLS config
// when one is required. Times are parsed and returned in UTC.
func MySQLDSN(opts MySQLOptions) (string, error) {
	if opts.Host == "" {
		return "", errors.New("mysql host is required")
	}
	port := opts.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	cfg.Timeout = orDefault(opts.ConnectTimeout, 10*time.Second)
	cfg.ReadTimeout = orDefault(opts.ReadTimeout, 20*time.Second)
	cfg.WriteTimeout = orDefault(opts.WriteTimeout, 20*time.Second)
	cfg.Params = map[string]string{"time_zone": "'+00:00'"}

	if opts.TLS.Enabled {
		tc, err := opts.TLS.config(opts.Host)
		if err != nil {
			return "", err
		}
		if err := mysql.RegisterTLSConfig(tlsConfigName, tc); err != nil {
			return "", fmt.Errorf("register tls config: %w", err)
		}
		cfg.TLSConfig = tlsConfigName
	}
	return cfg.FormatDSN(), nil
}

func (o TLSOptions) config(host string) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: !o.RejectUnauthorized,
	}

	pem, err := o.caPEM()
	if err != nil {
		return nil, err
	}
	if pem != nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("mysql tls: no certificates found in CA bundle")
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

// caPEM returns the CA bundle, preferring the inline base64 form. A missing
// file at the default path is not an error; system roots are used instead.
func (o TLSOptions) caPEM() ([]byte, error) {
	if o.CABase64 != "" {
		pem, err := base64.StdEncoding.DecodeString(o.CABase64)
		if err != nil {
			return nil, fmt.Errorf("mysql tls: decode CA: %w", err)
		}
		return pem, nil
	}

	path := o.CAPath
	if path == "" {
		path = DefaultCAPath
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && o.CAPath == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("mysql tls: read CA %s: %w", path, err)
	}
	return pem, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
