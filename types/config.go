package types

import (
	errs "errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/oliverisaac/goli"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/envdetect"
)

type Config struct {
	Hostname        string
	Listen          string
	Debug           bool
	Dev             bool
	CookieSecret    []byte
	DBPath          string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	DevHostSuffixes []string
	AdminTokenHash  string
	VapidPublicKey  string
	VapidPrivateKey string
	VapidSubscriber string

	InitTimeout   time.Duration
	PromptTimeout time.Duration
	RecheckDelay  time.Duration
	DialogDelay   time.Duration
}

// ConfigFromEnv reads SPASI_* variables. VAPID keys are only required when
// SPASI_HOSTNAME is not a development host.
func ConfigFromEnv() (Config, error) {
	ret := Config{}
	var retErr error
	var err error

	ret.Hostname = goli.DefaultEnv("SPASI_HOSTNAME", "localhost")
	ret.Listen = goli.DefaultEnv("SPASI_LISTEN", ":8080")

	ret.Debug, err = strconv.ParseBool(goli.DefaultEnv("SPASI_DEBUG", "false"))
	if err != nil {
		retErr = errs.Join(retErr, errors.Wrap(err, "parsing SPASI_DEBUG"))
	}

	cookieSecret, ok := os.LookupEnv("SPASI_COOKIE_STORE_SECRET")
	if !ok {
		retErr = errs.Join(retErr, fmt.Errorf("You must define env SPASI_COOKIE_STORE_SECRET"))
	} else {
		ret.CookieSecret = []byte(cookieSecret)
	}

	ret.DatabaseURL = os.Getenv("SPASI_DATABASE_URL")
	ret.DBPath = goli.DefaultEnv("SPASI_DB_PATH", "spasi-push.db")
	if ret.DatabaseURL == "" {
		if _, err := os.Stat(path.Dir(ret.DBPath)); err != nil {
			retErr = errs.Join(retErr, errors.Wrap(err, "Directory for SPASI_DB_PATH must exist"))
		}
	}

	ret.RedisAddr = os.Getenv("SPASI_REDIS_ADDR")
	ret.RedisPassword = os.Getenv("SPASI_REDIS_PASSWORD")
	ret.RedisDB, err = strconv.Atoi(goli.DefaultEnv("SPASI_REDIS_DB", "0"))
	if err != nil {
		retErr = errs.Join(retErr, errors.Wrap(err, "parsing SPASI_REDIS_DB"))
	}

	for _, s := range strings.Split(os.Getenv("SPASI_DEV_HOST_SUFFIXES"), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ret.DevHostSuffixes = append(ret.DevHostSuffixes, s)
	}

	ret.Dev = envdetect.New(ret.DevHostSuffixes...).IsDevelopment(ret.Hostname)

	ret.AdminTokenHash = os.Getenv("SPASI_ADMIN_TOKEN_HASH")
	if ret.AdminTokenHash == "" {
		logrus.Warn("SPASI_ADMIN_TOKEN_HASH is not set, admin endpoints are disabled")
	}

	durations := []struct {
		env string
		def string
		dst *time.Duration
	}{
		{"SPASI_INIT_TIMEOUT", "10s", &ret.InitTimeout},
		{"SPASI_PROMPT_TIMEOUT", "2m", &ret.PromptTimeout},
		{"SPASI_RECHECK_DELAY", "3s", &ret.RecheckDelay},
		{"SPASI_DIALOG_DELAY", "5s", &ret.DialogDelay},
	}
	for _, d := range durations {
		*d.dst, err = time.ParseDuration(goli.DefaultEnv(d.env, d.def))
		if err != nil {
			retErr = errs.Join(retErr, errors.Wrapf(err, "parsing %s", d.env))
		}
	}

	ret.VapidPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	ret.VapidPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	ret.VapidSubscriber = goli.DefaultEnv("VAPID_SUBSCRIBER", "admin@spasi.bg")
	if !ret.Dev {
		if ret.VapidPrivateKey == "" {
			retErr = errs.Join(retErr, fmt.Errorf("You must define env VAPID_PRIVATE_KEY"))
		}
		if ret.VapidPublicKey == "" {
			retErr = errs.Join(retErr, fmt.Errorf("You must define env VAPID_PUBLIC_KEY"))
		}
	}

	return ret, retErr
}
