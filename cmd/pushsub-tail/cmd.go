package main

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maproulette/pushsub"
)

// The environment variable prefix of every flag: --base-delay is PUSHSUB_BASE_DELAY.
const envPrefix = "PUSHSUB"

const (
	flagEndpoint     = "endpoint"
	flagSubscribe    = "subscribe"
	flagBaseDelay    = "base-delay"
	flagKeepAlive    = "keepalive"
	flagAPIKey       = "api-key"
	flagAPIKeyHeader = "api-key-header"
	flagMetricsAddr  = "metrics-addr"
	flagLogLevel     = "log-level"
	flagRefCounted   = "ref-counted"
)

type config struct {
	Endpoint      string
	Subscriptions []pushsub.Subscription
	BaseDelay     time.Duration
	KeepAlive     time.Duration
	APIKey        string
	APIKeyHeader  string
	MetricsAddr   string
	LogLevel      string
	RefCounted    bool
}

func newRootCmd(out, logOut io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          `pushsub-tail --endpoint=[ws-url] --subscribe=[type[:id]]`,
		Short:        `pushsub-tail prints the frames a push server sends for the given subscriptions`,
		Long:         `pushsub-tail keeps a websocket to the push server open, reconnecting with backoff, and prints every pushed frame as one JSON line`,
		Example:      `pushsub-tail --endpoint=wss://example.org/ws --subscribe=reviewTasks:42 --subscribe=notifications --metrics-addr=:9100`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix(envPrefix)
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()

			if err := bindFlags(cmd.Flags(), v); err != nil {
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, out, logOut)
		},
	}

	flags := cmd.Flags()
	flags.String(flagEndpoint, "", "push server websocket url")
	flags.StringSlice(flagSubscribe, nil, "subscription as type or type:id, repeatable")
	flags.Duration(flagBaseDelay, pushsub.DefaultBaseDelay, "unit of the reconnection backoff")
	flags.Duration(flagKeepAlive, pushsub.DefaultKeepAliveInterval, "heartbeat interval, 0 disables it")
	flags.String(flagAPIKey, "", "api key sent with the websocket handshake")
	flags.String(flagAPIKeyHeader, "apiKey", "handshake header carrying the api key")
	flags.String(flagMetricsAddr, "", "serve prometheus metrics on this address, e.g. :9100")
	flags.String(flagLogLevel, "info", "debug, info, warn or error")
	flags.Bool(flagRefCounted, false, "keep a server subscription until its last handler is removed")

	return cmd
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	return errors.Wrap(v.BindPFlags(flags), "bind flags")
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Endpoint:     v.GetString(flagEndpoint),
		BaseDelay:    v.GetDuration(flagBaseDelay),
		KeepAlive:    v.GetDuration(flagKeepAlive),
		APIKey:       v.GetString(flagAPIKey),
		APIKeyHeader: v.GetString(flagAPIKeyHeader),
		MetricsAddr:  v.GetString(flagMetricsAddr),
		LogLevel:     v.GetString(flagLogLevel),
		RefCounted:   v.GetBool(flagRefCounted),
	}

	if cfg.Endpoint == "" {
		return config{}, errors.Errorf("--%s is required", flagEndpoint)
	}

	// The environment form is comma separated.
	for _, entry := range v.GetStringSlice(flagSubscribe) {
		for _, raw := range strings.Split(entry, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			sub, err := pushsub.ParseSubscription(raw)
			if err != nil {
				return config{}, errors.Wrapf(err, "--%s", flagSubscribe)
			}
			cfg.Subscriptions = append(cfg.Subscriptions, sub)
		}
	}
	if len(cfg.Subscriptions) == 0 {
		return config{}, errors.Errorf("at least one --%s is required", flagSubscribe)
	}

	return cfg, nil
}
