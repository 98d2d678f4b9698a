package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mailcatch/mailcatch"
	"github.com/mailcatch/mailcatch/mailbox"
	"github.com/mailcatch/mailcatch/userconfig"
)

// listenEndpoint splits a -listen flag value into the host and port the
// server config wants.
func listenEndpoint(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("can't parse %v as host:port: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("can't parse the port %v as an integer: %v", portStr, err)
	}
	return host, port, nil
}

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	// Intercept interrupts so we can get more visibility into them.
	// One goroutine listens exclusively for interrupts so we can
	// handle them before the main capture loop in case of
	// setup issues.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func(c chan os.Signal) {
		<-c
		log.Info().Msg("interrupt: exiting")
		os.Exit(0)
	}(sigCh)

	configPath := flag.String(
		"config",
		"",
		"path to a JSON or YAML file containing your configuration",
	)
	envPath := flag.String(
		"env",
		"",
		"path to an env-format file naming the SMTP SERVER and PORT",
	)
	listenAddr := flag.String(
		"listen",
		"",
		`host:port to capture mail on (default "localhost:1025")`,
	)
	saveDir := flag.String(
		"save",
		"",
		"directory to persist captured emails under",
	)
	extension := flag.String(
		"ext",
		"",
		`content file extension for saved emails (default ".txt")`,
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the application")

	config := &userconfig.Meta{}

	if *configPath != "" {
		f, err := os.Open(*configPath)

		if err != nil {
			log.Error().
				Str("config-path", *configPath).
				Err(err).
				Msg("We can't open the application config file")
			os.Exit(1)
		}

		config, err = userconfig.Parse(f)
		f.Close()

		if err != nil {
			log.Error().
				Err(err).
				Msg("Problem parsing your config")
			os.Exit(1)
		}
	}

	if *envPath != "" {
		endpoint, err := userconfig.LoadEnv(*envPath)
		if err != nil {
			log.Error().
				Err(err).
				Msg("Problem reading your env file")
			os.Exit(1)
		}
		config.Server.Host = endpoint.Host
		config.Server.Port = endpoint.Port
	}

	if *listenAddr != "" {
		host, port, err := listenEndpoint(*listenAddr)
		if err != nil {
			log.Error().
				Err(err).
				Msg("Problem with the -listen flag")
			os.Exit(1)
		}
		config.Server.Host = host
		config.Server.Port = port
	}

	// Nothing picked an endpoint, so fall back to the usual local one.
	if config.Server.Host == "" && config.Server.Port == 0 {
		config.Server.Host = "localhost"
		config.Server.Port = 1025
	}

	if *saveDir != "" {
		config.Save.Dir = *saveDir
	}
	if *extension != "" {
		config.Save.Extension = *extension
	}

	handler, err := mailcatch.New(*config)

	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Info().Msg("successfully validated the config")

	if err := handler.Open(); err != nil {
		log.Error().
			Err(err).
			Msg("We can't start the capture server")
		os.Exit(1)
	}

	log.Info().
		Str("addr", handler.Addr()).
		Str("state", handler.String()).
		Msg("capture server listening")

	// Watch with no timeout and no repeat cap: the stream runs until the
	// process exits.
	watcher, err := handler.WaitEmails(mailbox.WaitOptions{})
	if err != nil {
		log.Error().
			Err(err).
			Msg("We can't watch the capture session")
		os.Exit(1)
	}

	msgs, errs := watcher.Stream(context.Background())

	// At this point, the main goroutine blocks until there's an error.
	// Each capture is already logged by the receiver, so the stream here
	// only keeps a running total.
	var captured int
	for {
		select {
		case err := <-errs:
			log.Error().Err(err).Msg("the capture stream failed")
			os.Exit(1)
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			captured++
			log.Debug().
				Str("rid", msg.Rid).
				Int("total", captured).
				Msg("the capture session grew")
		}
	}

}
