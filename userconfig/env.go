package userconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// LoadEnv reads the SMTP endpoint from an env-format file, e.g.:
//
//	SERVER=localhost
//	PORT=1025
//
// Values in the file win. The process environment backfills only the keys
// the file leaves out, so an exported SERVER never shadows the file's.
func LoadEnv(path string) (Server, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return Server{}, fmt.Errorf("can't read the env file %v: %v", path, err)
	}

	host := v.GetString("SERVER")
	if host == "" {
		host = os.Getenv("SERVER")
	}
	if host == "" {
		return Server{}, errors.New("SERVER is not set in the env file or the environment")
	}

	port := v.GetString("PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		return Server{}, errors.New("PORT is not set in the env file or the environment")
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return Server{}, fmt.Errorf("can't parse PORT as an integer: %v", err)
	}

	return Server{Host: host, Port: p}, nil
}
