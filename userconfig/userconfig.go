package userconfig

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/alecthomas/units"

	"github.com/mailcatch/mailcatch/storage"

	yaml "gopkg.in/yaml.v2"
)

// The cap applied to inbound messages when the user doesn't choose one.
// Matches the usual ceiling of hosted SMTP services so local tests catch
// oversized mail before production does.
const defaultMaxMessageSize = 25 * units.MiB

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Server Server `yaml:"server"`
	Save   Save   `yaml:"save"`
	// Index is the optional saved-email index. Leaving the section out
	// disables indexing.
	Index *storage.KVConfig `yaml:"index"`
}

// Server holds the SMTP endpoint settings. The same host and port feed the
// receiver's bind address and the sender's target, since the tool submits
// to the endpoint it captures on. Port 0 binds an OS-assigned port, which
// suits test suites that can't reserve a fixed one. Username and Password
// only matter when submitting to a remote relay that demands them.
type Server struct {
	Host           string
	Port           int
	MaxMessageSize int64
	Username       string
	Password       string
}

// CheckAndSetDefaults validates s and either returns a copy of s with default
// settings applied or returns an error due to an invalid configuration
func (s *Server) CheckAndSetDefaults() (Server, error) {
	if s.Host == "" {
		s.Host = "localhost"
	}

	if s.Port < 0 || s.Port > 65535 {
		return Server{}, fmt.Errorf("%v is not a usable SMTP port", s.Port)
	}

	if s.MaxMessageSize < 0 {
		return Server{}, errors.New("the maximum message size can't be negative")
	}
	if s.MaxMessageSize == 0 {
		s.MaxMessageSize = int64(defaultMaxMessageSize)
	}

	return *s, nil
}

// UnmarshalYAML parses the user-provided server section, returning any
// parsing errors.
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the server config: %v", err)
	}

	s.Host = v["host"]
	s.Username = v["username"]
	s.Password = v["password"]

	p, ok := v["port"]

	if !ok {
		p = "0"
	}

	pt, err := strconv.Atoi(p)

	if err != nil {
		return fmt.Errorf("can't parse the server port as an integer: %v", err)
	}

	s.Port = pt

	m, ok := v["maxMessageSize"]

	if ok {
		b, err := units.ParseBase2Bytes(m)

		if err != nil {
			return fmt.Errorf(
				"can't parse the maximum message size (use a form like \"25MiB\"): %v",
				err,
			)
		}

		s.MaxMessageSize = int64(b)
	}

	return nil
}

// Save holds the optional on-disk persistence settings. An empty Dir leaves
// saving disabled.
type Save struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// CheckAndSetDefaults validates s and either returns a copy of s with default
// settings applied or returns an error due to an invalid configuration
func (s *Save) CheckAndSetDefaults() (Save, error) {
	s.Extension = storage.NormalizeExtension(s.Extension)
	return *s, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	sv, err := m.Server.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Server = sv

	sa, err := m.Save.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Save = sa

	// The index section validates itself while unmarshaling, so there's
	// nothing left to default here.
	c.Index = m.Index

	return c, nil

}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing or validation. The Reader r
// can be either JSON or YAML.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	var sv Server = Server{}
	if m.Server == sv {
		return &Meta{}, errors.New("must include a \"server\" section")
	}

	return &m, nil

}
