package userconfig

import (
	"bytes"
	"reflect"
	"testing"

	yaml "gopkg.in/yaml.v2"
)

func TestParse(t *testing.T) {
	// Asserting deep equality between the expected and actual Meta would
	// be really convoluted and brittle, so we should make sure nothing
	// fails unexpectedly and test knottier marshaling/validation situations
	// elswhere.
	testCases := []struct {
		description   string
		conf          string
		shouldBeError bool
		shouldBeEmpty bool
	}{
		{
			description:   "valid case",
			shouldBeError: false,
			shouldBeEmpty: false,
			conf: `---
server:
    host: smtp.example.com
    port: "2525"
    maxMessageSize: 10MiB
save:
    dir: ./captured
    extension: .html
index:
    storageDir: ./tempTestDir3012705204
    keyTTL: "168h"
    cleanupInterval: "10m"`,
		},
		{
			description:   "not yaml",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf:          `this is not yaml`,
		},
		{
			description:   "no server section",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
save:
    dir: ./captured`,
		},
		{
			description:   "incomplete index section",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
server:
    host: smtp.example.com
index:
    storageDir: ./tempTestDir3012705204
    keyTTL: "168h"`,
		},
		{
			description:   "server port is not a number",
			shouldBeError: true,
			shouldBeEmpty: true,
			conf: `---
server:
    host: smtp.example.com
    port: whatever`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			b := bytes.NewBuffer([]byte(tc.conf))
			m, err := Parse(b)

			if (err != nil) != tc.shouldBeError {
				t.Errorf(
					"%v: unexpected error status: wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}

			if reflect.DeepEqual(*m, Meta{}) != tc.shouldBeEmpty {
				l := map[bool]string{
					true:  "to be",
					false: "not to be",
				}
				t.Errorf(
					"%v: expected the Meta %v nil, but got the opposite",
					tc.description,
					l[tc.shouldBeEmpty],
				)
			}
		})

	}

}

func TestServer_UnmarshalYAML(t *testing.T) {
	testCases := []struct {
		description   string
		conf          string
		expected      Server
		shouldBeError bool
	}{
		{
			description: "all fields present",
			conf: `host: smtp.example.com
port: "2525"
maxMessageSize: 10MiB
username: tester
password: sekrit`,
			expected: Server{
				Host:           "smtp.example.com",
				Port:           2525,
				MaxMessageSize: 10485760,
				Username:       "tester",
				Password:       "sekrit",
			},
		},
		{
			description: "only a host",
			conf:        `host: smtp.example.com`,
			expected:    Server{Host: "smtp.example.com"},
		},
		{
			description:   "port is not a number",
			conf:          `port: whatever`,
			shouldBeError: true,
		},
		{
			description:   "size without a base-2 suffix",
			conf:          `maxMessageSize: ten-megs`,
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			var s Server
			err := yaml.Unmarshal([]byte(tc.conf), &s)

			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"%v: unexpected error status: wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}

			if !tc.shouldBeError && s != tc.expected {
				t.Errorf("%v: wanted %+v, got %+v", tc.description, tc.expected, s)
			}
		})
	}
}

func TestServer_CheckAndSetDefaults(t *testing.T) {
	testCases := []struct {
		description   string
		input         Server
		expected      Server
		shouldBeError bool
	}{
		{
			description: "empty input is all defaults",
			input:       Server{},
			expected: Server{
				Host:           "localhost",
				MaxMessageSize: 26214400,
			},
		},
		{
			description: "explicit settings survive",
			input: Server{
				Host:           "smtp.example.com",
				Port:           2525,
				MaxMessageSize: 1024,
				Username:       "tester",
				Password:       "sekrit",
			},
			expected: Server{
				Host:           "smtp.example.com",
				Port:           2525,
				MaxMessageSize: 1024,
				Username:       "tester",
				Password:       "sekrit",
			},
		},
		{
			description:   "port out of range",
			input:         Server{Port: 70000},
			shouldBeError: true,
		},
		{
			description:   "negative port",
			input:         Server{Port: -1},
			shouldBeError: true,
		},
		{
			description:   "negative size",
			input:         Server{MaxMessageSize: -5},
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			s, err := tc.input.CheckAndSetDefaults()

			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"%v: unexpected error status: wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}

			if !tc.shouldBeError && s != tc.expected {
				t.Errorf("%v: wanted %+v, got %+v", tc.description, tc.expected, s)
			}
		})
	}
}

func TestSave_CheckAndSetDefaults(t *testing.T) {
	testCases := []struct {
		description string
		input       Save
		expected    Save
	}{
		{
			description: "empty input",
			input:       Save{},
			expected:    Save{Extension: ".txt"},
		},
		{
			description: "extension without a dot",
			input:       Save{Dir: "./captured", Extension: "html"},
			expected:    Save{Dir: "./captured", Extension: ".html"},
		},
		{
			description: "uppercase extension",
			input:       Save{Dir: "./captured", Extension: ".TXT"},
			expected:    Save{Dir: "./captured", Extension: ".txt"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			s, err := tc.input.CheckAndSetDefaults()
			if err != nil {
				t.Fatal(err)
			}
			if s != tc.expected {
				t.Errorf("%v: wanted %+v, got %+v", tc.description, tc.expected, s)
			}
		})
	}
}
