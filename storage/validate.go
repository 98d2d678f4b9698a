package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mailcatch/mailcatch/message"
)

// ErrInvalidEmail indicates a saved directory that exists but fails
// integrity validation.
var ErrInvalidEmail = errors.New("saved email failed validation")

var hashShape = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Validate checks a saved directory's integrity: the metadata must
// conform to the schema, every declared attachment must exist with a
// matching payload hash, and the identity hash recomputed from the saved
// fields must equal the recorded one. Only a missing path (the directory,
// its metadata, or its content file) is an error; every integrity
// mismatch just returns false.
func Validate(dir string) (bool, error) {
	if _, err := os.Stat(dir); err != nil {
		return false, fmt.Errorf("can't validate %v: %w", dir, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return false, fmt.Errorf("can't read the metadata file: %w", err)
	}

	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, nil
	}
	if !conformsToSchema(fields) {
		return false, nil
	}

	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return false, nil
	}

	content, err := os.ReadFile(filepath.Join(dir, contentStem+meta.Extension))
	if err != nil {
		return false, fmt.Errorf("can't read the content file: %w", err)
	}

	for _, att := range meta.Attachments {
		payload, err := os.ReadFile(filepath.Join(dir, att.Name))
		if err != nil {
			return false, nil
		}
		sum := sha256.Sum256(payload)
		if hex.EncodeToString(sum[:]) != att.Hash {
			return false, nil
		}
	}

	rebuilt := message.Email{
		Sender:      meta.Sender,
		Destination: meta.Destination,
		Subject:     meta.Subject,
		Content:     string(content),
		Date:        meta.Date,
	}
	return rebuilt.IdentityHash() == meta.Hash, nil
}

// requiredMetadataFields maps each required metadata key to a check of
// its type.
var requiredMetadataFields = map[string]func(interface{}) bool{
	"subject":        isString,
	"sender":         isString,
	"destination":    isStringList,
	"date":           isString,
	"rid":            isString,
	"content_length": isNumber,
	"extension":      isString,
	"hash": func(v interface{}) bool {
		s, ok := v.(string)
		return ok && hashShape.MatchString(s)
	},
}

// conformsToSchema checks the decoded metadata object: every required
// field present with the right type, attachments well-shaped when
// present, and nothing else.
func conformsToSchema(fields map[string]interface{}) bool {
	for name, validType := range requiredMetadataFields {
		v, ok := fields[name]
		if !ok || !validType(v) {
			return false
		}
	}

	for name := range fields {
		if _, ok := requiredMetadataFields[name]; !ok && name != "attachments" {
			return false
		}
	}

	atts, ok := fields["attachments"]
	if !ok {
		return true
	}
	list, ok := atts.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok || len(entry) != 3 {
			return false
		}
		if !isString(entry["name"]) || !isString(entry["type"]) || !isString(entry["hash"]) {
			return false
		}
	}
	return true
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func isStringList(v interface{}) bool {
	list, ok := v.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if !isString(item) {
			return false
		}
	}
	return true
}

func isNumber(v interface{}) bool {
	_, ok := v.(float64)
	return ok
}
