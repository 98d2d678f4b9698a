package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/mailcatch/mailcatch/message"
)

// ErrNoSavePath indicates a save was attempted before a base directory
// was configured.
var ErrNoSavePath = errors.New("no save path configured")

const (
	metadataFile = "metadata.json"
	contentStem  = "content"

	// DefaultExtension is the content file extension used when none is
	// configured.
	DefaultExtension = ".txt"
)

// Emaildir writes captured emails under a base directory: one
// subdirectory per destination, one per subject beneath it, with the
// content body, the attachments, and a metadata.json in each leaf.
// Destination directories are shared between saves; subject directories
// are never reused, so nothing is ever overwritten.
type Emaildir struct {
	base  string
	ext   string
	index KeyValue
}

// NewEmaildir creates the base directory and returns an Emaildir writing
// beneath it. A nil index disables hash lookups without changing any call
// sites. Returns ErrNoSavePath when base is empty.
func NewEmaildir(base, extension string, index KeyValue) (*Emaildir, error) {
	if base == "" {
		return nil, fmt.Errorf("%w: must supply a base directory", ErrNoSavePath)
	}
	if index == nil {
		index = &NoOpDB{}
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("can't create the save directory %v: %v", base, err)
	}
	return &Emaildir{
		base:  base,
		ext:   NormalizeExtension(extension),
		index: index,
	}, nil
}

// NormalizeExtension lowercases an extension and gives it a leading dot,
// defaulting to .txt when empty.
func NormalizeExtension(ext string) string {
	if ext == "" {
		return DefaultExtension
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Base returns the configured base directory.
func (e *Emaildir) Base() string {
	return e.base
}

// Extension returns the content file extension, dot included.
func (e *Emaildir) Extension() string {
	return e.ext
}

// Save writes one record to disk and returns the directory it landed in.
// The record itself is not modified; the stored hash is recomputed from
// the record's current fields.
func (e *Emaildir) Save(msg *message.Email) (string, error) {
	if e == nil || e.base == "" {
		return "", fmt.Errorf("%w: must configure a save directory first", ErrNoSavePath)
	}

	destDir := filepath.Join(e.base, SanitizeName(strings.Join(msg.Destination, "")))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("can't create the destination directory: %v", err)
	}

	subjectDir := filepath.Join(destDir, freeDirName(destDir, SanitizeName(msg.Subject)))
	if err := os.Mkdir(subjectDir, 0o755); err != nil {
		return "", fmt.Errorf("can't create the message directory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(subjectDir, contentStem+e.ext), []byte(msg.Content), 0o644); err != nil {
		return "", fmt.Errorf("can't write the content file: %v", err)
	}

	meta := metadata{
		Subject:       msg.Subject,
		Sender:        msg.Sender,
		Destination:   msg.Destination,
		Date:          msg.Date,
		Rid:           msg.Rid,
		ContentLength: utf8.RuneCountInString(strings.TrimSpace(msg.Content)),
		Extension:     e.ext,
		Hash:          msg.IdentityHash(),
	}

	for _, name := range attachmentNames(msg) {
		att := msg.Attachments[name]
		fileName := freeFileName(subjectDir, SanitizeName(name)+guessExtension(att.ContentType))
		if err := os.WriteFile(filepath.Join(subjectDir, fileName), att.Payload, 0o644); err != nil {
			return "", fmt.Errorf("can't write the attachment %v: %v", name, err)
		}
		sum := sha256.Sum256(att.Payload)
		meta.Attachments = append(meta.Attachments, attachmentMeta{
			Name: fileName,
			Type: att.ContentType,
			Hash: hex.EncodeToString(sum[:]),
		})
	}

	if err := writeMetadata(filepath.Join(subjectDir, metadataFile), &meta); err != nil {
		return "", err
	}

	// The directory on disk is the contract; a failed index write only
	// costs the hash lookup.
	if err := e.index.Put(KVEntry{Key: []byte(meta.Hash), Value: []byte(subjectDir)}); err != nil {
		log.Debug().Err(err).Str("dir", subjectDir).Msg("the saved email was not indexed")
	}

	return subjectDir, nil
}

// LookupSaved resolves an identity hash to the directory its record was
// saved under, via the index.
func (e *Emaildir) LookupSaved(hash string) (string, error) {
	entry, err := e.index.Read([]byte(hash))
	if err != nil {
		return "", fmt.Errorf("no saved email indexed under %v: %v", hash, err)
	}
	return string(entry.Value), nil
}

// metadata mirrors the metadata.json schema. Field order here is field
// order on disk.
type metadata struct {
	Subject       string           `json:"subject"`
	Sender        string           `json:"sender"`
	Destination   []string         `json:"destination"`
	Date          string           `json:"date"`
	Rid           string           `json:"rid"`
	ContentLength int              `json:"content_length"`
	Extension     string           `json:"extension"`
	Hash          string           `json:"hash"`
	Attachments   []attachmentMeta `json:"attachments,omitempty"`
}

type attachmentMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Hash string `json:"hash"`
}

func writeMetadata(path string, meta *metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create the metadata file: %v", err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return fmt.Errorf("can't write the metadata file: %v", err)
	}
	return f.Close()
}

func readMetadata(dir string) (*metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("can't read the metadata file: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("can't parse the metadata file: %v", err)
	}
	return &meta, nil
}

func attachmentNames(msg *message.Email) []string {
	names := make([]string, 0, len(msg.Attachments))
	for name := range msg.Attachments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// preferredExtensions pins common types to one canonical extension, since
// mime.ExtensionsByType orders its results differently across systems.
var preferredExtensions = map[string]string{
	"text/plain":       ".txt",
	"text/html":        ".html",
	"text/csv":         ".csv",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"application/pdf":  ".pdf",
	"application/json": ".json",
	"application/zip":  ".zip",
}

// guessExtension maps a declared content type to a file extension,
// falling back to .bin when the type is unknown.
func guessExtension(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := preferredExtensions[mt]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	sort.Strings(exts)
	return exts[0]
}
