package message

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const fallbackContentType = "application/octet-stream"

// Attachment holds one attachment's declared content type and raw payload.
// MainType and SubType are the two halves of ContentType, split once here
// so downstream code never re-parses the header.
type Attachment struct {
	ContentType string
	MainType    string
	SubType     string
	Payload     []byte
}

// AttachBytes adds an in-memory payload as an attachment under the given
// name. An empty contentType is guessed from the name's extension, falling
// back to application/octet-stream. Returns ErrInvalidInput for a blank
// name or a content type that can't be parsed.
func (e *Email) AttachBytes(name, contentType string, payload []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: attachment name must not be blank", ErrInvalidInput)
	}
	if contentType == "" {
		contentType = typeByName(name)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: can't parse the content type %q: %v", ErrInvalidInput, contentType, err)
	}
	main, sub, ok := strings.Cut(mt, "/")
	if !ok {
		return fmt.Errorf("%w: the content type %q has no subtype", ErrInvalidInput, mt)
	}
	if e.Attachments == nil {
		e.Attachments = map[string]Attachment{}
	}
	e.Attachments[name] = Attachment{
		ContentType: mt,
		MainType:    main,
		SubType:     sub,
		Payload:     payload,
	}
	return nil
}

// AttachFile reads the file at path and adds it as an attachment. The
// attachment keeps the given name, or the file's base name when name is
// empty. The content type is guessed from the file's extension.
func (e *Email) AttachFile(name, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read the attachment file: %w", err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return e.AttachBytes(name, typeByName(path), payload)
}

func typeByName(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return fallbackContentType
}
