package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mailcatch/mailcatch/message"
)

// Load reads a saved directory back into a record. The metadata supplies
// the header fields, the content file supplies the body, and every other
// file in the directory comes back as an attachment with its type
// re-derived from the file name. Returns a wrapped fs.ErrNotExist when
// the directory or its required files are missing and ErrInvalidEmail
// when the directory fails validation.
func Load(dir string) (*message.Email, error) {
	ok, err := Validate(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v failed validation", ErrInvalidEmail, dir)
	}

	meta, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(dir, contentStem+meta.Extension))
	if err != nil {
		return nil, fmt.Errorf("can't read the content file: %w", err)
	}

	msg := &message.Email{
		Sender:      meta.Sender,
		Destination: meta.Destination,
		Subject:     meta.Subject,
		Content:     string(content),
		Date:        meta.Date,
		Rid:         meta.Rid,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("can't list the saved directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == metadataFile || entry.Name() == contentStem+meta.Extension {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("can't read the attachment %v: %w", entry.Name(), err)
		}
		if err := msg.AttachBytes(entry.Name(), "", payload); err != nil {
			return nil, fmt.Errorf("can't rebuild the attachment %v: %v", entry.Name(), err)
		}
	}

	return msg, nil
}
