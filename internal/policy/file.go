package policy

import (
	"encoding/json"
	"os"
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
)

// LoadFile reads a policy document from a JSON file. Missing optional
// fields are filled with defaults; a document without a version or any
// articles is rejected.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read policy file %s", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse policy file %s", path)
	}

	if doc.Version < 1 {
		return nil, errors.NewValidationError("policy document needs a version of 1 or higher").
			WithField("version").WithValue(doc.Version)
	}
	if len(doc.Articles) == 0 {
		return nil, errors.NewValidationError("policy document needs at least one article").
			WithField("articles")
	}
	if doc.ID == "" {
		doc.ID = "constitution"
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	return &doc, nil
}
