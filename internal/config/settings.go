// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultDatabase   = "llamaindex_db"
	DefaultCollection = "test"
	DefaultIndexName  = "vector_index"

	DefaultEmbeddingModel = "text-embedding-ada-002"

	// FillOutMessage is shown whenever a required form field is empty.
	FillOutMessage = "Please fill out all fields."
)

var ErrFieldsMissing = errors.New("required fields missing")

// MissingFieldsError lists the labels of every empty required field.
type MissingFieldsError struct {
	Fields []string
}

func (e MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFieldsMissing, strings.Join(e.Fields, ", "))
}

func (e MissingFieldsError) Unwrap() error {
	return ErrFieldsMissing
}

// Settings holds the values a user enters in the form before
// documents can be indexed and queried.
type Settings struct {
	APIKey      string `json:"api_key" yaml:"api_key"`
	ConnString  string `json:"conn_string" yaml:"conn_string"`
	Database    string `json:"database" yaml:"database"`
	Collection  string `json:"collection" yaml:"collection"`
	ProjectID   string `json:"project_id" yaml:"project_id"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	AccessToken string `json:"access_token,omitempty" yaml:"access_token"`
}

func DefaultSettings() Settings {
	return Settings{
		Database:   DefaultDatabase,
		Collection: DefaultCollection,
	}
}

type field struct {
	label string
	value string
}

func (s Settings) required() []field {
	return []field{
		{"OpenAI API Key", s.APIKey},
		{"MongoDB Atlas Connection String", s.ConnString},
		{"Database", s.Database},
		{"Collection", s.Collection},
		{"GCP Project ID", s.ProjectID},
		{"GCS Bucket", s.Bucket},
	}
}

// Missing returns the labels of the required fields that are empty.
func (s Settings) Missing() []string {
	missing := make([]string, 0)
	for _, f := range s.required() {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.label)
		}
	}
	return missing
}

// Validate reports a MissingFieldsError if any required field is empty.
func (s Settings) Validate() error {
	missing := s.Missing()
	if len(missing) > 0 {
		return MissingFieldsError{Fields: missing}
	}
	return nil
}

// Normalize trims surrounding whitespace from every field.
func (s Settings) Normalize() Settings {
	return Settings{
		APIKey:      strings.TrimSpace(s.APIKey),
		ConnString:  strings.TrimSpace(s.ConnString),
		Database:    strings.TrimSpace(s.Database),
		Collection:  strings.TrimSpace(s.Collection),
		ProjectID:   strings.TrimSpace(s.ProjectID),
		Bucket:      strings.TrimSpace(s.Bucket),
		AccessToken: strings.TrimSpace(s.AccessToken),
	}
}

// Merge fills the empty fields of s with the values from other.
func (s Settings) Merge(other Settings) Settings {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Settings{
		APIKey:      pick(s.APIKey, other.APIKey),
		ConnString:  pick(s.ConnString, other.ConnString),
		Database:    pick(s.Database, other.Database),
		Collection:  pick(s.Collection, other.Collection),
		ProjectID:   pick(s.ProjectID, other.ProjectID),
		Bucket:      pick(s.Bucket, other.Bucket),
		AccessToken: pick(s.AccessToken, other.AccessToken),
	}
}

// Redacted returns a copy safe to log.
func (s Settings) Redacted() Settings {
	r := s
	r.APIKey = mask(s.APIKey)
	r.ConnString = mask(s.ConnString)
	r.AccessToken = mask(s.AccessToken)
	return r
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****"
}
