// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"compress/gzip"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	containerMagic = "courbe-recording"

	// DefaultVersion is the container format version written when the
	// caller does not request one.
	DefaultVersion = "4.10"
)

// container is the on-disk form of a recording: one JSON document
// behind a gzip stream, written file -> gzip -> json.
type container struct {
	Magic    string             `json:"magic"`
	Version  string             `json:"version"`
	Name     string             `json:"name,omitempty"`
	Start    float64            `json:"start"`
	Channels []containerChannel `json:"channels"`
}

type containerChannel struct {
	Group      int       `json:"group"`
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit,omitempty"`
	DType      string    `json:"dtype,omitempty"`
	Timestamps []float64 `json:"timestamps"`
	Values     []float64 `json:"values"`
}

func readContainer(path string) (*container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, Error.New("%s is not a recording container: %v", filepath.Base(path), err)
	}
	defer func() { _ = gz.Close() }()

	var c container
	if err := json.NewDecoder(gz).Decode(&c); err != nil {
		return nil, Error.New("read %s: %v", filepath.Base(path), err)
	}
	if c.Magic != containerMagic {
		return nil, Error.New("%s is not a recording container", filepath.Base(path))
	}
	return &c, nil
}

func writeContainer(path string, c *container) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return Error.Wrap(err)
	}

	gz := gzip.NewWriter(f)
	encErr := json.NewEncoder(gz).Encode(c)
	gzErr := gz.Close()
	fErr := f.Close()

	switch {
	case encErr != nil:
		return Error.New("write %s: %v", filepath.Base(path), encErr)
	case gzErr != nil:
		return Error.Wrap(gzErr)
	case fErr != nil:
		return Error.Wrap(fErr)
	}
	return nil
}
