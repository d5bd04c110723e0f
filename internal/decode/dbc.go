// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"bufio"
	"os"
	"strings"
)

// BusSignal is one signal declared in a DBC catalog.
type BusSignal struct {
	Message string
	Name    string
	Unit    string
}

// ParseDBC extracts the signal catalog from a DBC file: message names
// from BO_ lines, signal names and units from the SG_ lines that
// follow. Bit layout, scaling, and receiver lists are ignored. A
// signal name declared more than once keeps its first declaration.
func ParseDBC(path string) ([]BusSignal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = f.Close() }()

	var (
		sigs    []BusSignal
		message string
		seen    = make(map[string]bool)
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "BO_ "):
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				message = strings.TrimSuffix(fields[2], ":")
			}
		case strings.HasPrefix(line, "SG_ "):
			name, unit, ok := parseSignalLine(line)
			if ok && !seen[name] {
				seen[name] = true
				sigs = append(sigs, BusSignal{Message: message, Name: name, Unit: unit})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return sigs, nil
}

// parseSignalLine pulls the signal name and unit out of one SG_ line:
//
//	SG_ Name [mux] : start|len@order+ (scale,offset) [min|max] "unit" receivers
func parseSignalLine(line string) (name, unit string, ok bool) {
	rest := strings.TrimPrefix(line, "SG_ ")
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", "", false
	}
	head := strings.Fields(rest[:colon])
	if len(head) == 0 {
		return "", "", false
	}
	name = head[0]

	tail := rest[colon:]
	if i := strings.Index(tail, `"`); i >= 0 {
		if j := strings.Index(tail[i+1:], `"`); j >= 0 {
			unit = tail[i+1 : i+1+j]
		}
	}
	return name, unit, true
}
