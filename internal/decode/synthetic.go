// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"hash/fnv"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Synthetic is the built-in decoder backend. It reads and writes the
// container produced by Recording.Save and fabricates sample data where
// a real decoder would parse binary MF4.
type Synthetic struct{}

// NewSynthetic returns the synthetic decoder backend.
func NewSynthetic() *Synthetic { return &Synthetic{} }

// Open opens a persisted recording container.
func (s *Synthetic) Open(path string) (Recording, error) {
	c, err := readContainer(path)
	if err != nil {
		return nil, err
	}

	rec := &memRecording{name: c.Name, start: c.Start, version: c.Version}
	if rec.name == "" {
		base := filepath.Base(path)
		rec.name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	for _, ch := range c.Channels {
		rec.channels = append(rec.channels, memChannel{
			info: ChannelInfo{Group: ch.Group, Index: ch.Index, Name: ch.Name, Unit: ch.Unit, DType: ch.DType},
			ts:   ch.Timestamps,
			vals: ch.Values,
		})
	}
	return rec, nil
}

// Concatenate merges several persisted recordings into one. Inputs must
// share a single channel-name set; with sync each input is shifted to
// start where the previous one ended.
func (s *Synthetic) Concatenate(paths []string, sync bool, version string) (Recording, error) {
	if len(paths) == 0 {
		return nil, Error.New("no input files")
	}
	if version == "" {
		version = DefaultVersion
	}

	recs := make([]*memRecording, 0, len(paths))
	defer func() {
		for _, r := range recs {
			_ = r.Close()
		}
	}()
	for _, p := range paths {
		rec, err := s.Open(p)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec.(*memRecording))
	}

	names := recs[0].sortedNames()
	for i, r := range recs[1:] {
		if !equalNames(names, r.sortedNames()) {
			return nil, Error.New("channel layout mismatch: %s", filepath.Base(paths[i+1]))
		}
	}

	// One time offset per input so every channel of a file shifts by
	// the same amount.
	offsets := make([]float64, len(recs))
	if sync {
		cursor := math.NaN()
		for i, r := range recs {
			lo, hi, ok := r.timeRange()
			if !ok {
				continue
			}
			if math.IsNaN(cursor) {
				cursor = hi
				continue
			}
			offsets[i] = cursor - lo
			cursor = hi + offsets[i]
		}
	}

	out := &memRecording{name: "merged", start: recs[0].start, version: version}
	for ci, ch := range recs[0].channels {
		merged := memChannel{
			info: ChannelInfo{Group: 0, Index: ci, Name: ch.info.Name, Unit: ch.info.Unit, DType: ch.info.DType},
		}
		for i, r := range recs {
			src := r.channelByName(ch.info.Name)
			if src == nil {
				continue
			}
			for k, t := range src.ts {
				merged.ts = append(merged.ts, t+offsets[i])
				merged.vals = append(merged.vals, src.vals[k])
			}
		}
		out.channels = append(out.channels, merged)
	}
	return out, nil
}

// memRecording is the in-memory recording behind the synthetic backend.
type memRecording struct {
	mu       sync.RWMutex
	name     string
	start    float64
	version  string
	channels []memChannel
	closed   bool
}

type memChannel struct {
	info ChannelInfo
	ts   []float64
	vals []float64
}

// Channel seeds one channel of an in-memory recording.
type Channel struct {
	Name       string
	Unit       string
	DType      string
	Timestamps []float64
	Values     []float64
}

// NewRecording assembles an in-memory recording from channel seeds,
// assigning group 0 and sequential channel indexes. The sample slices
// are adopted, not copied.
func NewRecording(name string, chs []Channel) Recording {
	rec := &memRecording{name: name}
	for i, ch := range chs {
		dtype := ch.DType
		if dtype == "" {
			dtype = "float64"
		}
		rec.channels = append(rec.channels, memChannel{
			info: ChannelInfo{Group: 0, Index: i, Name: ch.Name, Unit: ch.Unit, DType: dtype},
			ts:   ch.Timestamps,
			vals: ch.Values,
		})
	}
	return rec
}

func (r *memRecording) Channels() []ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ChannelInfo, len(r.channels))
	for i, ch := range r.channels {
		infos[i] = ch.info
	}
	return infos
}

func (r *memRecording) Samples(group, index int) ([]float64, []float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, nil, Error.New("recording closed")
	}
	for _, ch := range r.channels {
		if ch.info.Group != group || ch.info.Index != index {
			continue
		}
		ts := make([]float64, len(ch.ts))
		vals := make([]float64, len(ch.vals))
		copy(ts, ch.ts)
		copy(vals, ch.vals)
		return ts, vals, nil
	}
	return nil, nil, Error.New("channel %d:%d not found", group, index)
}

func (r *memRecording) DecodeBus(dbcPath string) (Recording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, Error.New("recording closed")
	}

	var frames []float64
	for _, ch := range r.channels {
		if strings.Contains(strings.ToLower(ch.info.Name), "can_dataframe") && len(ch.ts) > 0 {
			frames = ch.ts
			break
		}
	}
	if frames == nil {
		return nil, Error.New("no bus frames in recording")
	}

	sigs, err := ParseDBC(dbcPath)
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, Error.New("no signals in bus catalog %s", filepath.Base(dbcPath))
	}

	ts := make([]float64, len(frames))
	copy(ts, frames)

	out := &memRecording{name: r.name, start: r.start, version: r.version}
	out.channels = append(out.channels, memChannel{
		info: ChannelInfo{Group: 0, Index: 0, Name: "time", Unit: "s", DType: "float64"},
		ts:   ts,
		vals: ts,
	})
	for i, sig := range sigs {
		out.channels = append(out.channels, memChannel{
			info: ChannelInfo{Group: 0, Index: i + 1, Name: sig.Name, Unit: sig.Unit, DType: "float64"},
			ts:   ts,
			vals: synthTrace(ts, sig.Name),
		})
	}
	return out, nil
}

func (r *memRecording) Filter(names []string) Recording {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := &memRecording{name: r.name, start: r.start, version: r.version}
	if r.closed {
		return out
	}

	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	for _, ch := range r.channels {
		if keep[ch.info.Name] {
			out.channels = append(out.channels, ch)
		}
	}
	return out
}

func (r *memRecording) Resample(raster float64) (Recording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, Error.New("recording closed")
	}
	if raster <= 0 || !IsFinite(raster) {
		return nil, Error.New("invalid raster %v", raster)
	}

	lo, hi, ok := r.timeRangeLocked()
	if !ok {
		return nil, Error.New("recording has no samples")
	}

	n := int(math.Floor((hi-lo)/raster+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = lo + float64(i)*raster
	}

	out := &memRecording{name: r.name, start: r.start, version: r.version}
	for _, ch := range r.channels {
		if len(ch.ts) == 0 {
			continue
		}
		out.channels = append(out.channels, memChannel{
			info: ChannelInfo{Group: 0, Index: len(out.channels), Name: ch.info.Name, Unit: ch.info.Unit, DType: ch.info.DType},
			ts:   ts,
			vals: Interpolate(ts, ch.ts, ch.vals),
		})
	}
	return out, nil
}

func (r *memRecording) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Error.New("recording closed")
	}

	version := r.version
	if version == "" {
		version = DefaultVersion
	}
	c := &container{Magic: containerMagic, Version: version, Name: r.name, Start: r.start}
	for _, ch := range r.channels {
		c.Channels = append(c.Channels, containerChannel{
			Group:      ch.info.Group,
			Index:      ch.info.Index,
			Name:       ch.info.Name,
			Unit:       ch.info.Unit,
			DType:      ch.info.DType,
			Timestamps: ch.ts,
			Values:     ch.vals,
		})
	}
	return writeContainer(path, c)
}

func (r *memRecording) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for i := range r.channels {
		r.channels[i].ts = nil
		r.channels[i].vals = nil
	}
	return nil
}

func (r *memRecording) channelByName(name string) *memChannel {
	for i := range r.channels {
		if r.channels[i].info.Name == name {
			return &r.channels[i]
		}
	}
	return nil
}

func (r *memRecording) sortedNames() []string {
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.info.Name
	}
	sort.Strings(names)
	return names
}

func (r *memRecording) timeRange() (lo, hi float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeRangeLocked()
}

func (r *memRecording) timeRangeLocked() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, ch := range r.channels {
		if len(ch.ts) == 0 {
			continue
		}
		lo = math.Min(lo, ch.ts[0])
		hi = math.Max(hi, ch.ts[len(ch.ts)-1])
		ok = true
	}
	return lo, hi, ok
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// synthTrace fabricates a deterministic trace for a decoded bus signal:
// an offset sinusoid whose shape derives from the signal name, with a
// small seeded noise term.
func synthTrace(ts []float64, name string) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()

	rng := rand.New(rand.NewSource(int64(sum)))
	base := float64(sum%1000) / 4
	amp := 1 + float64((sum>>16)%60)
	period := 20 + float64((sum>>24)%300)

	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = base + amp*math.Sin(2*math.Pi*t/period) + rng.NormFloat64()*amp*0.02
	}
	return out
}
