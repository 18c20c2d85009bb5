// Package ingest reads the collaborator tables the calibration core consumes:
// snow-pit summaries, density-cutter measurements, and pre-parsed profile
// exports. Raw SMP file parsing and signal decomposition happen upstream;
// this edge only carries already-derived columns.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cryodata/density.report/internal/smp"
)

// header maps column names (lower-cased, trimmed) to their index.
type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := make(header, len(record))
	for i, name := range record {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h, nil
}

func (h header) field(record []string, name string) (string, error) {
	i, ok := h[name]
	if !ok {
		return "", fmt.Errorf("missing column %q", name)
	}
	if i >= len(record) {
		return "", fmt.Errorf("short record: no value for column %q", name)
	}
	return strings.TrimSpace(record[i]), nil
}

func (h header) float(record []string, name string) (float64, error) {
	s, err := h.field(record, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: invalid float %q: %w", name, s, err)
	}
	return v, nil
}

// LoadPitRecords reads the snow-pit summary table. Expected columns:
// site_id, campaign, ice_type, lat, lon, thickness_mm.
func LoadPitRecords(path string) (map[string]smp.PitRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pit table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string]smp.PitRecord)
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pit table line %d: %w", line, err)
		}

		var rec smp.PitRecord
		if rec.SiteID, err = h.field(record, "site_id"); err != nil {
			return nil, fmt.Errorf("pit table line %d: %w", line, err)
		}
		rec.Campaign, _ = h.field(record, "campaign")
		rec.IceType, _ = h.field(record, "ice_type")
		rec.Lat, _ = h.float(record, "lat")
		rec.Lon, _ = h.float(record, "lon")
		if rec.ThicknessMM, err = h.float(record, "thickness_mm"); err != nil {
			return nil, fmt.Errorf("pit table line %d: %w", line, err)
		}
		out[rec.SiteID] = rec
	}
	return out, nil
}

// LoadCutterSamples reads the manual density-cutter table, keyed by site id.
// Expected columns: site_id, top_depth_mm, density_kg_m3, layer_type.
func LoadCutterSamples(path string) (map[string][]smp.CutterSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cutter table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]smp.CutterSample)
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cutter table line %d: %w", line, err)
		}

		var c smp.CutterSample
		if c.SiteID, err = h.field(record, "site_id"); err != nil {
			return nil, fmt.Errorf("cutter table line %d: %w", line, err)
		}
		if c.TopDepthMM, err = h.float(record, "top_depth_mm"); err != nil {
			return nil, fmt.Errorf("cutter table line %d: %w", line, err)
		}
		if c.Density, err = h.float(record, "density_kg_m3"); err != nil {
			return nil, fmt.Errorf("cutter table line %d: %w", line, err)
		}
		layer, _ := h.field(record, "layer_type")
		c.Layer = smp.LayerType(layer)
		out[c.SiteID] = append(out[c.SiteID], c)
	}
	return out, nil
}

// LoadProfile reads one pre-parsed profile export. Expected columns:
// depth_mm, force_n, struct_len_mm and optionally density_kg_m3. The site id
// is taken from the file name without extension.
func LoadProfile(path string) (*smp.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	_, hasDensity := h["density_kg_m3"]

	p := &smp.Profile{
		SiteID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	if hasDensity {
		p.Density = []float64{}
	}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("profile %s line %d: %w", p.SiteID, line, err)
		}

		d, err := h.float(record, "depth_mm")
		if err != nil {
			return nil, fmt.Errorf("profile %s line %d: %w", p.SiteID, line, err)
		}
		force, err := h.float(record, "force_n")
		if err != nil {
			return nil, fmt.Errorf("profile %s line %d: %w", p.SiteID, line, err)
		}
		sl, err := h.float(record, "struct_len_mm")
		if err != nil {
			return nil, fmt.Errorf("profile %s line %d: %w", p.SiteID, line, err)
		}

		p.Depth = append(p.Depth, d)
		p.Force = append(p.Force, force)
		p.StructLen = append(p.StructLen, sl)
		if hasDensity {
			rho, err := h.float(record, "density_kg_m3")
			if err != nil {
				return nil, fmt.Errorf("profile %s line %d: %w", p.SiteID, line, err)
			}
			p.Density = append(p.Density, rho)
		}
	}
	return p, nil
}

// LoadProfileDir loads every .csv profile export under dir, sorted by file
// name.
func LoadProfileDir(dir string) ([]*smp.Profile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list profile directory: %w", err)
	}

	out := make([]*smp.Profile, 0, len(paths))
	for _, path := range paths {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
