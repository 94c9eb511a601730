// Package geo resolves postcodes to constituencies.
package geo

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

type entry struct {
	signature.Constituency `yaml:",inline"`
	Postcodes              []string `yaml:"postcodes"`
}

type document struct {
	Constituencies []entry `yaml:"constituencies"`
}

// StaticResolver looks postcodes up in a table loaded once at startup. A full postcode
// entry wins over its outward code.
type StaticResolver struct {
	byPostcode map[string]*signature.Constituency
}

// Load reads a constituency table from a YAML file.
func Load(path string) (*StaticResolver, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constituency table: %w", err)
	}
	return Parse(buf)
}

// Parse builds a resolver from YAML of the form
//
//	constituencies:
//	  - id: W07000050
//	    name: Cardiff Central
//	    region: W92000004
//	    postcodes: [CF10, CF24 0AB]
func Parse(buf []byte) (*StaticResolver, error) {
	var doc document
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("parse constituency table: %w", err)
	}
	r := &StaticResolver{byPostcode: make(map[string]*signature.Constituency)}
	for i := range doc.Constituencies {
		e := &doc.Constituencies[i]
		if e.ID == "" {
			return nil, fmt.Errorf("constituency %d has no id", i)
		}
		for _, pc := range e.Postcodes {
			key := signature.NormalizePostcode(pc)
			if prev, ok := r.byPostcode[key]; ok && prev.ID != e.ID {
				return nil, fmt.Errorf("postcode %s is mapped to both %s and %s", key, prev.ID, e.ID)
			}
			r.byPostcode[key] = &e.Constituency
		}
	}
	return r, nil
}

// Resolve returns nil when the postcode is unknown.
func (r *StaticResolver) Resolve(_ context.Context, postcode string) (*signature.Constituency, error) {
	pc := signature.NormalizePostcode(postcode)
	if pc == "" {
		return nil, nil
	}
	if c, ok := r.byPostcode[pc]; ok {
		return c, nil
	}
	if len(pc) > 3 {
		if c, ok := r.byPostcode[pc[:len(pc)-3]]; ok {
			return c, nil
		}
	}
	return nil, nil
}

// Len returns the number of postcode entries.
func (r *StaticResolver) Len() int {
	return len(r.byPostcode)
}
