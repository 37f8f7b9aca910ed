// Package catalog loads the achievement catalog and the content directory
// from a YAML document. Documents are checked against an embedded JSON
// schema before they are turned into domain types, so structural mistakes
// are reported with a JSON pointer instead of a zero value.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

//go:embed catalog.schema.json
var schemaJSON string

//go:embed default_catalog.yaml
var defaultYAML []byte

const schemaURL = "https://heritage-hub.dev/schemas/catalog.schema.json"

// Loaded is the result of loading a catalog document.
type Loaded struct {
	Achievements *achievement.Catalog
	Items        []content.Item
}

// TotalTribes counts the tribe entries of the document.
func (l *Loaded) TotalTribes() int {
	n := 0
	for _, it := range l.Items {
		if it.Kind == shared.ContentTribe {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

type document struct {
	Version       int              `yaml:"version"`
	Tribes        []itemDoc        `yaml:"tribes"`
	Artifacts     []itemDoc        `yaml:"artifacts"`
	VRExperiences []itemDoc        `yaml:"vr_experiences"`
	Achievements  []achievementDoc `yaml:"achievements"`
}

type itemDoc struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
}

type achievementDoc struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Icon          string         `yaml:"icon"`
	Points        int            `yaml:"points"`
	Rarity        string         `yaml:"rarity"`
	Prerequisites []string       `yaml:"prerequisites"`
	UnlockDate    string         `yaml:"unlock_date"`
	ExpiryDate    string         `yaml:"expiry_date"`
	Criteria      []criterionDoc `yaml:"criteria"`
}

type criterionDoc struct {
	Kind     string   `yaml:"kind"`
	Metric   string   `yaml:"metric"`
	Min      int      `yaml:"min"`
	Minutes  int      `yaml:"minutes"`
	MinScore int      `yaml:"min_score"`
	Count    int      `yaml:"count"`
	IDs      []string `yaml:"ids"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Default loads the catalog embedded in the binary.
func Default() (*Loaded, error) {
	return LoadBytes(defaultYAML)
}

// DefaultDocument returns the embedded catalog source.
func DefaultDocument() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Load reads and loads the document at path. An empty path loads Default.
func Load(path string) (*Loaded, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes validates data against the schema and builds the domain types.
func LoadBytes(data []byte) (*Loaded, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalid("decode", err)
	}

	items, err := doc.items()
	if err != nil {
		return nil, err
	}

	defs := make([]achievement.Definition, 0, len(doc.Achievements))
	for _, a := range doc.Achievements {
		d, err := a.definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}

	cat, err := achievement.NewCatalog(defs)
	if err != nil {
		return nil, invalid("achievements", err)
	}
	return &Loaded{Achievements: cat, Items: items}, nil
}

// Validate checks data against the embedded JSON schema.
func Validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return invalid("decode", err)
	}
	if raw == nil {
		return invalid("decode", fmt.Errorf("empty document"))
	}

	// The schema validator only understands JSON-decoded values.
	normalized, err := toJSONValue(raw)
	if err != nil {
		return invalid("decode", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(normalized); err != nil {
		return invalid("schema", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add catalog schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}
	return s, nil
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (doc *document) items() ([]content.Item, error) {
	items := make([]content.Item, 0, len(doc.Tribes)+len(doc.Artifacts)+len(doc.VRExperiences))
	seen := make(map[string]shared.ContentKind)

	add := func(kind shared.ContentKind, list []itemDoc) error {
		for _, it := range list {
			if prev, dup := seen[it.ID]; dup {
				return invalid("content", fmt.Errorf("content id %q is both %s and %s", it.ID, prev, kind))
			}
			seen[it.ID] = kind
			items = append(items, content.Item{ID: it.ID, Kind: kind, Title: it.Title, Category: it.Category})
		}
		return nil
	}

	if err := add(shared.ContentTribe, doc.Tribes); err != nil {
		return nil, err
	}
	if err := add(shared.ContentArtifact, doc.Artifacts); err != nil {
		return nil, err
	}
	if err := add(shared.ContentVRExperience, doc.VRExperiences); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *achievementDoc) definition() (achievement.Definition, error) {
	rarity, err := achievement.ParseRarity(a.Rarity)
	if err != nil {
		return achievement.Definition{}, invalid(a.ID, err)
	}

	from, err := parseDate(a.UnlockDate)
	if err != nil {
		return achievement.Definition{}, invalid(a.ID+".unlock_date", err)
	}
	to, err := parseDate(a.ExpiryDate)
	if err != nil {
		return achievement.Definition{}, invalid(a.ID+".expiry_date", err)
	}
	window, err := shared.NewTimeRange(from, to)
	if err != nil {
		return achievement.Definition{}, invalid(a.ID, err)
	}

	d := achievement.Definition{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		Icon:          a.Icon,
		Points:        a.Points,
		Rarity:        rarity,
		Prerequisites: a.Prerequisites,
		Window:        window,
		Criteria:      make([]achievement.Criterion, 0, len(a.Criteria)),
	}

	for _, c := range a.Criteria {
		switch achievement.CriterionKind(c.Kind) {
		case achievement.CriterionCount:
			d.Criteria = append(d.Criteria, achievement.CountThreshold{Metric: achievement.Metric(c.Metric), Min: c.Min})
		case achievement.CriterionTime:
			d.Criteria = append(d.Criteria, achievement.TimeThreshold{MinMinutes: c.Minutes})
		case achievement.CriterionScore:
			count := c.Count
			if count == 0 {
				count = 1
			}
			d.Criteria = append(d.Criteria, achievement.ScoreThreshold{MinScore: c.MinScore, Count: count})
		case achievement.CriterionPrerequisites:
			d.Criteria = append(d.Criteria, achievement.PrerequisiteSet{IDs: c.IDs})
		default:
			return achievement.Definition{}, invalid(a.ID, fmt.Errorf("unknown criterion kind %q", c.Kind))
		}
	}
	return d, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

func invalid(where string, err error) error {
	return shared.WrapError("catalog", "Load", shared.ErrInvalidArgument, where, fmt.Errorf("%w: %w", shared.ErrInvalidCatalog, err))
}
