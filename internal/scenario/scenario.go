// Package scenario interprets YAML-scripted crawls through the crawl DSL. A
// scenario names a start URL and a tree of steps mirroring the DSL verbs; the
// runner walks the tree against a live session and collects every extracted
// field into a batch for the store.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JoeyJohnson82/ScCrawler/crawl"
)

// Scenario is one scripted crawl: where to start and what to do there. Steps
// run inside the start page's scope. Then runs after that scope has fully
// unwound, which is where a node exposed during Steps is the current scope;
// it is the scenario form of the DSL's "subsequent top-level statements".
type Scenario struct {
	Name     string `yaml:"name"`
	StartURL string `yaml:"start_url"`
	Steps    []Step `yaml:"steps"`
	Then     []Step `yaml:"then,omitempty"`
}

// Step is a single scenario instruction. Exactly one verb field may be set.
// The scoping verbs (in, for_all, on_current_page) carry nested steps that run
// inside the scope they open; the leaf verbs (type, click, extract, expose)
// act on or from the current scope. A click may optionally carry nested steps
// that run against the page the click navigated to.
type Step struct {
	In            *TargetSpec  `yaml:"in,omitempty"`
	ForAll        *TargetSpec  `yaml:"for_all,omitempty"`
	Expose        *TargetSpec  `yaml:"expose,omitempty"`
	OnCurrentPage bool         `yaml:"on_current_page,omitempty"`
	Type          *string      `yaml:"type,omitempty"`
	Click         bool         `yaml:"click,omitempty"`
	Extract       *ExtractSpec `yaml:"extract,omitempty"`

	Steps []Step `yaml:"steps,omitempty"`
}

// TargetSpec is the YAML form of a crawl.Target: an element kind plus exactly
// one descriptor field.
type TargetSpec struct {
	Kind  string `yaml:"kind"`
	ID    string `yaml:"id,omitempty"`
	Name  string `yaml:"name,omitempty"`
	Title string `yaml:"title,omitempty"`
	Path  string `yaml:"path,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

// ExtractSpec captures one field from the page. With From unset the value
// comes from the current scope node; otherwise the target is resolved without
// scoping, the DSL's pure-query path. Attr selects an attribute instead of
// the node's text content.
type ExtractSpec struct {
	Field string      `yaml:"field"`
	Attr  string      `yaml:"attr,omitempty"`
	From  *TargetSpec `yaml:"from,omitempty"`
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ParseFile reads and parses the scenario at path.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file '%s': %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario file '%s': %w", path, err)
	}
	return sc, nil
}

// Validate checks the structural rules the YAML schema cannot express.
func (sc *Scenario) Validate() error {
	if sc.StartURL == "" {
		return fmt.Errorf("scenario is missing start_url")
	}
	if err := validateSteps(sc.Steps, "steps"); err != nil {
		return err
	}
	return validateSteps(sc.Then, "then")
}

func validateSteps(steps []Step, at string) error {
	for i, step := range steps {
		where := fmt.Sprintf("%s[%d]", at, i)
		if err := step.validate(where); err != nil {
			return err
		}
	}
	return nil
}

func (s *Step) validate(where string) error {
	verbs := 0
	scoping := false
	if s.In != nil {
		verbs++
		scoping = true
		if err := s.In.validate(where + ".in"); err != nil {
			return err
		}
	}
	if s.ForAll != nil {
		verbs++
		scoping = true
		if err := s.ForAll.validate(where + ".for_all"); err != nil {
			return err
		}
		if s.ForAll.Path == "" {
			return fmt.Errorf("%s: for_all requires a path descriptor", where)
		}
	}
	if s.OnCurrentPage {
		verbs++
		scoping = true
	}
	if s.Expose != nil {
		verbs++
		if err := s.Expose.validate(where + ".expose"); err != nil {
			return err
		}
	}
	if s.Type != nil {
		verbs++
	}
	if s.Click {
		verbs++
	}
	if s.Extract != nil {
		verbs++
		if s.Extract.Field == "" {
			return fmt.Errorf("%s: extract requires a field name", where)
		}
		if s.Extract.From != nil {
			if err := s.Extract.From.validate(where + ".extract.from"); err != nil {
				return err
			}
		}
	}

	if verbs != 1 {
		return fmt.Errorf("%s: a step takes exactly one verb, got %d", where, verbs)
	}
	if len(s.Steps) > 0 && !scoping && !s.Click {
		return fmt.Errorf("%s: nested steps are only valid under a scoping verb or a click", where)
	}
	return validateSteps(s.Steps, where+".steps")
}

func (t *TargetSpec) validate(where string) error {
	if _, err := t.Target(); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

// Target converts the spec into the DSL's kind+descriptor pair. Whether the
// pair is actually resolvable is the resolution table's verdict, not ours;
// this only rejects unknown kinds and zero-or-many descriptor fields.
func (t *TargetSpec) Target() (crawl.Target, error) {
	desc, err := t.descriptor()
	if err != nil {
		return crawl.Target{}, err
	}
	switch t.Kind {
	case "form":
		return crawl.Form(desc), nil
	case "text_field":
		return crawl.TextField(desc), nil
	case "submit":
		return crawl.SubmitControl(desc), nil
	case "link":
		return crawl.Anchor(desc), nil
	case "image":
		return crawl.Image(desc), nil
	case "container":
		return crawl.Container(desc), nil
	case "area":
		return crawl.Area(desc), nil
	default:
		return crawl.Target{}, fmt.Errorf("unknown element kind '%s'", t.Kind)
	}
}

func (t *TargetSpec) descriptor() (crawl.Descriptor, error) {
	var (
		desc crawl.Descriptor
		set  int
	)
	if t.ID != "" {
		desc = crawl.ByID(t.ID)
		set++
	}
	if t.Name != "" {
		desc = crawl.ByName(t.Name)
		set++
	}
	if t.Title != "" {
		desc = crawl.ByTitle(t.Title)
		set++
	}
	if t.Path != "" {
		desc = crawl.ByPath(t.Path)
		set++
	}
	if t.Text != "" {
		desc = crawl.ByText(t.Text)
		set++
	}
	if set != 1 {
		return crawl.Descriptor{}, fmt.Errorf("a target takes exactly one of id, name, title, path, text; got %d", set)
	}
	return desc, nil
}
