package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Slot is a named, typed piece of information a conversation can carry.
type Slot struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
}

func (s Slot) Key() string { return s.Name }

// Intent declares what a user goal needs to start and what it must produce.
type Intent struct {
	Name                string   `yaml:"name" json:"name"`
	Description         string   `yaml:"description" json:"description"`
	RequiredSlots       []string `yaml:"required_slots" json:"required_slots"`
	OptionalSlots       []string `yaml:"optional_slots" json:"optional_slots"`
	RequiredResultSlots []string `yaml:"required_result_slots" json:"required_result_slots"`
	OptionalResultSlots []string `yaml:"optional_result_slots" json:"optional_result_slots"`
}

func (i Intent) Key() string { return i.Name }

// IsRequired reports whether slot is one of the intent's required input slots.
func (i Intent) IsRequired(slot string) bool {
	return slices.Contains(i.RequiredSlots, slot)
}

// Accepts reports whether slot is a required or optional input slot of the intent.
func (i Intent) Accepts(slot string) bool {
	return i.IsRequired(slot) || slices.Contains(i.OptionalSlots, slot)
}

// DialogAct is the communicative function of a user turn.
type DialogAct struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

func (d DialogAct) Key() string { return d.Name }

// File is the on-disk catalog layout.
type File struct {
	Slots      []Slot      `yaml:"slots"`
	Intents    []Intent    `yaml:"intents"`
	DialogActs []DialogAct `yaml:"dialog_acts"`
}

// Catalog is the immutable set of known slots, intents and dialog acts.
type Catalog struct {
	slots   Lookup[Slot]
	intents Lookup[Intent]
	acts    Lookup[DialogAct]
}

// Load parses a YAML catalog and checks that every slot an intent refers to is declared.
func Load(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(f)
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Load(data)
}

// New builds a catalog from already decoded definitions.
func New(f File) (*Catalog, error) {
	c := &Catalog{
		slots:   NewLookup(f.Slots),
		intents: NewLookup(f.Intents),
		acts:    NewLookup(f.DialogActs),
	}
	if c.intents.Len() == 0 {
		return nil, fmt.Errorf("catalog declares no intents")
	}
	for _, in := range c.intents.All() {
		refs := [][]string{in.RequiredSlots, in.OptionalSlots, in.RequiredResultSlots, in.OptionalResultSlots}
		for _, group := range refs {
			for _, name := range group {
				if _, ok := c.slots.Find(name); !ok {
					return nil, fmt.Errorf("intent %q refers to undeclared slot %q", in.Name, name)
				}
			}
		}
	}
	return c, nil
}

// Default returns the built-in catalog. It panics if the embedded file is broken.
func Default() *Catalog {
	c, err := Load(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

func (c *Catalog) SlotByName(name string) (Slot, bool)           { return c.slots.Find(name) }
func (c *Catalog) IntentByName(name string) (Intent, bool)       { return c.intents.Find(name) }
func (c *Catalog) DialogActByName(name string) (DialogAct, bool) { return c.acts.Find(name) }

func (c *Catalog) Slots() []Slot           { return c.slots.All() }
func (c *Catalog) Intents() []Intent       { return c.intents.All() }
func (c *Catalog) DialogActs() []DialogAct { return c.acts.All() }

func (c *Catalog) SlotNames() []string      { return c.slots.Names() }
func (c *Catalog) IntentNames() []string    { return c.intents.Names() }
func (c *Catalog) DialogActNames() []string { return c.acts.Names() }
