package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/util"
)

// DefaultService is returned when nothing in the catalog matches.
const DefaultService = "General Consultation"

// DefaultServiceCode is the procedure code shared by every catalog entry.
const DefaultServiceCode = "0190"

type MatchMethod string

const (
	MatchExact   MatchMethod = "exact"
	MatchSynonym MatchMethod = "synonym"
	MatchFuzzy   MatchMethod = "fuzzy"
	MatchDefault MatchMethod = "default"
)

type entry struct {
	name    string
	mapping internal.ServiceMapping
}

type synonym struct {
	alias  string
	target string
}

// Catalog maps service names to billing codes and prices. It is populated
// at startup and read-only afterwards.
type Catalog struct {
	byKey    map[string]int
	entries  []entry
	synonyms []synonym
}

func New() *Catalog {
	c := &Catalog{byKey: map[string]int{}}
	for _, e := range builtinServices {
		c.Register(e.name, e.mapping)
	}
	for _, s := range builtinSynonyms {
		c.AddSynonym(s.alias, s.target)
	}
	return c
}

// Register adds or replaces a service mapping.
func (c *Catalog) Register(name string, mapping internal.ServiceMapping) {
	name = util.NormalizeSpaces(name)
	if name == "" {
		return
	}
	if mapping.Code == "" {
		mapping.Code = DefaultServiceCode
	}
	if mapping.Description == "" {
		mapping.Description = name
	}
	key := strings.ToLower(name)
	if idx, ok := c.byKey[key]; ok {
		c.entries[idx] = entry{name: name, mapping: mapping}
		return
	}
	c.byKey[key] = len(c.entries)
	c.entries = append(c.entries, entry{name: name, mapping: mapping})
}

// AddSynonym maps an informal alias onto a registered service name.
func (c *Catalog) AddSynonym(alias, target string) {
	alias = util.NormalizeKey(alias)
	if alias == "" {
		return
	}
	c.synonyms = append(c.synonyms, synonym{alias: alias, target: target})
}

// Lookup resolves a free-form service name: exact, then synonym, then
// substring match against catalog names, then the default service.
func (c *Catalog) Lookup(name string) (string, internal.ServiceMapping, MatchMethod) {
	key := util.NormalizeKey(name)
	if key == "" {
		return c.fallback()
	}

	if idx, ok := c.byKey[key]; ok {
		e := c.entries[idx]
		return e.name, e.mapping, MatchExact
	}

	for _, s := range c.synonyms {
		if strings.Contains(key, s.alias) || (len(key) >= 3 && strings.Contains(s.alias, key)) {
			if idx, ok := c.byKey[strings.ToLower(s.target)]; ok {
				e := c.entries[idx]
				return e.name, e.mapping, MatchSynonym
			}
		}
	}

	for _, e := range c.entries {
		candidate := strings.ToLower(e.name)
		if strings.Contains(key, candidate) || strings.Contains(candidate, key) {
			return e.name, e.mapping, MatchFuzzy
		}
	}

	return c.fallback()
}

func (c *Catalog) fallback() (string, internal.ServiceMapping, MatchMethod) {
	if idx, ok := c.byKey[strings.ToLower(DefaultService)]; ok {
		e := c.entries[idx]
		return e.name, e.mapping, MatchDefault
	}
	return DefaultService, internal.ServiceMapping{
		Code:           DefaultServiceCode,
		DiagnosticCode: "Z00.0",
		Description:    DefaultService,
		Price:          decimal.NewFromInt(960),
		Category:       "consultation",
	}, MatchDefault
}

// Mappings returns a copy of every registered service keyed by name.
func (c *Catalog) Mappings() map[string]internal.ServiceMapping {
	out := make(map[string]internal.ServiceMapping, len(c.entries))
	for _, e := range c.entries {
		out[e.name] = e.mapping
	}
	return out
}

// Names lists service names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.name)
	}
	return out
}

// Get returns the mapping registered under name, ignoring case.
func (c *Catalog) Get(name string) (internal.ServiceMapping, bool) {
	idx, ok := c.byKey[util.NormalizeKey(name)]
	if !ok {
		return internal.ServiceMapping{}, false
	}
	return c.entries[idx].mapping, true
}
