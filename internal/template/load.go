// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package template

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default context vocabulary, used when the template configures none.
// Matches the built-in lists of the location detector's reference data.
var (
	defaultPrepositions = []string{"aus", "in", "nach", "von", "bei"}

	defaultFacilityKeywords = []string{
		"Universitätsklinikum", "Uniklinik", "Klinikum", "Krankenhaus",
		"Herzzentrum", "Tumorzentrum", "Lungenzentrum", "MVZ",
		"Medizinisches Versorgungszentrum", "Charité",
	}

	defaultReferralKeywords = []string{"überwiesen", "Zuweiser", "eingewiesen", "verlegt"}
)

const (
	defaultLocationToken = "[ORT]"
	defaultFacilityToken = "[KLINIK]"
)

// Load parses and validates a template document. The source name only
// labels errors; Load performs no I/O itself. YAML is a superset of JSON,
// so both template spellings are accepted.
func Load(data []byte, source string) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Source: source, Message: fmt.Sprintf("invalid template document: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Source: source, Message: "template root must be a mapping"}
	}
	root := doc.Content[0]

	tmpl := &Template{
		Zones:        make(map[string]Zone),
		Mechanisms:   make(map[string]Mechanism),
		Extra:        make(map[string]any),
		DateSettings: make(map[string]any),
	}
	seen := make(map[string]bool)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]
		seen[key] = true

		var err error
		switch key {
		case "template_name":
			err = decode(value, &tmpl.Name, source, key)
		case "version":
			err = decode(value, &tmpl.Version, source, key)
		case "zones":
			err = loadZones(tmpl, value, source)
		case "structured_patterns":
			err = loadPatterns(tmpl, value, source)
		case "date_handling":
			err = loadDateRules(tmpl, value, source)
		case "image_pii_patterns":
			err = loadImagePatterns(tmpl, value, source)
		case "location_anonymization":
			err = loadLocation(tmpl, value, source)
		case "pii_mechanisms":
			err = loadMechanisms(tmpl, value, source)
		case "signature_block":
			err = loadSignature(tmpl, value, source)
		default:
			// Open extension: unknown top-level fields are kept, not
			// rejected.
			var extra any
			if err = decode(value, &extra, source, key); err == nil {
				tmpl.Extra[key] = extra
			}
		}
		if err != nil {
			return nil, err
		}
	}

	for _, required := range []string{"zones", "structured_patterns", "date_handling", "image_pii_patterns"} {
		if !seen[required] {
			return nil, &ConfigError{Source: source, Field: required, Message: "required field is missing"}
		}
	}

	applyLocationDefaults(&tmpl.Location)
	return tmpl, nil
}

// decode unmarshals a node, wrapping failures with the field path.
func decode(node *yaml.Node, out any, source, field string) error {
	if err := node.Decode(out); err != nil {
		return &ConfigError{Source: source, Field: field, Message: err.Error()}
	}
	return nil
}

// mappingPairs iterates a mapping node in declaration order.
func mappingPairs(node *yaml.Node, source, field string, fn func(name string, value *yaml.Node) error) error {
	if node.Kind != yaml.MappingNode {
		return &ConfigError{Source: source, Field: field, Message: "must be a mapping"}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func loadZones(tmpl *Template, node *yaml.Node, source string) error {
	return mappingPairs(node, source, "zones", func(name string, value *yaml.Node) error {
		field := "zones." + name
		var raw struct {
			Page          *int     `yaml:"page"`
			Pages         string   `yaml:"pages"`
			ExcludePage   int      `yaml:"exclude_page"`
			YStart        float64  `yaml:"y_start"`
			YEnd          float64  `yaml:"y_end"`
			Redaction     string   `yaml:"redaction"`
			PreserveLogos bool     `yaml:"preserve_logos"`
			Keywords      []string `yaml:"keywords"`
		}
		if err := decode(value, &raw, source, field); err != nil {
			return err
		}
		switch raw.Redaction {
		case "full", "none":
		case "keyword_based":
			if len(raw.Keywords) == 0 {
				return &ConfigError{Source: source, Field: field + ".keywords", Message: "keyword_based zone needs at least one keyword"}
			}
		default:
			return &ConfigError{Source: source, Field: field + ".redaction", Message: fmt.Sprintf("invalid redaction %q (want full, keyword_based or none)", raw.Redaction)}
		}
		if raw.YEnd < raw.YStart {
			return &ConfigError{Source: source, Field: field + ".y_end", Message: "y_end must not be below y_start"}
		}
		tmpl.Zones[name] = Zone{
			Page:          raw.Page,
			Pages:         raw.Pages,
			ExcludePage:   raw.ExcludePage,
			YStart:        raw.YStart,
			YEnd:          raw.YEnd,
			Redaction:     raw.Redaction,
			Keywords:      raw.Keywords,
			PreserveLogos: raw.PreserveLogos,
		}
		return nil
	})
}

func loadPatterns(tmpl *Template, node *yaml.Node, source string) error {
	order := 0
	return mappingPairs(node, source, "structured_patterns", func(name string, value *yaml.Node) error {
		field := "structured_patterns." + name
		var raw struct {
			Pattern         string            `yaml:"pattern"`
			Type            string            `yaml:"type"`
			Groups          map[string]string `yaml:"groups"`
			ContextTrigger  string            `yaml:"context_trigger"`
			ContextTriggers []string          `yaml:"context_triggers"`
			Lookahead       int               `yaml:"lookahead"`
		}
		if err := decode(value, &raw, source, field); err != nil {
			return err
		}
		if raw.Pattern == "" {
			return &ConfigError{Source: source, Field: field + ".pattern", Message: "required field is missing"}
		}
		re, err := regexp.Compile(raw.Pattern)
		if err != nil {
			return &ConfigError{Source: source, Field: field + ".pattern", Message: err.Error()}
		}

		rule := PatternRule{
			Name:    name,
			Pattern: raw.Pattern,
			Regexp:  re,
			Type:    raw.Type,
			Order:   order,
		}

		triggers := raw.ContextTriggers
		if raw.ContextTrigger != "" {
			triggers = append([]string{raw.ContextTrigger}, triggers...)
		}

		switch {
		case len(triggers) > 0:
			if raw.Lookahead <= 0 {
				return &ConfigError{Source: source, Field: field + ".lookahead", Message: "context-triggered rule needs a positive lookahead"}
			}
			rule.Kind = RuleContextTriggered
			rule.Triggers = triggers
			rule.Lookahead = raw.Lookahead
		case len(raw.Groups) > 0:
			rule.Kind = RuleMultiGroup
			rule.Groups = make(map[int]string, len(raw.Groups))
			for idx, entityType := range raw.Groups {
				n, err := strconv.Atoi(idx)
				if err != nil || n < 1 {
					return &ConfigError{Source: source, Field: field + ".groups." + idx, Message: "group index must be a positive integer"}
				}
				if n > re.NumSubexp() {
					return &ConfigError{Source: source, Field: field + ".groups." + idx, Message: fmt.Sprintf("pattern has only %d capture groups", re.NumSubexp())}
				}
				rule.Groups[n] = entityType
			}
		default:
			rule.Kind = RuleSimple
		}

		tmpl.Patterns = append(tmpl.Patterns, rule)
		order++
		return nil
	})
}

func loadDateRules(tmpl *Template, node *yaml.Node, source string) error {
	order := 0
	return mappingPairs(node, source, "date_handling", func(name string, value *yaml.Node) error {
		field := "date_handling." + name

		// Scalar entries under date_handling are settings, not rules.
		if value.Kind != yaml.MappingNode {
			var setting any
			if err := decode(value, &setting, source, field); err != nil {
				return err
			}
			tmpl.DateSettings[name] = setting
			return nil
		}

		var raw struct {
			Pattern        string `yaml:"pattern"`
			Action         string `yaml:"action"`
			ShiftDaysRange []int  `yaml:"shift_days_range"`
		}
		if err := decode(value, &raw, source, field); err != nil {
			return err
		}
		if raw.Pattern == "" {
			return &ConfigError{Source: source, Field: field + ".pattern", Message: "required field is missing"}
		}
		if raw.Action == "" {
			return &ConfigError{Source: source, Field: field + ".action", Message: "required field is missing"}
		}
		action := DateAction(raw.Action)
		switch action {
		case DateShift, DateShiftRelative, DateRemove:
		default:
			return &ConfigError{Source: source, Field: field + ".action", Message: fmt.Sprintf("invalid action %q (want shift, shift_relative or remove)", raw.Action)}
		}
		re, err := regexp.Compile(raw.Pattern)
		if err != nil {
			return &ConfigError{Source: source, Field: field + ".pattern", Message: err.Error()}
		}

		rule := DateRule{
			Name:    name,
			Pattern: raw.Pattern,
			Regexp:  re,
			Action:  action,
			Order:   order,
		}
		if len(raw.ShiftDaysRange) > 0 {
			if len(raw.ShiftDaysRange) != 2 || raw.ShiftDaysRange[0] > raw.ShiftDaysRange[1] {
				return &ConfigError{Source: source, Field: field + ".shift_days_range", Message: "must be [min, max] with min <= max"}
			}
			rule.ShiftDaysRange = &[2]int{raw.ShiftDaysRange[0], raw.ShiftDaysRange[1]}
		}

		tmpl.DateRules = append(tmpl.DateRules, rule)
		order++
		return nil
	})
}

func loadImagePatterns(tmpl *Template, node *yaml.Node, source string) error {
	patterns := make(map[string]string)
	if err := decode(node, &patterns, source, "image_pii_patterns"); err != nil {
		return err
	}
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		re, err := regexp.Compile(patterns[name])
		if err != nil {
			return &ConfigError{Source: source, Field: "image_pii_patterns." + name, Message: err.Error()}
		}
		tmpl.ImagePatterns = append(tmpl.ImagePatterns, ImagePattern{Name: name, Pattern: patterns[name], Regexp: re})
	}
	return nil
}

func loadLocation(tmpl *Template, node *yaml.Node, source string) error {
	var raw struct {
		Enabled           *bool    `yaml:"enabled"`
		Blacklist         []string `yaml:"blacklist"`
		Prepositions      []string `yaml:"prepositions"`
		FacilityKeywords  []string `yaml:"facility_keywords"`
		ReferralKeywords  []string `yaml:"referral_keywords"`
		Cities            []string `yaml:"cities"`
		Facilities        []struct {
			Name    string   `yaml:"name"`
			Aliases []string `yaml:"aliases"`
			City    string   `yaml:"city"`
		} `yaml:"facilities"`
		ReplacementTokens struct {
			Location string `yaml:"location"`
			Facility string `yaml:"facility"`
		} `yaml:"replacement_tokens"`
	}
	if err := decode(node, &raw, source, "location_anonymization"); err != nil {
		return err
	}

	cfg := LocationConfig{
		Enabled:          raw.Enabled == nil || *raw.Enabled,
		Blacklist:        raw.Blacklist,
		Prepositions:     raw.Prepositions,
		FacilityKeywords: raw.FacilityKeywords,
		ReferralKeywords: raw.ReferralKeywords,
		Cities:           raw.Cities,
		LocationToken:    raw.ReplacementTokens.Location,
		FacilityToken:    raw.ReplacementTokens.Facility,
	}
	for _, f := range raw.Facilities {
		if f.Name == "" {
			return &ConfigError{Source: source, Field: "location_anonymization.facilities.name", Message: "required field is missing"}
		}
		cfg.Facilities = append(cfg.Facilities, Facility{Name: f.Name, Aliases: f.Aliases, City: f.City})
	}
	tmpl.Location = cfg
	return nil
}

func loadMechanisms(tmpl *Template, node *yaml.Node, source string) error {
	return mappingPairs(node, source, "pii_mechanisms", func(name string, value *yaml.Node) error {
		field := "pii_mechanisms." + name
		var raw struct {
			Mechanism string `yaml:"mechanism"`
			Token     string `yaml:"token"`
		}
		if err := decode(value, &raw, source, field); err != nil {
			return err
		}
		switch raw.Mechanism {
		case "redact", "shift_date":
		default:
			return &ConfigError{Source: source, Field: field + ".mechanism", Message: fmt.Sprintf("invalid mechanism %q (want redact or shift_date)", raw.Mechanism)}
		}
		if raw.Token == "" {
			raw.Token = "[" + name + "]"
		}
		tmpl.Mechanisms[name] = Mechanism{Kind: raw.Mechanism, Token: raw.Token}
		return nil
	})
}

func loadSignature(tmpl *Template, node *yaml.Node, source string) error {
	var raw struct {
		Enabled     bool    `yaml:"enabled"`
		Trigger     string  `yaml:"trigger"`
		HeightBelow float64 `yaml:"height_below"`
	}
	if err := decode(node, &raw, source, "signature_block"); err != nil {
		return err
	}
	if raw.Enabled && raw.Trigger == "" {
		return &ConfigError{Source: source, Field: "signature_block.trigger", Message: "required when signature_block is enabled"}
	}
	tmpl.Signature = &SignatureBlock{Enabled: raw.Enabled, Trigger: raw.Trigger, HeightBelow: raw.HeightBelow}
	return nil
}

func applyLocationDefaults(cfg *LocationConfig) {
	if len(cfg.Prepositions) == 0 {
		cfg.Prepositions = defaultPrepositions
	}
	if len(cfg.FacilityKeywords) == 0 {
		cfg.FacilityKeywords = defaultFacilityKeywords
	}
	if len(cfg.ReferralKeywords) == 0 {
		cfg.ReferralKeywords = defaultReferralKeywords
	}
	if cfg.LocationToken == "" {
		cfg.LocationToken = defaultLocationToken
	}
	if cfg.FacilityToken == "" {
		cfg.FacilityToken = defaultFacilityToken
	}
}
