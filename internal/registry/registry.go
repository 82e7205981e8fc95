package registry

import (
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/modelgate/modelgate/internal/domain"
)

// Registry maps model names to validated configurations. It performs no I/O
// after Load and is safe for concurrent reads.
type Registry struct {
	models map[string]*ModelConfig
	names  []string
}

// Load reads the YAML model configuration at path and validates every entry.
// The document must carry a top-level "models" map. Any invalid entry fails
// the whole load: a registry is never partially applied.
func Load(path string) (*Registry, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, domain.ErrConfiguration("cannot read model configuration %s: %v", path, err)
	}

	if !k.Exists("models") {
		return nil, domain.ErrConfiguration(`model configuration must have a top-level "models" key`)
	}

	var entries map[string]modelEntry
	if err := k.Unmarshal("models", &entries); err != nil {
		return nil, domain.ErrConfiguration("invalid model configuration: %v", err)
	}

	r := &Registry{models: make(map[string]*ModelConfig, len(entries))}
	for name, entry := range entries {
		cfg, err := validate(name, entry)
		if err != nil {
			return nil, err
		}
		r.models[name] = cfg
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	return r, nil
}

func validate(name string, entry modelEntry) (*ModelConfig, error) {
	kind := BackendKind(entry.Backend)
	switch kind {
	case KindResponses, KindMessages, KindPassthrough:
	default:
		return nil, domain.ErrConfiguration(
			"model %q: unsupported backend %q (supported: responses, messages, passthrough)",
			name, entry.Backend)
	}

	if entry.NativeModel == "" {
		return nil, domain.ErrConfiguration("model %q: native_model is required", name)
	}

	if entry.MaxOutputTokens < 0 {
		return nil, domain.ErrConfiguration("model %q: max_output_tokens must be positive", name)
	}
	if entry.ThinkingBudget < 0 {
		return nil, domain.ErrConfiguration("model %q: thinking_budget must be positive", name)
	}
	if entry.ThinkingBudget > 0 && entry.MaxOutputTokens > 0 && entry.ThinkingBudget >= entry.MaxOutputTokens {
		return nil, domain.ErrConfiguration(
			"model %q: thinking_budget (%d) must be less than max_output_tokens (%d)",
			name, entry.ThinkingBudget, entry.MaxOutputTokens)
	}

	if kind == KindResponses {
		if entry.ReasoningEffort == "" {
			return nil, domain.ErrConfiguration(
				"model %q: reasoning_effort is required for responses models", name)
		}
		if !reasoningEfforts[entry.ReasoningEffort] {
			return nil, domain.ErrConfiguration(
				"model %q: invalid reasoning_effort %q (must be minimal, low, medium or high)",
				name, entry.ReasoningEffort)
		}
	}

	return &ModelConfig{
		Name:               name,
		Kind:               kind,
		NativeModel:        entry.NativeModel,
		ReasoningEffort:    entry.ReasoningEffort,
		DeploymentName:     entry.DeploymentName,
		SummaryLevel:       entry.SummaryLevel,
		VerbosityLevel:     entry.VerbosityLevel,
		TruncationStrategy: entry.TruncationStrategy,
		MaxOutputTokens:    entry.MaxOutputTokens,
		ThinkingBudget:     entry.ThinkingBudget,
		BaseURL:            entry.BaseURL,
	}, nil
}

// Lookup returns the configuration for a model name. Unknown names fail with
// a ModelNotFoundError enumerating every configured name.
func (r *Registry) Lookup(name string) (*ModelConfig, error) {
	cfg, ok := r.models[name]
	if !ok {
		return nil, &domain.ModelNotFoundError{Model: name, Available: r.Names()}
	}
	return cfg, nil
}

// Names returns all configured model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len returns the number of configured models.
func (r *Registry) Len() int {
	return len(r.models)
}
