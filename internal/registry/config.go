// Package registry loads the model whitelist and is the single admission
// gate for model names: no other code path may invoke a backend for a name
// the registry has not validated.
package registry

// BackendKind identifies the upstream wire dialect a model is served over.
type BackendKind string

const (
	// KindResponses targets a Responses-shaped upstream API.
	KindResponses BackendKind = "responses"

	// KindMessages targets a Messages-shaped upstream API with extended
	// thinking support.
	KindMessages BackendKind = "messages"

	// KindPassthrough targets an upstream that already speaks the client's
	// Chat Completions chunk grammar.
	KindPassthrough BackendKind = "passthrough"
)

// ReasoningEffort levels accepted for Responses-style models.
var reasoningEfforts = map[string]bool{
	"minimal": true,
	"low":     true,
	"medium":  true,
	"high":    true,
}

// ModelConfig is the immutable, validated description of one callable model
// name. Instances are constructed only through Load and shared read-only
// across concurrent requests.
type ModelConfig struct {
	Name        string
	Kind        BackendKind
	NativeModel string

	// Responses-style knobs.
	ReasoningEffort    string
	DeploymentName     string
	SummaryLevel       string
	VerbosityLevel     string
	TruncationStrategy string

	// Messages-style knobs.
	MaxOutputTokens int
	ThinkingBudget  int

	// BaseURL overrides the backend's default endpoint.
	BaseURL string
}

// modelEntry is the YAML shape of one registry entry.
type modelEntry struct {
	Backend            string `koanf:"backend"`
	NativeModel        string `koanf:"native_model"`
	ReasoningEffort    string `koanf:"reasoning_effort"`
	DeploymentName     string `koanf:"deployment_name"`
	SummaryLevel       string `koanf:"summary_level"`
	VerbosityLevel     string `koanf:"verbosity_level"`
	TruncationStrategy string `koanf:"truncation"`
	MaxOutputTokens    int    `koanf:"max_output_tokens"`
	ThinkingBudget     int    `koanf:"thinking_budget"`
	BaseURL            string `koanf:"base_url"`
}
