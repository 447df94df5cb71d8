// Package modelrouter implements the model router (C5): variant
// selection, cache-first dispatch to the single LLM backend, cost
// accounting, and a bounded ring buffer of request outcomes. The
// router never raises to its caller — every failure degrades to a
// deterministic fallback message plus a recorded incident.
package modelrouter

import "time"

// Variant is one of the four fixed LLM deployments. The set is fixed
// at startup; variants do not mutate.
type Variant string

const (
	VariantNano Variant = "nano"
	VariantMini Variant = "mini"
	VariantChat Variant = "chat"
	VariantFull Variant = "full"
)

// VariantSpec describes a deployed variant's identity, limits, and
// generation defaults.
type VariantSpec struct {
	Deployment        string
	MaxCompletionTok  int
	TargetP50         time.Duration
	CostWeight        float64
	UseCase           string
	Temperature       float64
	TopP              float64
	SystemPrompt      string
}

// Registry is the fixed, startup-configured variant set.
type Registry map[Variant]VariantSpec

// DefaultRegistry returns the four variants with the spec's documented
// latency targets and a monotonically increasing cost weight.
func DefaultRegistry() Registry {
	return Registry{
		VariantNano: {
			Deployment:       "nano-v1",
			MaxCompletionTok: 256,
			TargetP50:        500 * time.Millisecond,
			CostWeight:       0.1,
			UseCase:          "simple-lookup",
			Temperature:      0.2,
			TopP:             1.0,
			SystemPrompt:     "Answer briefly and directly. One or two sentences.",
		},
		VariantMini: {
			Deployment:       "mini-v1",
			MaxCompletionTok: 512,
			TargetP50:        time.Second,
			CostWeight:       0.3,
			UseCase:          "medium-analysis",
			Temperature:      0.3,
			TopP:             1.0,
			SystemPrompt:     "Answer clearly with brief supporting reasoning.",
		},
		VariantChat: {
			Deployment:       "chat-v1",
			MaxCompletionTok: 1024,
			TargetP50:        1500 * time.Millisecond,
			CostWeight:       0.6,
			UseCase:          "conversational",
			Temperature:      0.5,
			TopP:             1.0,
			SystemPrompt:     "Answer conversationally with full context and reasoning.",
		},
		VariantFull: {
			Deployment:       "full-v1",
			MaxCompletionTok: 4096,
			TargetP50:        3 * time.Second,
			CostWeight:       1.0,
			UseCase:          "advanced-analysis",
			Temperature:      0.7,
			TopP:             1.0,
			SystemPrompt:     "Provide a thorough, rigorous analysis covering all relevant angles.",
		},
	}
}

var downgrade = map[Variant]Variant{
	VariantFull: VariantChat,
	VariantChat: VariantMini,
	VariantMini: VariantNano,
	VariantNano: VariantNano,
}

// Downgrade returns the next cheaper tier, or the same variant if
// already at the floor.
func Downgrade(v Variant) Variant {
	return downgrade[v]
}
