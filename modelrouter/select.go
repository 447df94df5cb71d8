package modelrouter

import "github.com/axiagw/gateway/analyzer"

// SelectionContext carries the signals the selection chain consults,
// in the order the rules reference them.
type SelectionContext struct {
	PromptTokens   int
	Classification analyzer.Classification
	Indicators     []string
	HighAccuracy   bool
	Override       Variant
	RealTime       bool
}

// Select runs the ordered rule chain and returns the chosen variant.
// First match wins; an explicit override always wins over 1-3; a
// real-time flag downgrades one tier unless the override rule fired.
func Select(ctx SelectionContext) Variant {
	if ctx.Override != "" {
		return ctx.Override
	}

	v := selectByTokensAndComplexity(ctx)

	if ctx.RealTime {
		v = Downgrade(v)
	}
	return v
}

func selectByTokensAndComplexity(ctx SelectionContext) Variant {
	if ctx.PromptTokens <= 512 {
		return VariantNano
	}
	if ctx.PromptTokens <= 1536 {
		return VariantMini
	}

	switch ctx.Classification.Level {
	case analyzer.LevelSimple:
		return VariantNano
	case analyzer.LevelMedium:
		if ctx.HighAccuracy {
			return VariantChat
		}
		return VariantMini
	case analyzer.LevelComplex:
		if len(ctx.Indicators) >= 2 {
			return VariantFull
		}
		return VariantChat
	case analyzer.LevelAdvanced:
		return VariantFull
	default:
		return VariantMini
	}
}
