package llm

import "strings"

const tokensPerMillion = 1_000_000.0

// priceRate is a list price in USD per 1M tokens.
type priceRate struct {
	prompt     float64
	completion float64
}

// modelPrice matches models whose lowercased name contains every fragment.
type modelPrice struct {
	fragments []string
	rate      priceRate
}

// Approximate list prices, most specific first.
var (
	openAIPrices = []modelPrice{
		{[]string{"gpt-5", "nano"}, priceRate{0.05, 0.40}},
		{[]string{"gpt-5", "mini"}, priceRate{0.25, 2.00}},
		{[]string{"gpt-5"}, priceRate{1.25, 10.00}},
		{[]string{"gpt-4.1", "mini"}, priceRate{0.40, 1.60}},
		{[]string{"gpt-4o-mini"}, priceRate{0.15, 0.60}},
		{[]string{"gpt-4"}, priceRate{2.50, 10.00}},
	}

	anthropicPrices = []modelPrice{
		{[]string{"opus"}, priceRate{15.00, 75.00}},
		{[]string{"sonnet"}, priceRate{3.00, 15.00}},
		{[]string{"haiku"}, priceRate{1.00, 5.00}},
	}

	fallbackOpenAI    = priceRate{0.15, 0.60}
	fallbackAnthropic = priceRate{1.00, 5.00}
)

// estimateCost returns the estimated cost of one extraction call in USD.
func estimateCost(provider, model string, promptTokens, completionTokens int) float64 {
	r := costRate(ProviderName(provider), model)

	return (float64(promptTokens)*r.prompt + float64(completionTokens)*r.completion) / tokensPerMillion
}

func costRate(provider ProviderName, model string) priceRate {
	model = strings.ToLower(model)

	switch provider {
	case ProviderMock:
		return priceRate{}
	case ProviderAnthropic:
		return lookupPrice(anthropicPrices, model, fallbackAnthropic)
	default:
		return lookupPrice(openAIPrices, model, fallbackOpenAI)
	}
}

func lookupPrice(table []modelPrice, model string, fallback priceRate) priceRate {
	for _, p := range table {
		if containsAll(model, p.fragments) {
			return p.rate
		}
	}

	return fallback
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}

	return true
}
