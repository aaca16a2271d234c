package registry

import "time"

// builtinCatalog lists every model the council ships knowledge of. Costs
// are USD per token; latency figures are steady-state averages observed
// against each provider's hosted endpoint.
var builtinCatalog = []ModelDescriptor{
	{
		ID:                 "groq-llama3-70b",
		Provider:           ProviderGroq,
		ModelName:          "llama3-70b-8192",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration},
		CostPerInputToken:  0.00000059,
		CostPerOutputToken: 0.00000079,
		AverageLatency:     500 * time.Millisecond,
		MaxContext:         8192,
		Reliability:        0.95,
	},
	{
		ID:                 "groq-mixtral-8x7b",
		Provider:           ProviderGroq,
		ModelName:          "mixtral-8x7b-32768",
		Kinds:              []TaskKind{KindReasoning, KindCreativeOutput},
		CostPerInputToken:  0.00000027,
		CostPerOutputToken: 0.00000027,
		AverageLatency:     400 * time.Millisecond,
		MaxContext:         32768,
		Reliability:        0.93,
	},
	{
		ID:                 "together-mixtral-8x7b",
		Provider:           ProviderTogether,
		ModelName:          "mistralai/Mixtral-8x7B-Instruct-v0.1",
		Kinds:              []TaskKind{KindReasoning, KindCodeGeneration},
		CostPerInputToken:  0.0000006,
		CostPerOutputToken: 0.0000006,
		AverageLatency:     1200 * time.Millisecond,
		MaxContext:         32768,
		Reliability:        0.92,
	},
	{
		ID:                 "together-llama2-70b",
		Provider:           ProviderTogether,
		ModelName:          "togethercomputer/llama-2-70b-chat",
		Kinds:              []TaskKind{KindResearch, KindCreativeOutput, KindReasoning},
		CostPerInputToken:  0.0000009,
		CostPerOutputToken: 0.0000009,
		AverageLatency:     1500 * time.Millisecond,
		MaxContext:         4096,
		Reliability:        0.90,
	},
	{
		ID:                 "together-nous-hermes-2-yi-34b",
		Provider:           ProviderTogether,
		ModelName:          "NousResearch/Nous-Hermes-2-Yi-34B",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput},
		CostPerInputToken:  0.0000008,
		CostPerOutputToken: 0.0000008,
		AverageLatency:     1300 * time.Millisecond,
		MaxContext:         4096,
		Reliability:        0.91,
	},
	{
		ID:                 "openrouter-gpt-3.5-turbo",
		Provider:           ProviderOpenRouter,
		ModelName:          "openai/gpt-3.5-turbo",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput},
		CostPerInputToken:  0.0000005,
		CostPerOutputToken: 0.0000015,
		AverageLatency:     1500 * time.Millisecond,
		MaxContext:         16385,
		Reliability:        0.94,
	},
	{
		ID:                 "openrouter-claude-instant-1",
		Provider:           ProviderOpenRouter,
		ModelName:          "anthropic/claude-instant-1",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCreativeOutput, KindFactChecking},
		CostPerInputToken:  0.00000163,
		CostPerOutputToken: 0.00000551,
		AverageLatency:     1200 * time.Millisecond,
		MaxContext:         100000,
		Reliability:        0.95,
	},
	{
		ID:                 "openrouter-llama-2-70b-chat",
		Provider:           ProviderOpenRouter,
		ModelName:          "meta-llama/llama-2-70b-chat",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCreativeOutput},
		CostPerInputToken:  0.0000007,
		CostPerOutputToken: 0.0000009,
		AverageLatency:     2 * time.Second,
		MaxContext:         4096,
		Reliability:        0.90,
	},
	{
		ID:                 "openrouter-palm-2-chat-bison",
		Provider:           ProviderOpenRouter,
		ModelName:          "google/palm-2-chat-bison",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCreativeOutput, KindFactChecking},
		CostPerInputToken:  0.00000025,
		CostPerOutputToken: 0.0000005,
		AverageLatency:     1800 * time.Millisecond,
		MaxContext:         8192,
		Reliability:        0.91,
	},
	{
		ID:                 "openrouter-claude-3-sonnet",
		Provider:           ProviderOpenRouter,
		ModelName:          "anthropic/claude-3-sonnet",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindFactChecking},
		CostPerInputToken:  0.000003,
		CostPerOutputToken: 0.000015,
		AverageLatency:     2 * time.Second,
		MaxContext:         200000,
		Reliability:        0.98,
	},
	{
		ID:                 "openrouter-gpt4-turbo",
		Provider:           ProviderOpenRouter,
		ModelName:          "openai/gpt-4-turbo",
		Kinds:              []TaskKind{KindReasoning, KindCodeGeneration, KindDebugging},
		CostPerInputToken:  0.00001,
		CostPerOutputToken: 0.00003,
		AverageLatency:     3 * time.Second,
		MaxContext:         128000,
		Reliability:        0.97,
	},
	{
		ID:                 "huggingface-mistral-7b",
		Provider:           ProviderHuggingFace,
		ModelName:          "mistralai/Mistral-7B-Instruct-v0.2",
		Kinds:              []TaskKind{KindReasoning, KindCreativeOutput},
		AverageLatency:     2500 * time.Millisecond,
		MaxContext:         32768,
		Reliability:        0.85,
	},
	{
		ID:                 "huggingface-llama2-7b",
		Provider:           ProviderHuggingFace,
		ModelName:          "meta-llama/Llama-2-7b-chat-hf",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCreativeOutput},
		AverageLatency:     3 * time.Second,
		MaxContext:         4096,
		Reliability:        0.83,
	},
	{
		ID:                 "huggingface-flan-t5-xxl",
		Provider:           ProviderHuggingFace,
		ModelName:          "google/flan-t5-xxl",
		Kinds:              []TaskKind{KindReasoning, KindFactChecking},
		AverageLatency:     2 * time.Second,
		MaxContext:         512,
		Reliability:        0.82,
	},
	{
		ID:             "ollama-llama2-7b",
		Provider:       ProviderOllama,
		ModelName:      "llama2",
		Kinds:          []TaskKind{KindReasoning, KindResearch, KindCreativeOutput},
		AverageLatency: 3 * time.Second,
		MaxContext:     4096,
		Reliability:    0.85,
		LocalOnly:      true,
	},
	{
		ID:             "ollama-mistral-7b",
		Provider:       ProviderOllama,
		ModelName:      "mistral",
		Kinds:          []TaskKind{KindReasoning, KindCodeGeneration},
		AverageLatency: 2500 * time.Millisecond,
		MaxContext:     8192,
		Reliability:    0.87,
		LocalOnly:      true,
	},
	{
		ID:             "ollama-codellama-7b",
		Provider:       ProviderOllama,
		ModelName:      "codellama",
		Kinds:          []TaskKind{KindCodeGeneration, KindDebugging},
		AverageLatency: 3500 * time.Millisecond,
		MaxContext:     4096,
		Reliability:    0.83,
		LocalOnly:      true,
	},
	{
		ID:             "ollama-phi-2.7b",
		Provider:       ProviderOllama,
		ModelName:      "phi",
		Kinds:          []TaskKind{KindReasoning, KindCreativeOutput},
		AverageLatency: 1500 * time.Millisecond,
		MaxContext:     2048,
		Reliability:    0.80,
		LocalOnly:      true,
	},
	{
		ID:             "gemini-pro",
		Provider:       ProviderGemini,
		ModelName:      "gemini-pro",
		Kinds:          []TaskKind{KindReasoning, KindResearch, KindCreativeOutput, KindFactChecking},
		AverageLatency: 2 * time.Second,
		MaxContext:     32768,
		Reliability:    0.92,
	},
	{
		ID:             "gemini-pro-vision",
		Provider:       ProviderGemini,
		ModelName:      "gemini-pro-vision",
		Kinds:          []TaskKind{KindReasoning, KindResearch, KindCreativeOutput},
		AverageLatency: 2500 * time.Millisecond,
		MaxContext:     16384,
		Reliability:    0.90,
	},
	{
		ID:                 "openai-gpt-3.5-turbo",
		Provider:           ProviderOpenAI,
		ModelName:          "gpt-3.5-turbo",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput},
		CostPerInputToken:  0.0000005,
		CostPerOutputToken: 0.0000015,
		AverageLatency:     1 * time.Second,
		MaxContext:         16385,
		Reliability:        0.94,
	},
	{
		ID:                 "openai-gpt-4",
		Provider:           ProviderOpenAI,
		ModelName:          "gpt-4",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput, KindFactChecking, KindDebugging},
		CostPerInputToken:  0.00003,
		CostPerOutputToken: 0.00006,
		AverageLatency:     3 * time.Second,
		MaxContext:         8192,
		Reliability:        0.98,
	},
	{
		ID:                 "openai-gpt-4-turbo-preview",
		Provider:           ProviderOpenAI,
		ModelName:          "gpt-4-turbo-preview",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput, KindFactChecking, KindDebugging},
		CostPerInputToken:  0.00001,
		CostPerOutputToken: 0.00003,
		AverageLatency:     2500 * time.Millisecond,
		MaxContext:         128000,
		Reliability:        0.97,
	},
	{
		ID:                 "qwen-turbo",
		Provider:           ProviderQwen,
		ModelName:          "qwen-turbo",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCreativeOutput},
		CostPerInputToken:  0.000002,
		CostPerOutputToken: 0.000002,
		AverageLatency:     1500 * time.Millisecond,
		MaxContext:         8192,
		Reliability:        0.88,
	},
	{
		ID:                 "qwen-plus",
		Provider:           ProviderQwen,
		ModelName:          "qwen-plus",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput},
		CostPerInputToken:  0.000004,
		CostPerOutputToken: 0.000004,
		AverageLatency:     2 * time.Second,
		MaxContext:         32768,
		Reliability:        0.91,
	},
	{
		ID:                 "qwen-max",
		Provider:           ProviderQwen,
		ModelName:          "qwen-max",
		Kinds:              []TaskKind{KindReasoning, KindResearch, KindCodeGeneration, KindCreativeOutput, KindFactChecking},
		CostPerInputToken:  0.000012,
		CostPerOutputToken: 0.000012,
		AverageLatency:     2500 * time.Millisecond,
		MaxContext:         8192,
		Reliability:        0.93,
	},
}
