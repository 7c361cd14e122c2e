package config

// Defaults shared with other packages.
const (
	DefaultFallbackModel = "llama3.1:8b"
	DefaultQueueCapacity = 64
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./var/bunbetsu.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./var/index"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "bge-m3"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.StrategyTag == "" {
		cfg.Embedding.StrategyTag = "rowdoc-v1"
		if cfg.Embedding.PassagePrefix != "" || cfg.Embedding.QueryPrefix != "" {
			cfg.Embedding.StrategyTag = "rowdoc-v1+prefix"
		}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "hf.co/mmnga/Llama-3.1-Swallow-8B-Instruct-v0.5-gguf:latest"
	}
	if cfg.LLM.FallbackModel == "" {
		cfg.LLM.FallbackModel = DefaultFallbackModel
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.NumCtx == 0 {
		cfg.LLM.NumCtx = 4096
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 10
	}
	if cfg.Retrieval.KMin == 0 {
		cfg.Retrieval.KMin = 5
	}
	if cfg.Retrieval.KMax == 0 {
		cfg.Retrieval.KMax = 12
	}
	if cfg.Retrieval.KMax < cfg.Retrieval.KMin {
		cfg.Retrieval.KMax = cfg.Retrieval.KMin
	}
	if cfg.Retrieval.SemanticWeight == 0 && cfg.Retrieval.LexicalWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.6
		cfg.Retrieval.LexicalWeight = 0.4
	}
	if cfg.Retrieval.PoorItemFraction == 0 {
		cfg.Retrieval.PoorItemFraction = 1.0 / 3.0
	}
	if cfg.Retrieval.MMRFetchK == 0 {
		cfg.Retrieval.MMRFetchK = 20
	}
	if cfg.Retrieval.MMRLambda == 0 {
		cfg.Retrieval.MMRLambda = 0.5
	}
	if cfg.Retrieval.MinLexicalDocs == 0 {
		cfg.Retrieval.MinLexicalDocs = 1
	}
	if cfg.Retrieval.ItemPhraseMaxRunes == 0 {
		cfg.Retrieval.ItemPhraseMaxRunes = 32
	}
	if cfg.Rerank.LexicalWeight == 0 && cfg.Rerank.SemanticWeight == 0 {
		cfg.Rerank.LexicalWeight = 0.65
		cfg.Rerank.SemanticWeight = 0.35
	}
	if cfg.Rerank.OccurrenceBonus == 0 {
		cfg.Rerank.OccurrenceBonus = 0.1
	}
	if cfg.Rerank.MaxOccurrenceBonus == 0 {
		cfg.Rerank.MaxOccurrenceBonus = 1.0
	}
	if cfg.Rerank.MaxVariants <= 0 {
		cfg.Rerank.MaxVariants = 8
	}
	if cfg.Stream.QueueCapacity <= 0 {
		cfg.Stream.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Stream.PollIntervalMS == 0 {
		cfg.Stream.PollIntervalMS = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".csv", ".xlsx", ".txt", ".md", ".pdf", ".docx"}
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
	if cfg.Breaker.MinRequests == 0 {
		cfg.Breaker.MinRequests = 5
	}
	if cfg.Breaker.FailureRatio == 0 {
		cfg.Breaker.FailureRatio = 0.6
	}
	if cfg.Breaker.OpenTimeoutSeconds == 0 {
		cfg.Breaker.OpenTimeoutSeconds = 30
	}
	if cfg.Breaker.HalfOpenMaxCalls == 0 {
		cfg.Breaker.HalfOpenMaxCalls = 1
	}
}

// ClampK returns k bounded to [KMin, KMax], substituting DefaultK when k is not positive.
func (r RetrievalConfig) ClampK(k int) int {
	if k <= 0 {
		k = r.DefaultK
	}
	if k < r.KMin {
		k = r.KMin
	}
	if r.KMax > 0 && k > r.KMax {
		k = r.KMax
	}
	return k
}
