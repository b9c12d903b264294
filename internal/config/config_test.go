package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Database:  DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{BaseURL: "http://localhost:8081/v1"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing redis addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"missing postgres dsn", func(c *Config) { c.Database.Driver = DriverPostgres }, "database.dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "database.driver"},
		{"missing embedding url", func(c *Config) { c.Embedding.BaseURL = "" }, "embedding.base_url"},
		{"negative weight", func(c *Config) { c.Search.LexicalWeight = -0.1 }, "non-negative"},
		{"vector backend", func(c *Config) { c.Search.VectorBackend = "faiss" }, "vector_backend"},
		{"lexical backend", func(c *Config) { c.Search.LexicalBackend = "elastic" }, "lexical_backend"},
		{"lexical field", func(c *Config) { c.Search.LexicalFields = []string{"title_it", "sector"} }, "lexical_fields"},
		{"fuzzy edits", func(c *Config) { c.Search.FuzzyMaxEdits = 3 }, "fuzzy_max_edits"},
		{"limits", func(c *Config) { c.Search.DefaultLimit = 500 }, "default_limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Database.Driver != DriverRedis {
		t.Errorf("expected driver redis, got %q", cfg.Database.Driver)
	}
	if cfg.Database.KeyPrefix != "article:" {
		t.Errorf("expected KeyPrefix='article:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected Dimensions=768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.DocumentMaxChars != 8000 {
		t.Errorf("expected DocumentMaxChars=8000, got %d", cfg.Embedding.DocumentMaxChars)
	}
	if cfg.Embedding.QueryInstruction != "search_query: " {
		t.Errorf("unexpected QueryInstruction %q", cfg.Embedding.QueryInstruction)
	}
	if cfg.Rerank.BatchSize != 32 {
		t.Errorf("expected BatchSize=32, got %d", cfg.Rerank.BatchSize)
	}
	if cfg.Rerank.ExcerptChars != 500 {
		t.Errorf("expected ExcerptChars=500, got %d", cfg.Rerank.ExcerptChars)
	}
	if cfg.Search.VectorWeight != 0.6 || cfg.Search.LexicalWeight != 0.4 {
		t.Errorf("expected weights 0.6/0.4, got %v/%v", cfg.Search.VectorWeight, cfg.Search.LexicalWeight)
	}
	if cfg.Search.RRFK != 60 {
		t.Errorf("expected RRFK=60, got %d", cfg.Search.RRFK)
	}
	if cfg.Search.CandidateMultiplier != 2 {
		t.Errorf("expected CandidateMultiplier=2, got %d", cfg.Search.CandidateMultiplier)
	}
	if cfg.Search.DefaultLimit != 18 {
		t.Errorf("expected DefaultLimit=18, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.Related.Limit != 6 {
		t.Errorf("expected Related.Limit=6, got %d", cfg.Search.Related.Limit)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30},
		Search: SearchConfig{VectorWeight: 0.5, LexicalWeight: 0, RRFK: 10},
		Rerank: RerankConfig{BatchSize: 16},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Search.VectorWeight != 0.5 || cfg.Search.LexicalWeight != 0 {
		t.Errorf("weights overridden: %v/%v", cfg.Search.VectorWeight, cfg.Search.LexicalWeight)
	}
	if cfg.Search.RRFK != 10 {
		t.Errorf("expected RRFK=10, got %d", cfg.Search.RRFK)
	}
	if cfg.Rerank.BatchSize != 16 {
		t.Errorf("expected BatchSize=16, got %d", cfg.Rerank.BatchSize)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TANALYST_TEST_PORT", "9090")

	data := []byte(`
http:
  port: ${TANALYST_TEST_PORT}
database:
  addrs: ["${TANALYST_TEST_REDIS:-redis:6379}"]
embedding:
  base_url: http://embed/v1
search:
  vector_backend: bruteforce
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "redis:6379" {
		t.Errorf("expected default addr, got %q", cfg.Database.Addrs[0])
	}
	if cfg.Search.VectorBackend != BackendBruteForce {
		t.Errorf("expected bruteforce backend, got %q", cfg.Search.VectorBackend)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_Local(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected 768 dims, got %d", cfg.Embedding.Dimensions)
	}
}
