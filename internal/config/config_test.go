package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_InvalidDType(t *testing.T) {
	cfg := Default()
	cfg.Embedding.DType = "int8"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid dtype")
	}

	expected := `embedding.dtype must be fp32, fp16 or bf16, got "int8"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_LexicalBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		addrs   []string
		wantErr bool
	}{
		{"redis", "redis", nil, false},
		{"elasticsearch with addrs", "elasticsearch", []string{"http://localhost:9200"}, false},
		{"elasticsearch without addrs", "elasticsearch", nil, true},
		{"unknown", "lucene", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Index.LexicalBackend = tc.backend
			cfg.Elasticsearch.Addresses = tc.addrs
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "valkey"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("ATOMIC_CACHE", "/tmp/atomic-cache")

	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Cache.Dir != "/tmp/atomic-cache" {
		t.Errorf("expected cache dir from ATOMIC_CACHE, got %q", cfg.Cache.Dir)
	}
	if cfg.Collection.MaxTokens != 1024 {
		t.Errorf("expected max tokens 1024, got %d", cfg.Collection.MaxTokens)
	}
	if cfg.Collection.LinesPerPart != 1_000_000 {
		t.Errorf("expected lines per part 1000000, got %d", cfg.Collection.LinesPerPart)
	}
	if cfg.Embedding.BatchSize != 64 {
		t.Errorf("expected batch size 64, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Search.LexicalHits != 1000 || cfg.Search.DenseHits != 100 {
		t.Errorf("unexpected hits defaults: %d/%d", cfg.Search.LexicalHits, cfg.Search.DenseHits)
	}
	if cfg.Dataset.Images != "TREC-AToMiC/AToMiC-Images-v0.2" {
		t.Errorf("unexpected images dataset %q", cfg.Dataset.Images)
	}
	if cfg.Storage.KeyPrefix != "crossret:" {
		t.Errorf("unexpected key prefix %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_HomeCache(t *testing.T) {
	t.Setenv("ATOMIC_CACHE", "")
	t.Setenv("HOME", "/home/tester")

	var cfg Config
	cfg.ApplyDefaults()

	want := filepath.Join("/home/tester", ".cache", "atomic")
	if cfg.Cache.Dir != want {
		t.Errorf("expected %q, got %q", want, cfg.Cache.Dir)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Cache:      CacheConfig{Dir: "/data/cache"},
		Collection: CollectionConfig{MaxTokens: 64, LinesPerPart: 10},
		Search:     SearchConfig{Tag: "mine"},
	}
	cfg.ApplyDefaults()

	if cfg.Cache.Dir != "/data/cache" {
		t.Errorf("cache dir overridden: %q", cfg.Cache.Dir)
	}
	if cfg.Collection.MaxTokens != 64 || cfg.Collection.LinesPerPart != 10 {
		t.Errorf("collection overridden: %+v", cfg.Collection)
	}
	if cfg.Search.Tag != "mine" {
		t.Errorf("tag overridden: %q", cfg.Search.Tag)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("CROSSRET_TEST_ADDR", "redis:6380")

	path := filepath.Join(t.TempDir(), "test.yaml")
	body := []byte(`
database:
  addrs: ["${CROSSRET_TEST_ADDR}"]
embedding:
  base_url: "${CROSSRET_TEST_MISSING:-http://localhost:8000/v1}"
  dtype: fp16
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Database.Addrs) != 1 || cfg.Database.Addrs[0] != "redis:6380" {
		t.Errorf("unexpected addrs: %v", cfg.Database.Addrs)
	}
	if cfg.Embedding.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("default not applied: %q", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.DType != "fp16" {
		t.Errorf("unexpected dtype %q", cfg.Embedding.DType)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
