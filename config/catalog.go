package config

import (
	"fmt"
	"os"

	"semembed/embedding"

	"github.com/pelletier/go-toml/v2"
)

// BuiltinCatalog lists the models served when no catalog file is given.
// Backend, endpoint and limits are filled from the environment.
func BuiltinCatalog() []embedding.Definition {
	return []embedding.Definition{
		{ID: "BAAI/bge-small-en-v1.5", Dimensions: 384, OwnedBy: "BAAI"},
		{ID: "BAAI/bge-base-en-v1.5", Dimensions: 768, OwnedBy: "BAAI"},
		{ID: "sentence-transformers/all-MiniLM-L6-v2", Dimensions: 384, OwnedBy: "sentence-transformers"},
	}
}

type catalogFile struct {
	Models []embedding.Definition `toml:"models"`
}

// LoadCatalog reads model definitions from a TOML file of the form
//
//	[[models]]
//	id = "BAAI/bge-small-en-v1.5"
//	backend = "openai"
//	dimensions = 384
func LoadCatalog(path string) ([]embedding.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fail to read model catalog: %w", err)
	}
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fail to parse model catalog %s: %w", path, err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("model catalog %s defines no models", path)
	}
	return f.Models, nil
}
