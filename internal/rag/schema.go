package rag

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/encoding/protojson"
)

// SiblingName returns the name of the sibling collection that hosts the
// named-vector layout for base.
func SiblingName(base, vectorName string) string {
	return base + "__" + vectorName
}

// ResolveSchema classifies an existing collection's vector layout. Rules are
// applied in order:
//
//  1. typed single vector params → Unnamed
//  2. typed non-empty params map → Named(first key)
//  3. raw JSON dump of the config (see [resolveFromDump])
//  4. otherwise ErrSchemaAmbiguous
//
// "First key" is the lexicographically smallest slot name; collections are
// expected to carry exactly one slot.
func ResolveSchema(info *qdrant.CollectionInfo) (VectorName, error) {
	if info == nil {
		return VectorName{}, fmt.Errorf("rag: resolve schema: nil collection info: %w", ErrSchemaAmbiguous)
	}

	vc := info.GetConfig().GetParams().GetVectorsConfig()
	if vc.GetParams() != nil {
		return Unnamed(), nil
	}
	if m := vc.GetParamsMap().GetMap(); len(m) > 0 {
		return Named(firstKey(m)), nil
	}

	raw, err := protojson.Marshal(info.GetConfig())
	if err == nil {
		if v, ok := resolveFromDump(raw); ok {
			return v, nil
		}
	}

	return VectorName{}, fmt.Errorf("rag: resolve schema: %w", ErrSchemaAmbiguous)
}

// resolveFromDump inspects a JSON dump of a collection config for the known
// shapes of the vectors section. Both the gRPC (vectorsConfig/paramsMap) and
// the REST (vectors) spellings are accepted:
//
//	{"params":{"vectors":{"size":768}}}                 → Unnamed
//	{"params":{"vectorsConfig":{"params":{"size":..}}}} → Unnamed
//	{"params":{"vectorsConfig":{"paramsMap":{"map":{"content":{..}}}}}} → Named("content")
//	{"params":{"vectors":{"content":{"size":768}}}}     → Named("content")
func resolveFromDump(raw []byte) (VectorName, bool) {
	var dump map[string]any
	if err := json.Unmarshal(raw, &dump); err != nil {
		return VectorName{}, false
	}
	params, _ := dump["params"].(map[string]any)
	if params == nil {
		return VectorName{}, false
	}

	var vectors map[string]any
	for _, key := range []string{"vectorsConfig", "vectors_config", "vectors"} {
		if v, ok := params[key].(map[string]any); ok && len(v) > 0 {
			vectors = v
			break
		}
	}
	if vectors == nil {
		return VectorName{}, false
	}

	if _, ok := vectors["size"]; ok {
		return Unnamed(), true
	}
	if p, ok := vectors["params"].(map[string]any); ok {
		if _, ok := p["size"]; ok {
			return Unnamed(), true
		}
		if len(p) > 0 {
			return Named(firstKey(p)), true
		}
		return VectorName{}, false
	}
	for _, key := range []string{"paramsMap", "params_map"} {
		if pm, ok := vectors[key].(map[string]any); ok {
			if m, ok := pm["map"].(map[string]any); ok && len(m) > 0 {
				return Named(firstKey(m)), true
			}
			return VectorName{}, false
		}
	}

	// Remaining shape: the section itself maps slot names to params.
	for _, v := range vectors {
		if _, ok := v.(map[string]any); !ok {
			return VectorName{}, false
		}
	}
	return Named(firstKey(vectors)), true
}

// firstKey returns the smallest key of a non-empty map.
func firstKey[V any](m map[string]V) string {
	return slices.Sorted(maps.Keys(m))[0]
}
