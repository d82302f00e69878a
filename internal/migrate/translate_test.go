package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

func newTranslator(ids *IDMap) translator {
	return translator{opts: testOptions(), ids: ids}
}

func TestTranslateDomain(t *testing.T) {
	p, err := newTranslator(NewIDMap()).translate(ir.TypeApplicationDomain, ir.Snapshot{
		ID:   "s-1",
		Name: "orders",
		Settings: ir.Settings{
			"description":             "Orders",
			"enforceUniqueTopicNames": "true",
		},
	})
	require.NoError(t, err)
	assert.Empty(t, p.parentKey)
	assert.Equal(t, "mig-orders", p.spec.Name)
	assert.Equal(t, ir.Present, p.spec.TargetState)
	assert.Equal(t, ir.Settings{
		"description":                          "Orders",
		"uniqueTopicAddressEnforcementEnabled": true,
		"topicDomainEnforcementEnabled":        false,
	}, p.spec.Settings)
	assert.Empty(t, p.spec.Versions)
	assert.NotContains(t, p.spec.Settings, catalog.TopicDomainsKey)
}

func TestTranslateDomainTopicDomain(t *testing.T) {
	src := ir.Snapshot{ID: "s-1", Name: "orders", Settings: ir.Settings{"topicDomain": "acme/{region}/orders"}}

	ids := NewIDMap()
	ids.Put(sharedEnumDomainKey, "t-7")
	p, err := newTranslator(ids).translate(ir.TypeApplicationDomain, src)
	require.NoError(t, err)
	assert.Equal(t, true, p.spec.Settings["topicDomainEnforcementEnabled"])
	assert.Equal(t, []any{map[string]any{
		"brokerType":               "solace",
		"topicString":              "acme/{region}/orders",
		"topicDelimiter":           "/",
		"enumApplicationDomainIds": []any{"t-7"},
	}}, p.spec.Settings[catalog.TopicDomainsKey])

	planned := NewIDMap()
	planned.Plan(sharedEnumDomainKey)
	p, err = newTranslator(planned).translate(ir.TypeApplicationDomain, src)
	require.NoError(t, err)
	td := p.spec.Settings[catalog.TopicDomainsKey].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"planned:" + sharedEnumDomainKey}, td["enumApplicationDomainIds"])

	_, err = newTranslator(NewIDMap()).translate(ir.TypeApplicationDomain, src)
	require.Error(t, err)
	assert.True(t, IsUnresolvedReference(err))
}

func TestTranslateEnumParent(t *testing.T) {
	tr := newTranslator(NewIDMap())
	values := ir.Settings{"values": []any{map[string]any{"value": "a"}}}

	inDomain, err := tr.translate(ir.TypeEnum, ir.Snapshot{ID: "s-2", Name: "e", ParentID: "s-1", Settings: values})
	require.NoError(t, err)
	assert.Equal(t, "s-1", inDomain.parentKey)

	shared, err := tr.translate(ir.TypeEnum, ir.Snapshot{ID: "s-3", Name: "f", Settings: values})
	require.NoError(t, err)
	assert.Equal(t, sharedEnumDomainKey, shared.parentKey)

	require.Len(t, shared.spec.Versions, 1)
	v := shared.spec.Versions[0]
	assert.Equal(t, "1.0.0", v.Version)
	assert.Equal(t, "2", v.Settings["stateId"])
	assert.Equal(t, []any{map[string]any{"value": "a", "label": "a"}}, v.Settings["values"])
}

func TestTranslateEnumRejectsEmptyValue(t *testing.T) {
	_, err := newTranslator(NewIDMap()).translate(ir.TypeEnum, ir.Snapshot{ID: "s-2", Settings: ir.Settings{
		"values": []any{map[string]any{"value": "a"}, map[string]any{"displayName": "B"}},
	}})
	require.Error(t, err)
	var te *TranslateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "value 1 has no value", te.Message)
	assert.False(t, IsUnresolvedReference(err))
}

func TestTranslateDecodeError(t *testing.T) {
	_, err := newTranslator(NewIDMap()).translate(ir.TypeEnum, ir.Snapshot{ID: "s-2", Settings: ir.Settings{
		"values": "not a list",
	}})
	require.Error(t, err)
	var te *TranslateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "decode settings", te.Message)
	assert.Error(t, te.Unwrap())
}

func TestTranslateSchemaDefaults(t *testing.T) {
	p, err := newTranslator(NewIDMap()).translate(ir.TypeSchema, ir.Snapshot{ID: "s-3", Name: "s", ParentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, ir.Settings{"shared": true, "contentType": "json", "schemaType": "jsonSchema"}, p.spec.Settings)
	assert.Equal(t, ir.Settings{"stateId": "2"}, p.spec.Versions[0].Settings)
}

func TestTranslateEventResolvesReferences(t *testing.T) {
	ids := NewIDMap()
	ids.Put(VersionKey("s-3"), "t-6")
	ids.Put(VersionKey("s-2"), "t-4")

	p, err := newTranslator(ids).translate(ir.TypeEvent, ir.Snapshot{
		ID:       "s-4",
		Name:     "created",
		ParentID: "s-1",
		Settings: ir.Settings{
			"schemaId":     "s-3",
			"topicName":    "a/{region}/{color}",
			"topicEnumIds": map[string]any{"color": "s-2"},
		},
	})
	require.NoError(t, err)
	v := p.spec.Versions[0].Settings
	assert.Equal(t, "t-6", v["schemaVersionId"])
	assert.Equal(t, map[string]any{
		"brokerType": "solace",
		"address": map[string]any{
			"addressType": "topic",
			"addressLevels": []any{
				map[string]any{"name": "a", "addressLevelType": "literal"},
				map[string]any{"name": "region", "addressLevelType": "variable"},
				map[string]any{"name": "color", "addressLevelType": "variable", "enumVersionId": "t-4"},
			},
		},
	}, v["deliveryDescriptor"])
}

func TestTranslateEventUnresolvedSchema(t *testing.T) {
	_, err := newTranslator(NewIDMap()).translate(ir.TypeEvent, ir.Snapshot{
		ID:       "s-4",
		ParentID: "s-1",
		Settings: ir.Settings{"schemaId": "s-3"},
	})
	require.Error(t, err)
	assert.True(t, IsUnresolvedReference(err))
}

func TestTranslatePlannedReference(t *testing.T) {
	ids := NewIDMap()
	ids.Plan(VersionKey("s-4"))

	p, err := newTranslator(ids).translate(ir.TypeApplication, ir.Snapshot{
		ID:       "s-5",
		ParentID: "s-1",
		Settings: ir.Settings{"producedEventIds": []any{"s-4"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"planned:version:s-4"}, p.spec.Versions[0].Settings["declaredProducedEventVersionIds"])
	assert.Equal(t, ir.Settings{"applicationType": "standard", "brokerType": "solace"}, p.spec.Settings)
}

func TestTranslateEventAPIDeduplicatesEvents(t *testing.T) {
	ids := NewIDMap()
	ids.Put(VersionKey("s-4"), "t-8")
	ids.Put(VersionKey("s-5"), "t-9")

	p, err := newTranslator(ids).translate(ir.TypeEventAPI, ir.Snapshot{
		ID:       "s-6",
		ParentID: "s-1",
		Settings: ir.Settings{
			"producedEventIds": []any{"s-5", "s-4", "s-5"},
		},
	})
	require.NoError(t, err)
	v := p.spec.Versions[0].Settings
	assert.Equal(t, []any{"t-9", "t-8"}, v["producedEventVersionIds"])
	assert.Equal(t, []any{}, v["consumedEventVersionIds"])
}

func TestTranslateUnmigratedType(t *testing.T) {
	_, err := newTranslator(NewIDMap()).translate(ir.TypeEnumVersion, ir.Snapshot{ID: "s-9"})
	var te *TranslateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "entity type is not migrated", te.Message)
}
