package migrate

import (
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"

	"github.com/roach88/epsync/internal/catalog"
	"github.com/roach88/epsync/internal/ir"
)

// sharedEnumDomainKey is the ID Map key of the shared enum domain.
const sharedEnumDomainKey = "domain:shared-enums"

// Target broker and type constants for migrated objects.
const (
	brokerSolace       = "solace"
	applicationDefault = "standard"
	schemaTypeDefault  = "jsonSchema"
	contentTypeDefault = "json"
	topicDelimiter     = "/"
)

// Source entity shapes, decoded from v1 settings.
type (
	v1Domain struct {
		Description             string `mapstructure:"description"`
		EnforceUniqueTopicNames bool   `mapstructure:"enforceUniqueTopicNames"`
		TopicDomain             string `mapstructure:"topicDomain"`
	}

	v1Enum struct {
		Description string        `mapstructure:"description"`
		Values      []v1EnumValue `mapstructure:"values"`
	}

	v1EnumValue struct {
		Value       string `mapstructure:"value"`
		DisplayName string `mapstructure:"displayName"`
	}

	v1Schema struct {
		Description string `mapstructure:"description"`
		ContentType string `mapstructure:"contentType"`
		SchemaType  string `mapstructure:"schemaType"`
		Content     string `mapstructure:"content"`
	}

	v1Event struct {
		Description string `mapstructure:"description"`
		SchemaID    string `mapstructure:"schemaId"`
		TopicName   string `mapstructure:"topicName"`
		// TopicEnumIDs maps a topic variable to the v1 enum bounding it.
		TopicEnumIDs map[string]string `mapstructure:"topicEnumIds"`
	}

	v1Application struct {
		Description      string   `mapstructure:"description"`
		ProducedEventIDs []string `mapstructure:"producedEventIds"`
		ConsumedEventIDs []string `mapstructure:"consumedEventIds"`
	}
)

// plan is a translated source entity.
type plan struct {
	spec ir.EntitySpec

	// parentKey is the ID Map key of the target domain. Empty for domains.
	parentKey string
}

// translator turns v1 source snapshots into v2 target specs. References
// to other source entities are resolved through the ID Map, so a
// translator must only see an entity after everything it references.
type translator struct {
	opts Options
	ids  *IDMap
}

func (tr translator) translate(t ir.EntityType, src ir.Snapshot) (plan, error) {
	switch t {
	case ir.TypeApplicationDomain:
		return tr.domain(src)
	case ir.TypeEnum:
		return tr.enum(src)
	case ir.TypeSchema:
		return tr.schema(src)
	case ir.TypeEvent:
		return tr.event(src)
	case ir.TypeApplication:
		return tr.application(src)
	case ir.TypeEventAPI:
		return tr.eventAPI(src)
	default:
		return plan{}, &TranslateError{EntityType: t, SourceID: src.ID, Message: "entity type is not migrated"}
	}
}

// DomainName is the target name of a source domain.
func (o Options) DomainName(sourceName string) string {
	return o.Prefix + sourceName
}

// EnumDomain is the target name of the shared enum domain.
func (o Options) EnumDomain() string {
	return o.Prefix + o.EnumDomainName
}

func (tr translator) domain(src ir.Snapshot) (plan, error) {
	var d v1Domain
	if err := decode(ir.TypeApplicationDomain, src, &d); err != nil {
		return plan{}, err
	}
	settings := ir.Settings{
		"uniqueTopicAddressEnforcementEnabled": d.EnforceUniqueTopicNames,
		"topicDomainEnforcementEnabled":        d.TopicDomain != "",
	}
	putString(settings, "description", d.Description)
	if d.TopicDomain != "" {
		// Variable levels are bound to enums in the shared enum domain.
		enumDomain, err := tr.ref(ir.TypeApplicationDomain, src.ID, sharedEnumDomainKey)
		if err != nil {
			return plan{}, err
		}
		settings[catalog.TopicDomainsKey] = []any{map[string]any{
			"brokerType":               brokerSolace,
			"topicString":              d.TopicDomain,
			"topicDelimiter":           topicDelimiter,
			"enumApplicationDomainIds": []any{enumDomain},
		}}
	}
	return plan{spec: ir.EntitySpec{
		Type:        ir.TypeApplicationDomain,
		Name:        tr.opts.DomainName(src.Name),
		TargetState: ir.Present,
		Settings:    settings,
	}}, nil
}

// sharedEnumDomain is the spec of the domain that enums without a source
// domain are migrated into.
func (tr translator) sharedEnumDomain() ir.EntitySpec {
	return ir.EntitySpec{
		Type:        ir.TypeApplicationDomain,
		Name:        tr.opts.EnumDomain(),
		TargetState: ir.Present,
		Settings:    ir.Settings{},
	}
}

func (tr translator) enum(src ir.Snapshot) (plan, error) {
	var e v1Enum
	if err := decode(ir.TypeEnum, src, &e); err != nil {
		return plan{}, err
	}
	values := make([]any, 0, len(e.Values))
	for i, v := range e.Values {
		if v.Value == "" {
			return plan{}, &TranslateError{EntityType: ir.TypeEnum, SourceID: src.ID, Message: "value " + strconv.Itoa(i) + " has no value"}
		}
		values = append(values, map[string]any{
			"value": v.Value,
			"label": lo.Ternary(v.DisplayName != "", v.DisplayName, v.Value),
		})
	}
	version := ir.Settings{"values": values}
	putString(version, "description", e.Description)
	return plan{
		spec: ir.EntitySpec{
			Type:        ir.TypeEnum,
			Name:        src.Name,
			TargetState: ir.Present,
			Settings:    ir.Settings{"shared": true},
			Versions:    tr.versions(version),
		},
		parentKey: lo.CoalesceOrEmpty(src.ParentID, sharedEnumDomainKey),
	}, nil
}

func (tr translator) schema(src ir.Snapshot) (plan, error) {
	var s v1Schema
	if err := decode(ir.TypeSchema, src, &s); err != nil {
		return plan{}, err
	}
	version := ir.Settings{}
	putString(version, "description", s.Description)
	putString(version, "content", s.Content)
	return plan{
		spec: ir.EntitySpec{
			Type:        ir.TypeSchema,
			Name:        src.Name,
			TargetState: ir.Present,
			Settings: ir.Settings{
				"shared":      true,
				"contentType": lo.CoalesceOrEmpty(strings.ToLower(s.ContentType), contentTypeDefault),
				"schemaType":  lo.CoalesceOrEmpty(s.SchemaType, schemaTypeDefault),
			},
			Versions: tr.versions(version),
		},
		parentKey: src.ParentID,
	}, nil
}

func (tr translator) event(src ir.Snapshot) (plan, error) {
	var e v1Event
	if err := decode(ir.TypeEvent, src, &e); err != nil {
		return plan{}, err
	}
	version := ir.Settings{}
	putString(version, "description", e.Description)
	if e.SchemaID != "" {
		id, err := tr.ref(ir.TypeEvent, src.ID, VersionKey(e.SchemaID))
		if err != nil {
			return plan{}, err
		}
		version["schemaVersionId"] = id
	}
	if e.TopicName != "" {
		levels, err := tr.addressLevels(src.ID, e)
		if err != nil {
			return plan{}, err
		}
		version["deliveryDescriptor"] = map[string]any{
			"brokerType": brokerSolace,
			"address": map[string]any{
				"addressType":   "topic",
				"addressLevels": levels,
			},
		}
	}
	return plan{
		spec: ir.EntitySpec{
			Type:        ir.TypeEvent,
			Name:        src.Name,
			TargetState: ir.Present,
			Settings:    ir.Settings{"shared": true, "brokerType": brokerSolace},
			Versions:    tr.versions(version),
		},
		parentKey: src.ParentID,
	}, nil
}

// addressLevels splits a v1 topic into v2 address levels. A level written
// as {name} is a variable, bound to an enum version when the event names
// one for it.
func (tr translator) addressLevels(sourceID string, e v1Event) ([]any, error) {
	parts := strings.Split(e.TopicName, topicDelimiter)
	levels := make([]any, 0, len(parts))
	for _, part := range parts {
		name, isVar := strings.CutPrefix(part, "{")
		if isVar {
			name, isVar = strings.CutSuffix(name, "}")
		}
		if !isVar {
			levels = append(levels, map[string]any{"name": part, "addressLevelType": "literal"})
			continue
		}
		level := map[string]any{"name": name, "addressLevelType": "variable"}
		if enumID, ok := e.TopicEnumIDs[name]; ok {
			id, err := tr.ref(ir.TypeEvent, sourceID, VersionKey(enumID))
			if err != nil {
				return nil, err
			}
			level["enumVersionId"] = id
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func (tr translator) application(src ir.Snapshot) (plan, error) {
	var a v1Application
	if err := decode(ir.TypeApplication, src, &a); err != nil {
		return plan{}, err
	}
	produced, err := tr.refs(ir.TypeApplication, src.ID, a.ProducedEventIDs)
	if err != nil {
		return plan{}, err
	}
	consumed, err := tr.refs(ir.TypeApplication, src.ID, a.ConsumedEventIDs)
	if err != nil {
		return plan{}, err
	}
	version := ir.Settings{
		"declaredProducedEventVersionIds": produced,
		"declaredConsumedEventVersionIds": consumed,
	}
	putString(version, "description", a.Description)
	return plan{
		spec: ir.EntitySpec{
			Type:        ir.TypeApplication,
			Name:        src.Name,
			TargetState: ir.Present,
			Settings:    ir.Settings{"applicationType": applicationDefault, "brokerType": brokerSolace},
			Versions:    tr.versions(version),
		},
		parentKey: src.ParentID,
	}, nil
}

func (tr translator) eventAPI(src ir.Snapshot) (plan, error) {
	var a v1Application
	if err := decode(ir.TypeEventAPI, src, &a); err != nil {
		return plan{}, err
	}
	produced, err := tr.refs(ir.TypeEventAPI, src.ID, a.ProducedEventIDs)
	if err != nil {
		return plan{}, err
	}
	consumed, err := tr.refs(ir.TypeEventAPI, src.ID, a.ConsumedEventIDs)
	if err != nil {
		return plan{}, err
	}
	version := ir.Settings{
		"producedEventVersionIds": produced,
		"consumedEventVersionIds": consumed,
	}
	putString(version, "description", a.Description)
	return plan{
		spec: ir.EntitySpec{
			Type:        ir.TypeEventAPI,
			Name:        src.Name,
			TargetState: ir.Present,
			Settings:    ir.Settings{"shared": true, "brokerType": brokerSolace},
			Versions:    tr.versions(version),
		},
		parentKey: src.ParentID,
	}, nil
}

// versions declares the single initial version of a migrated object.
func (tr translator) versions(settings ir.Settings) []ir.VersionSpec {
	settings["stateId"] = tr.opts.StateID
	return []ir.VersionSpec{{Version: tr.opts.InitialVersion, Settings: settings}}
}

// ref resolves one referenced target ID. A reference a dry run would
// create resolves to a placeholder, since nothing is sent to the target.
func (tr translator) ref(t ir.EntityType, sourceID, key string) (string, error) {
	id, planned, err := tr.ids.Resolve(t, sourceID, key)
	if err != nil {
		return "", err
	}
	if planned {
		return "planned:" + key, nil
	}
	return id, nil
}

// refs resolves the version IDs of the given source event IDs, in order
// and without duplicates.
func (tr translator) refs(t ir.EntityType, sourceID string, eventIDs []string) ([]any, error) {
	out := make([]any, 0, len(eventIDs))
	for _, id := range lo.Uniq(eventIDs) {
		target, err := tr.ref(t, sourceID, VersionKey(id))
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func decode(t ir.EntityType, src ir.Snapshot, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	input := map[string]any(src.Settings)
	if input == nil {
		input = map[string]any{}
	}
	if err := dec.Decode(input); err != nil {
		return &TranslateError{EntityType: t, SourceID: src.ID, Message: "decode settings", Err: err}
	}
	return nil
}

func putString(s ir.Settings, key, value string) {
	if value != "" {
		s[key] = value
	}
}
