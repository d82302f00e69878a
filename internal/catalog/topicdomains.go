package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/mitchellh/mapstructure"

	"github.com/roach88/epsync/internal/ir"
)

// TopicDomainsKey is the application domain setting listing its topic
// domains. On v2 they are a separate resource; the REST client reads
// them into this setting and writes the setting back out as resources.
const TopicDomainsKey = "topicDomains"

const (
	topicDomainsPath      = "/api/v2/architecture/topicDomains"
	defaultTopicDelimiter = "/"
)

// TopicDomain is one entry of the topicDomains setting. Variable levels
// are written as {name} in TopicString and bound to the latest version
// of the enum of that name in EnumApplicationDomainIDs.
type TopicDomain struct {
	BrokerType               string   `mapstructure:"brokerType"`
	TopicString              string   `mapstructure:"topicString"`
	TopicDelimiter           string   `mapstructure:"topicDelimiter"`
	EnumApplicationDomainIDs []string `mapstructure:"enumApplicationDomainIds"`
}

func (td TopicDomain) key() string {
	return td.BrokerType + " " + td.TopicString
}

type addressLevel struct {
	Name             string `json:"name"`
	AddressLevelType string `json:"addressLevelType"`
	EnumVersionID    string `json:"enumVersionId,omitempty"`
}

type wireTopicDomain struct {
	ID                  string         `json:"id,omitempty"`
	ApplicationDomainID string         `json:"applicationDomainId"`
	BrokerType          string         `json:"brokerType"`
	AddressLevels       []addressLevel `json:"addressLevels"`
}

// topicString renders address levels the way TopicDomain.TopicString
// writes them.
func (w wireTopicDomain) topicString() string {
	parts := make([]string, len(w.AddressLevels))
	for i, l := range w.AddressLevels {
		if l.AddressLevelType == "variable" {
			parts[i] = "{" + l.Name + "}"
		} else {
			parts[i] = l.Name
		}
	}
	return strings.Join(parts, defaultTopicDelimiter)
}

func (w wireTopicDomain) setting() map[string]any {
	return map[string]any{"id": w.ID, "brokerType": w.BrokerType, "topicString": w.topicString()}
}

// domainEntities serves v2 application domains together with their
// topic domains.
type domainEntities struct {
	*restEntities
}

func (d *domainEntities) List(ctx context.Context, f Filter, page int) (Page, error) {
	p, err := d.restEntities.List(ctx, f, page)
	if err != nil {
		return Page{}, err
	}
	if err := d.attach(ctx, p.Items); err != nil {
		return Page{}, err
	}
	return p, nil
}

func (d *domainEntities) Get(ctx context.Context, id string) (ir.Snapshot, error) {
	s, err := d.restEntities.Get(ctx, id)
	if err != nil {
		return ir.Snapshot{}, err
	}
	return s, d.attach(ctx, []ir.Snapshot{s})
}

func (d *domainEntities) Create(ctx context.Context, draft Draft) (ir.Snapshot, error) {
	want, ok, rest, err := splitTopicDomains(draft.Settings)
	if err != nil {
		return ir.Snapshot{}, err
	}
	draft.Settings = rest
	s, err := d.restEntities.Create(ctx, draft)
	if err != nil {
		return ir.Snapshot{}, err
	}
	if ok {
		if err := d.sync(ctx, s.ID, want); err != nil {
			return s, err
		}
	}
	return s, d.attach(ctx, []ir.Snapshot{s})
}

func (d *domainEntities) Update(ctx context.Context, id string, settings ir.Settings) (ir.Snapshot, error) {
	want, ok, rest, err := splitTopicDomains(settings)
	if err != nil {
		return ir.Snapshot{}, err
	}
	var s ir.Snapshot
	if len(rest) > 0 {
		s, err = d.restEntities.Update(ctx, id, rest)
	} else {
		s, err = d.restEntities.Get(ctx, id)
	}
	if err != nil {
		return ir.Snapshot{}, err
	}
	if ok {
		if err := d.sync(ctx, s.ID, want); err != nil {
			return s, err
		}
	}
	return s, d.attach(ctx, []ir.Snapshot{s})
}

// splitTopicDomains takes the topic domains out of settings. ok reports
// whether the key was present at all.
func splitTopicDomains(settings ir.Settings) (tds []TopicDomain, ok bool, rest ir.Settings, err error) {
	rest = settings.Clone()
	raw, ok := rest[TopicDomainsKey]
	if !ok {
		return nil, false, rest, nil
	}
	delete(rest, TopicDomainsKey)
	if raw == nil {
		return nil, true, rest, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &tds,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, false, nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false, nil, fmt.Errorf("decode %s: %w", TopicDomainsKey, err)
	}
	return tds, true, rest, nil
}

// attach reads the topic domains of items into their settings.
func (d *domainEntities) attach(ctx context.Context, items []ir.Snapshot) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	tds, err := d.topicDomains(ctx, ids)
	if err != nil {
		return err
	}
	byDomain := map[string][]any{}
	for _, td := range tds {
		byDomain[td.ApplicationDomainID] = append(byDomain[td.ApplicationDomainID], td.setting())
	}
	for _, s := range items {
		if s.Settings == nil {
			continue
		}
		list := byDomain[s.ID]
		if list == nil {
			list = []any{}
		}
		s.Settings[TopicDomainsKey] = list
	}
	return nil
}

// topicDomains lists every topic domain of the given application domains.
func (d *domainEntities) topicDomains(ctx context.Context, domainIDs []string) ([]wireTopicDomain, error) {
	var out []wireTopicDomain
	for page := 1; ; {
		q := url.Values{}
		q.Set("pageNumber", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(d.c.pageSize))
		q.Set("applicationDomainIds", strings.Join(domainIDs, ","))

		var env envelope
		if err := d.c.do(ctx, http.MethodGet, topicDomainsPath, q, nil, &env); err != nil {
			return nil, err
		}
		var items []wireTopicDomain
		if len(env.Data) > 0 {
			if err := decodeData(env.Data, &items); err != nil {
				return nil, fmt.Errorf("list topic domains: %w", err)
			}
		}
		out = append(out, items...)

		next := env.Meta.Pagination
		if next == nil || next.NextPage == nil || *next.NextPage <= page {
			return out, nil
		}
		page = *next.NextPage
	}
}

// sync makes the topic domains of domainID match want. Entries are
// matched on broker type and topic string; the rest are recreated.
func (d *domainEntities) sync(ctx context.Context, domainID string, want []TopicDomain) error {
	have, err := d.topicDomains(ctx, []string{domainID})
	if err != nil {
		return err
	}
	wanted := map[string]bool{}
	for _, td := range want {
		wanted[td.key()] = true
	}
	existing := map[string]bool{}
	for _, w := range have {
		k := TopicDomain{BrokerType: w.BrokerType, TopicString: w.topicString()}.key()
		if wanted[k] && !existing[k] {
			existing[k] = true
			continue
		}
		d.c.logger.Debug("deleting topic domain", "application_domain_id", domainID, "topic", w.topicString())
		if err := d.c.do(ctx, http.MethodDelete, topicDomainsPath+"/"+url.PathEscape(w.ID), nil, nil, nil); err != nil && !IsNotFound(err) {
			return err
		}
	}
	for _, td := range want {
		if existing[td.key()] {
			continue
		}
		levels, err := d.addressLevels(ctx, td)
		if err != nil {
			return err
		}
		body := wireTopicDomain{ApplicationDomainID: domainID, BrokerType: td.BrokerType, AddressLevels: levels}
		if err := d.c.do(ctx, http.MethodPost, topicDomainsPath, nil, body, nil); err != nil {
			return err
		}
		existing[td.key()] = true
	}
	return nil
}

// addressLevels splits a topic string into levels. A variable level is
// left unbound when no enum of its name exists yet.
func (d *domainEntities) addressLevels(ctx context.Context, td TopicDomain) ([]addressLevel, error) {
	delim := td.TopicDelimiter
	if delim == "" {
		delim = defaultTopicDelimiter
	}
	parts := strings.Split(td.TopicString, delim)
	levels := make([]addressLevel, 0, len(parts))
	for _, part := range parts {
		name, isVar := strings.CutPrefix(part, "{")
		if isVar {
			name, isVar = strings.CutSuffix(name, "}")
		}
		if !isVar {
			levels = append(levels, addressLevel{Name: part, AddressLevelType: "literal"})
			continue
		}
		id, err := d.latestEnumVersion(ctx, td.EnumApplicationDomainIDs, name)
		if err != nil {
			return nil, err
		}
		levels = append(levels, addressLevel{Name: name, AddressLevelType: "variable", EnumVersionID: id})
	}
	return levels, nil
}

// latestEnumVersion returns the ID of the highest version of the first
// enum called name in domainIDs, or "" when there is none.
func (d *domainEntities) latestEnumVersion(ctx context.Context, domainIDs []string, name string) (string, error) {
	for _, domainID := range domainIDs {
		enums, err := FindByName(ctx, d.c.Entities(ir.TypeEnum), Filter{Name: name, ParentID: domainID})
		if err != nil {
			return "", fmt.Errorf("find enum %q: %w", name, err)
		}
		if len(enums) == 0 {
			continue
		}
		versions, err := All(ctx, d.c.Entities(ir.TypeEnumVersion), Filter{ParentID: enums[0].ID})
		if err != nil {
			return "", fmt.Errorf("list versions of enum %q: %w", name, err)
		}
		var latestID string
		var latest *version.Version
		for _, s := range versions {
			v, err := version.NewVersion(s.Version)
			if err != nil {
				continue
			}
			if latest == nil || v.GreaterThan(latest) {
				latest, latestID = v, s.ID
			}
		}
		return latestID, nil
	}
	return "", nil
}
